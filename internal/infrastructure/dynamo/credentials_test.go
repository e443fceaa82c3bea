package dynamo

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCredentialRepo_Get(t *testing.T) {
	api := &mockAPI{}
	item, err := attributevalue.MarshalMap(&domain.Credential{Email: "a@x.com", PasswordHash: "h", OrganizationID: "ORG1", Role: "employer"})
	require.NoError(t, err)
	api.On("GetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
		return *in.TableName == "credentials" && in.Key["email"].(*types.AttributeValueMemberS).Value == "a@x.com"
	})).Return(&dynamodb.GetItemOutput{Item: item}, nil)

	c, err := NewCredentialRepo(api, "credentials").Get(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "h", c.PasswordHash)
	assert.Equal(t, "ORG1", c.OrganizationID)
	assert.Equal(t, "employer", c.RoleOrDefault())
}

func TestCredentialRepo_Get_NotFound(t *testing.T) {
	api := &mockAPI{}
	api.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	_, err := NewCredentialRepo(api, "credentials").Get(context.Background(), "a@x.com")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCredentialRepo_Insert_IsConditional(t *testing.T) {
	api := &mockAPI{}
	api.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		_, hasHash := in.Item["password_hash"]
		return *in.ConditionExpression == "attribute_not_exists(#pk)" && in.ExpressionAttributeNames["#pk"] == "email" && hasHash
	})).Return(&dynamodb.PutItemOutput{}, nil)

	err := NewCredentialRepo(api, "credentials").Insert(context.Background(), &domain.Credential{Email: "a@x.com", PasswordHash: "h"})
	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestCredentialRepo_Insert_Conflict(t *testing.T) {
	api := &mockAPI{}
	api.On("PutItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

	err := NewCredentialRepo(api, "credentials").Insert(context.Background(), &domain.Credential{Email: "a@x.com"})
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestCredentialRepo_UpdatePassword(t *testing.T) {
	api := &mockAPI{}
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return *in.ConditionExpression == "attribute_exists(#pk)" &&
			in.ExpressionAttributeNames["#f0"] == "password_hash" &&
			in.ExpressionAttributeNames["#f1"] == "updated_at"
	})).Return(&dynamodb.UpdateItemOutput{}, nil).Once()
	api.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{}).Once()

	repo := NewCredentialRepo(api, "credentials")
	ok, err := repo.UpdatePassword(context.Background(), "a@x.com", "new")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UpdatePassword(context.Background(), "ghost@x.com", "new")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCredentialRepo_UpdatePassword_Failure(t *testing.T) {
	api := &mockAPI{}
	api.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	_, err := NewCredentialRepo(api, "credentials").UpdatePassword(context.Background(), "a@x.com", "new")
	assert.ErrorContains(t, err, "throttled")
}

func TestCredential_HashIsPersisted(t *testing.T) {
	item, err := attributevalue.MarshalMap(&domain.Credential{Email: "a@x.com", PasswordHash: "secret"})
	require.NoError(t, err)
	_, stored := item["password_hash"]
	assert.True(t, stored)
}
