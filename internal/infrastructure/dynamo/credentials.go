package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-auth-nosql/internal/domain"
)

// CredentialRepo stores registered accounts keyed by email.
type CredentialRepo struct {
	client    API
	tableName string
}

func NewCredentialRepo(client API, tableName string) *CredentialRepo {
	return &CredentialRepo{client: client, tableName: tableName}
}

func (r *CredentialRepo) Get(ctx context.Context, email string) (*domain.Credential, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(attrEmail, email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("credential %s: %w", email, domain.ErrNotFound)
	}
	var c domain.Credential
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}
	return &c, nil
}

// Insert writes c only if no credential exists for its email.
func (r *CredentialRepo) Insert(ctx context.Context, c *domain.Credential) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": attrEmail},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("credential %s: %w", c.Email, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored hash. It reports false when no credential
// exists for email.
func (r *CredentialRepo) UpdatePassword(ctx context.Context, email, hash string) (bool, error) {
	ue, err := buildUpdateExpr(map[string]interface{}{
		attrPasswordHash: hash,
		attrUpdatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return false, err
	}
	ue.Names["#pk"] = attrEmail
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(attrEmail, email),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("update password: %w", err)
	}
	return true, nil
}
