package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/id"
)

// EmployeeRepo is the employee directory. PK: org_id, SK: email.
type EmployeeRepo struct {
	client    API
	tableName string
}

func NewEmployeeRepo(client API, tableName string) *EmployeeRepo {
	return &EmployeeRepo{client: client, tableName: tableName}
}

// Find returns the employee id registered for email in orgID.
func (r *EmployeeRepo) Find(ctx context.Context, orgID, email string) (string, error) {
	e, err := r.Get(ctx, orgID, email)
	if err != nil {
		return "", err
	}
	return e.EmployeeID, nil
}

func (r *EmployeeRepo) Get(ctx context.Context, orgID, email string) (*domain.Employee, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            compositeKey(attrOrgID, orgID, attrEmail, email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("employee %s/%s: %w", orgID, email, domain.ErrNotFound)
	}
	var e domain.Employee
	if err := attributevalue.UnmarshalMap(out.Item, &e); err != nil {
		return nil, fmt.Errorf("unmarshal employee: %w", err)
	}
	return &e, nil
}

// ResolveOrCreate returns the existing employee id for (orgID, email), creating a
// directory entry with role employee when there is none. Concurrent callers
// converge on whichever record was written first.
func (r *EmployeeRepo) ResolveOrCreate(ctx context.Context, email, orgID string) (string, error) {
	empID, err := r.Find(ctx, orgID, email)
	if err == nil {
		return empID, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}

	empID, err = id.EmployeeID(orgID)
	if err != nil {
		return "", err
	}
	item, err := attributevalue.MarshalMap(&domain.Employee{
		OrganizationID:  orgID,
		Email:           email,
		EmployeeID:      empID,
		Name:            domain.DisplayName(email),
		Role:            domain.RoleEmployee,
		FeaturesAvailed: []string{},
	})
	if err != nil {
		return "", fmt.Errorf("marshal employee: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#sk)"),
		ExpressionAttributeNames: map[string]string{"#sk": attrEmail},
	})
	if isConditionFailed(err) {
		return r.Find(ctx, orgID, email)
	}
	if err != nil {
		return "", fmt.Errorf("put employee: %w", err)
	}
	return empID, nil
}
