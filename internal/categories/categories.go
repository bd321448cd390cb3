// Package categories stores the product category tree: a name and its
// sub-categories. Names are unique regardless of case.
package categories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-storefront-orderflow/internal/apperrors"
	"github.com/imrishuroy/go-storefront-orderflow/internal/aws"
)

var (
	ErrCategoryExists   = errors.New("category already exists")
	ErrCategoryNotFound = errors.New("category not found")
)

type Category struct {
	NameKey       string    `dynamodbav:"name_key" json:"-"` // PK, lower-cased name
	Name          string    `dynamodbav:"name" json:"name"`
	SubCategories []string  `dynamodbav:"sub_categories,omitempty" json:"subCategory,omitempty"`
	CreatedAt     time.Time `dynamodbav:"created_at" json:"createdAt"`
}

type CreateInput struct {
	Name          string   `json:"name" validate:"required"`
	SubCategories []string `json:"subCategory" validate:"omitempty,dive,required"`
}

type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	validate  *validatorv10.Validate
	nowFunc   func() time.Time
}

func NewStore(client aws.DynamoDBAPI, tableName string, validate *validatorv10.Validate) *Store {
	return &Store{client: client, tableName: tableName, validate: validate, nowFunc: time.Now}
}

// Create stores a new category. The name is trimmed; a name that differs
// from an existing one only in case is a Conflict.
func (s *Store) Create(ctx context.Context, in CreateInput) (*Category, error) {
	const op = "categories.Create"
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, apperrors.Validation(op, err)
	}

	c := Category{
		NameKey:       strings.ToLower(in.Name),
		Name:          in.Name,
		SubCategories: in.SubCategories,
		CreatedAt:     s.nowFunc().UTC(),
	}
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return nil, apperrors.Upstream(op, fmt.Errorf("marshal category: %w", err))
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(name_key)"),
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return nil, apperrors.Conflict(op, ErrCategoryExists)
		}
		return nil, apperrors.Upstream(op, fmt.Errorf("put item: %w", err))
	}
	return &c, nil
}

// Get finds a category by name, ignoring case.
func (s *Store) Get(ctx context.Context, name string) (*Category, error) {
	const op = "categories.Get"
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, apperrors.Validation(op, errors.New("category name is required"))
	}
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"name_key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, apperrors.Upstream(op, fmt.Errorf("get item: %w", err))
	}
	if len(out.Item) == 0 {
		return nil, apperrors.NotFound(op, fmt.Errorf("%w: %q", ErrCategoryNotFound, name))
	}
	var c Category
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, apperrors.Upstream(op, fmt.Errorf("unmarshal category: %w", err))
	}
	return &c, nil
}

// List returns every category.
func (s *Store) List(ctx context.Context) ([]Category, error) {
	const op = "categories.List"
	out := []Category{}
	paginator := dyn.NewScanPaginator(s.client, &dyn.ScanInput{TableName: &s.tableName})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperrors.Upstream(op, fmt.Errorf("scan: %w", err))
		}
		var items []Category
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, apperrors.Upstream(op, fmt.Errorf("unmarshal categories: %w", err))
		}
		out = append(out, items...)
	}
	return out, nil
}

func awsString(s string) *string { return &s }
