package carts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-storefront-orderflow/internal/apperrors"
	"github.com/imrishuroy/go-storefront-orderflow/internal/aws"
)

// batchWriteLimit is DynamoDB's per-request limit for BatchWriteItem.
const batchWriteLimit = 25

var ErrItemNotFound = errors.New("cart item not found")

// Store encapsulates operations on the carts table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Put adds a line or replaces the existing line for the same product.
func (s *Store) Put(ctx context.Context, it Item) (*Item, error) {
	const op = "carts.Put"
	now := s.nowFunc().UTC()
	if it.AddedAt.IsZero() {
		it.AddedAt = now
	}
	it.UpdatedAt = now
	it.Product = nil

	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return nil, apperrors.Upstream(op, fmt.Errorf("marshal cart item: %w", err))
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      av,
	}); err != nil {
		return nil, apperrors.Upstream(op, fmt.Errorf("put item: %w", err))
	}
	return &it, nil
}

// ListByUser returns the user's cart lines ordered by product id. An
// unknown user has an empty cart.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Item, error) {
	const op = "carts.ListByUser"
	items := []Item{}
	paginator := dyn.NewQueryPaginator(s.client, userQuery(s.tableName, userID))
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperrors.Upstream(op, fmt.Errorf("query: %w", err))
		}
		var page []Item
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, apperrors.Upstream(op, fmt.Errorf("unmarshal cart items: %w", err))
		}
		items = append(items, page...)
	}
	return items, nil
}

// UpdateQuantity sets the quantity of an existing line.
func (s *Store) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (*Item, error) {
	const op = "carts.UpdateQuantity"
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 itemKey(userID, productID),
		UpdateExpression:    awsString("SET #q = :q, #ua = :ua"),
		ConditionExpression: awsString("attribute_exists(#u)"),
		ExpressionAttributeNames: map[string]string{
			"#q":  "quantity",
			"#ua": "updated_at",
			"#u":  "user_id",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":q":  &types.AttributeValueMemberN{Value: fmt.Sprint(quantity)},
			":ua": &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return nil, apperrors.NotFound(op, ErrItemNotFound)
		}
		return nil, apperrors.Upstream(op, fmt.Errorf("update item: %w", err))
	}
	var it Item
	if err := attributevalue.UnmarshalMap(out.Attributes, &it); err != nil {
		return nil, apperrors.Upstream(op, fmt.Errorf("unmarshal cart item: %w", err))
	}
	return &it, nil
}

// Remove deletes one line.
func (s *Store) Remove(ctx context.Context, userID, productID string) error {
	const op = "carts.Remove"
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:                &s.tableName,
		Key:                      itemKey(userID, productID),
		ConditionExpression:      awsString("attribute_exists(#u)"),
		ExpressionAttributeNames: map[string]string{"#u": "user_id"},
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return apperrors.NotFound(op, ErrItemNotFound)
		}
		return apperrors.Upstream(op, fmt.Errorf("delete item: %w", err))
	}
	return nil
}

// ClearUser deletes every line of the user's cart and reports how many were
// removed. Unprocessed deletes are returned as an error, not retried.
func (s *Store) ClearUser(ctx context.Context, userID string) (int, error) {
	const op = "carts.ClearUser"
	input := userQuery(s.tableName, userID)
	input.ProjectionExpression = awsString("#u, #p")
	input.ExpressionAttributeNames["#p"] = "product_id"

	var keys []map[string]types.AttributeValue
	paginator := dyn.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, apperrors.Upstream(op, fmt.Errorf("query: %w", err))
		}
		for _, item := range out.Items {
			keys = append(keys, map[string]types.AttributeValue{
				"user_id":    item["user_id"],
				"product_id": item["product_id"],
			})
		}
	}

	deleted := 0
	for start := 0; start < len(keys); start += batchWriteLimit {
		end := min(start+batchWriteLimit, len(keys))
		reqs := make([]types.WriteRequest, 0, end-start)
		for _, k := range keys[start:end] {
			reqs = append(reqs, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: k}})
		}
		out, err := s.client.BatchWriteItem(ctx, &dyn.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.tableName: reqs},
		})
		if err != nil {
			return deleted, apperrors.Upstream(op, fmt.Errorf("batch delete: %w", err))
		}
		if n := len(out.UnprocessedItems[s.tableName]); n > 0 {
			return deleted + len(reqs) - n, apperrors.Upstream(op, fmt.Errorf("batch delete: %d items unprocessed", n))
		}
		deleted += len(reqs)
	}
	return deleted, nil
}

func userQuery(table, userID string) *dyn.QueryInput {
	return &dyn.QueryInput{
		TableName:                &table,
		KeyConditionExpression:   awsString("#u = :u"),
		ExpressionAttributeNames: map[string]string{"#u": "user_id"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: userID},
		},
	}
}

func itemKey(userID, productID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id":    &types.AttributeValueMemberS{Value: userID},
		"product_id": &types.AttributeValueMemberS{Value: productID},
	}
}

func awsString(s string) *string { return &s }
