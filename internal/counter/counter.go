// Package counter allocates human-facing sequence numbers from a durable store.
package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-storefront-orderflow/internal/apperrors"
	"github.com/imrishuroy/go-storefront-orderflow/internal/aws"
)

// OrderSequence is the counter name used for order numbers.
const OrderSequence = "order"

// ErrMalformedCounter means the store answered without a usable counter value.
var ErrMalformedCounter = errors.New("counter value missing or not an integer")

// Allocator hands out strictly increasing, never repeated values per name.
type Allocator interface {
	Next(ctx context.Context, name string) (int64, error)
}

// Store keeps one item per counter name: {name, value}.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Next increments the named counter and returns the new value. The increment
// is a single UpdateItem ADD, so DynamoDB serializes concurrent callers and
// creates the item with value 1 the first time a name is seen. There is no
// read-then-write fallback: if the update fails the allocation fails.
func (s *Store) Next(ctx context.Context, name string) (int64, error) {
	const op = "counter.Next"
	if name == "" {
		return 0, apperrors.Validation(op, errors.New("counter name is required"))
	}

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: name},
		},
		// "value" is a DynamoDB reserved word
		UpdateExpression:         awsString("ADD #v :one"),
		ExpressionAttributeNames: map[string]string{"#v": "value"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, apperrors.Upstream(op, fmt.Errorf("increment %q: %w", name, err))
	}

	n, ok := out.Attributes["value"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, apperrors.Upstream(op, ErrMalformedCounter)
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, apperrors.Upstream(op, fmt.Errorf("%w: %v", ErrMalformedCounter, err))
	}
	return v, nil
}

// Current reads the counter without changing it. A never-allocated name reads as 0.
func (s *Store) Current(ctx context.Context, name string) (int64, error) {
	const op = "counter.Current"
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: name},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return 0, apperrors.Upstream(op, fmt.Errorf("get %q: %w", name, err))
	}
	if len(out.Item) == 0 {
		return 0, nil
	}
	n, ok := out.Item["value"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, apperrors.Upstream(op, ErrMalformedCounter)
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool { return &b }
