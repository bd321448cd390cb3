package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-storefront-orderflow/internal/apperrors"
	"github.com/imrishuroy/go-storefront-orderflow/internal/aws"
)

var (
	// ErrInProgress means another request holding the same key has not finished.
	ErrInProgress = errors.New("request with this idempotency key is in progress")
	// ErrKeyReused means the key was first used with a different request body.
	ErrKeyReused = errors.New("idempotency key reused with a different request")
)

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // default TTL window when creating entries
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// ttlWindow: how long a key is remembered (e.g., 48*time.Hour)
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// HashRequest fingerprints a request body.
func HashRequest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Begin claims key for a request. It returns (nil, nil) when the caller owns
// the key and must process the request. Otherwise it returns the completed
// record to replay, or ErrInProgress / ErrKeyReused as a Conflict.
func (s *Store) Begin(ctx context.Context, key, requestHash string) (*Record, error) {
	const op = "idempotency.Begin"
	now := s.nowFunc().UTC()
	rec := Record{
		Key:         key,
		Status:      StatusInProgress,
		RequestHash: requestHash,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.ttlWindow).Unix(),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, apperrors.Upstream(op, fmt.Errorf("marshal record: %w", err))
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
	})
	if err == nil {
		return nil, nil
	}
	if !aws.IsConditionalCheckFailed(err) {
		return nil, apperrors.Upstream(op, fmt.Errorf("put item: %w", err))
	}

	existing, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		// expired and swept between our write and read
		return nil, apperrors.Conflict(op, ErrInProgress)
	}
	if existing.Reusable(now) {
		return nil, s.takeOver(ctx, item, existing)
	}
	if existing.RequestHash != requestHash {
		return nil, apperrors.Conflict(op, ErrKeyReused)
	}
	if existing.Status != StatusDone {
		return nil, apperrors.Conflict(op, ErrInProgress)
	}
	return existing, nil
}

// takeOver replaces a failed or expired record, provided nobody else did first.
func (s *Store) takeOver(ctx context.Context, item map[string]types.AttributeValue, prev *Record) error {
	const op = "idempotency.takeOver"
	prevUpdated, err := attributevalue.Marshal(prev.UpdatedAt)
	if err != nil {
		return apperrors.Upstream(op, fmt.Errorf("marshal updated_at: %w", err))
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("#s = :s AND #ua = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s":  "status",
			"#ua": "updated_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s":  &types.AttributeValueMemberS{Value: prev.Status},
			":ua": prevUpdated,
		},
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return apperrors.Conflict(op, ErrInProgress)
		}
		return apperrors.Upstream(op, fmt.Errorf("put item: %w", err))
	}
	return nil
}

// Get retrieves an idempotency record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            recordKey(key),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, apperrors.Upstream("idempotency.Get", fmt.Errorf("get item: %w", err))
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, apperrors.Upstream("idempotency.Get", fmt.Errorf("unmarshal item: %w", err))
	}
	return &rec, nil
}

// Complete stores the response for key. Only an IN_PROGRESS record can complete.
func (s *Store) Complete(ctx context.Context, key, orderID string, responseStatus int, responseBody []byte) error {
	return s.finish(ctx, "idempotency.Complete", key,
		"SET #s = :next, order_id = :oid, response_body = :rb, response_status = :rs, updated_at = :ua",
		map[string]types.AttributeValue{
			":next": &types.AttributeValueMemberS{Value: StatusDone},
			":oid":  &types.AttributeValueMemberS{Value: orderID},
			":rb":   &types.AttributeValueMemberS{Value: string(responseBody)},
			":rs":   &types.AttributeValueMemberN{Value: strconv.Itoa(responseStatus)},
		})
}

// Fail marks the record FAILED so that a retry with the same key is processed again.
func (s *Store) Fail(ctx context.Context, key, note string) error {
	return s.finish(ctx, "idempotency.Fail", key,
		"SET #s = :next, note = :n, updated_at = :ua",
		map[string]types.AttributeValue{
			":next": &types.AttributeValueMemberS{Value: StatusFailed},
			":n":    &types.AttributeValueMemberS{Value: note},
		})
}

func (s *Store) finish(ctx context.Context, op, key, update string, values map[string]types.AttributeValue) error {
	values[":ua"] = &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)}
	values[":inprogress"] = &types.AttributeValueMemberS{Value: StatusInProgress}
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       recordKey(key),
		UpdateExpression:          &update,
		ConditionExpression:       awsString("#s = :inprogress"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return apperrors.Conflict(op, fmt.Errorf("record %q is not in progress", key))
		}
		return apperrors.Upstream(op, fmt.Errorf("update item: %w", err))
	}
	return nil
}

func recordKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: key},
	}
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool { return &b }
