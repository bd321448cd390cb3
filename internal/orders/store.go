package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-storefront-orderflow/internal/apperrors"
	"github.com/imrishuroy/go-storefront-orderflow/internal/aws"
)

// Secondary indexes on the orders table.
const (
	// UserIndex: hash user_id, range order_no.
	UserIndex = "user_id-order_no-index"
	// NumberIndex: hash record_type (always "order"), range order_no. Gives the
	// full listing in allocation order.
	NumberIndex = "record_type-order_no-index"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrOrderExists   = errors.New("order already exists")
	// ErrStatusMismatch means the status changed between read and conditional write.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
)

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Create persists a new order. The order id must be set by the caller and
// must not exist yet.
func (s *Store) Create(ctx context.Context, o Order) error {
	const op = "orders.Create"
	now := s.nowFunc().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	o.RecordType = recordType

	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return apperrors.Upstream(op, fmt.Errorf("marshal order item: %w", err))
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return apperrors.Conflict(op, ErrOrderExists)
		}
		return apperrors.Upstream(op, fmt.Errorf("put item: %w", err))
	}
	return nil
}

// Get fetches an order by order_id.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	const op = "orders.Get"
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       orderKey(orderID),
	})
	if err != nil {
		return nil, apperrors.Upstream(op, fmt.Errorf("get item: %w", err))
	}
	if len(out.Item) == 0 {
		return nil, apperrors.NotFound(op, ErrOrderNotFound)
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, apperrors.Upstream(op, fmt.Errorf("unmarshal order: %w", err))
	}
	return &o, nil
}

// ListByUser returns every order placed by userID, oldest order number first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	const op = "orders.ListByUser"
	input := &dyn.QueryInput{
		TableName:                &s.tableName,
		IndexName:                awsString(UserIndex),
		KeyConditionExpression:   awsString("#u = :u"),
		ExpressionAttributeNames: map[string]string{"#u": "user_id"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: userID},
		},
	}

	orders := []Order{}
	paginator := dyn.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperrors.Upstream(op, fmt.Errorf("query: %w", err))
		}
		var page []Order
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, apperrors.Upstream(op, fmt.Errorf("unmarshal orders: %w", err))
		}
		orders = append(orders, page...)
	}
	return orders, nil
}

// Count returns the number of orders in the table.
func (s *Store) Count(ctx context.Context) (int, error) {
	const op = "orders.Count"
	input := s.numberQuery()
	input.Select = types.SelectCount

	total := 0
	paginator := dyn.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, apperrors.Upstream(op, fmt.Errorf("count query: %w", err))
		}
		total += int(out.Count)
	}
	return total, nil
}

// List returns orders [pageSize*(page-1), pageSize*page) in order-number
// order. A pageSize of zero returns every order.
func (s *Store) List(ctx context.Context, page, pageSize int) ([]Order, error) {
	const op = "orders.List"
	input := s.numberQuery()
	skip := 0
	if pageSize > 0 {
		skip = pageSize * (max(page, 1) - 1)
		input.Limit = awsInt32(int32(pageSize))
	}

	orders := []Order{}
	paginator := dyn.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperrors.Upstream(op, fmt.Errorf("query: %w", err))
		}
		items := out.Items
		if skip >= len(items) {
			skip -= len(items)
			continue
		}
		items = items[skip:]
		skip = 0

		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(items, &batch); err != nil {
			return nil, apperrors.Upstream(op, fmt.Errorf("unmarshal orders: %w", err))
		}
		orders = append(orders, batch...)
		if pageSize > 0 && len(orders) >= pageSize {
			return orders[:pageSize], nil
		}
	}
	return orders, nil
}

// Update applies a partial update and returns the new state. When
// expectedStatus is set the write only happens if the stored status still
// equals it; otherwise ErrStatusMismatch is returned.
func (s *Store) Update(ctx context.Context, orderID string, patch Patch, expectedStatus *Status) (*Order, error) {
	const op = "orders.Update"
	sets := map[string]any{"updated_at": s.nowFunc().UTC()}
	if patch.Status != nil {
		sets["status"] = *patch.Status
	}
	if patch.Items != nil {
		sets["items"] = patch.Items
	}
	if patch.Address != nil {
		sets["address"] = *patch.Address
	}
	if patch.PaymentMode != nil {
		sets["payment_mode"] = *patch.PaymentMode
	}
	if patch.Total != nil {
		sets["total"] = *patch.Total
	}

	fields := make([]string, 0, len(sets))
	for name := range sets {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	names := map[string]string{"#pk": "order_id"}
	values := map[string]types.AttributeValue{}
	clauses := make([]string, 0, len(fields))
	for i, name := range fields {
		av, err := attributevalue.Marshal(sets[name])
		if err != nil {
			return nil, apperrors.Upstream(op, fmt.Errorf("marshal %s: %w", name, err))
		}
		n, v := fmt.Sprintf("#f%d", i), fmt.Sprintf(":v%d", i)
		names[n] = name
		values[v] = av
		clauses = append(clauses, n+" = "+v)
	}

	cond := "attribute_exists(#pk)"
	if expectedStatus != nil {
		names["#s"] = "status"
		values[":expected"] = &types.AttributeValueMemberS{Value: string(*expectedStatus)}
		cond += " AND #s = :expected"
	}

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       orderKey(orderID),
		UpdateExpression:          awsString("SET " + strings.Join(clauses, ", ")),
		ConditionExpression:       &cond,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			if expectedStatus == nil {
				return nil, apperrors.NotFound(op, ErrOrderNotFound)
			}
			if _, getErr := s.Get(ctx, orderID); getErr != nil {
				return nil, getErr
			}
			return nil, apperrors.Conflict(op, ErrStatusMismatch)
		}
		return nil, apperrors.Upstream(op, fmt.Errorf("update item: %w", err))
	}

	var o Order
	if err := attributevalue.UnmarshalMap(out.Attributes, &o); err != nil {
		return nil, apperrors.Upstream(op, fmt.Errorf("unmarshal order: %w", err))
	}
	return &o, nil
}

func (s *Store) numberQuery() *dyn.QueryInput {
	return &dyn.QueryInput{
		TableName:                &s.tableName,
		IndexName:                awsString(NumberIndex),
		KeyConditionExpression:   awsString("#rt = :rt"),
		ExpressionAttributeNames: map[string]string{"#rt": "record_type"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rt": &types.AttributeValueMemberS{Value: recordType},
		},
		ScanIndexForward: awsBool(true),
	}
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool { return &b }
func awsInt32(n int32) *int32 { return &n }
