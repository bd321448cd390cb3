package orders

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-storefront-orderflow/internal/apperrors"
	"github.com/imrishuroy/go-storefront-orderflow/internal/aws/awstest"
	"github.com/imrishuroy/go-storefront-orderflow/internal/money"
)

const ordersTable = "orders"

func newTestDB() *awstest.Dynamo {
	db := awstest.NewDynamo()
	db.DefineTable(ordersTable, "order_id")
	db.DefineIndex(ordersTable, UserIndex, "user_id", "order_no")
	db.DefineIndex(ordersTable, NumberIndex, "record_type", "order_no")
	return db
}

func newTestStore(db *awstest.Dynamo) *Store {
	s := NewStore(db, ordersTable)
	s.nowFunc = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func sampleOrder(id, user string, no int64) Order {
	return Order{
		OrderID:     id,
		UserID:      user,
		Items:       []Item{{ProductID: "p-1", Quantity: 2}},
		Address:     Address{Street: "1 Marina Walk", City: "Dubai", Country: "AE"},
		PaymentMode: "card",
		Total:       money.MustParse("39.98"),
		OrderNo:     no,
		Status:      StatusPending,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	db := newTestDB()
	s := newTestStore(db)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, sampleOrder("o-1", "u-1", 7)))

	got, err := s.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.OrderNo)
	assert.Equal(t, StatusPending, got.Status)
	assert.True(t, got.Total.Decimal().Equal(money.MustParse("39.98").Decimal()))
	assert.Equal(t, recordType, got.RecordType)
	assert.False(t, got.CreatedAt.IsZero())

	err = s.Create(ctx, sampleOrder("o-1", "u-1", 8))
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
	assert.ErrorIs(t, err, ErrOrderExists)
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(newTestDB())

	_, err := s.Get(context.Background(), "nope")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestStore_ListWindowsByOrderNumber(t *testing.T) {
	db := newTestDB()
	s := newTestStore(db)
	ctx := context.Background()

	// insert out of order; the index orders by number
	for _, no := range []int64{3, 1, 5, 2, 4} {
		require.NoError(t, s.Create(ctx, sampleOrder(fmt.Sprintf("o-%d", no), "u-1", no)))
	}

	total, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	page, err := s.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(3), page[0].OrderNo)
	assert.Equal(t, int64(4), page[1].OrderNo)

	last, err := s.List(ctx, 3, 2)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, int64(5), last[0].OrderNo)

	beyond, err := s.List(ctx, 9, 2)
	require.NoError(t, err)
	assert.Empty(t, beyond)

	all, err := s.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestStore_ListByUser(t *testing.T) {
	db := newTestDB()
	s := newTestStore(db)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, sampleOrder("a", "u-1", 2)))
	require.NoError(t, s.Create(ctx, sampleOrder("b", "u-2", 3)))
	require.NoError(t, s.Create(ctx, sampleOrder("c", "u-1", 1)))

	list, err := s.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].OrderID)
	assert.Equal(t, "a", list[1].OrderID)

	none, err := s.ListByUser(ctx, "u-3")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestStore_UpdateGuardsStatus(t *testing.T) {
	db := newTestDB()
	s := newTestStore(db)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, sampleOrder("o-1", "u-1", 1)))

	paid := StatusPaid
	pending := StatusPending
	o, err := s.Update(ctx, "o-1", Patch{Status: &paid}, &pending)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, o.Status)
	assert.Equal(t, int64(1), o.OrderNo, "untouched fields survive")

	// a second writer still expecting Pending loses
	cancelled := StatusCancelled
	_, err = s.Update(ctx, "o-1", Patch{Status: &cancelled}, &pending)
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
	assert.ErrorIs(t, err, ErrStatusMismatch)

	_, err = s.Update(ctx, "missing", Patch{Status: &cancelled}, &pending)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	_, err = s.Update(ctx, "missing", Patch{PaymentMode: strPtr("cod")}, nil)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestStore_UpstreamFailure(t *testing.T) {
	db := newTestDB()
	s := newTestStore(db)
	db.FailOn("GetItem", errors.New("throttled"))

	_, err := s.Get(context.Background(), "o-1")
	assert.True(t, apperrors.Is(err, apperrors.KindUpstream))
}

func TestStore_PreservesItemOnDisk(t *testing.T) {
	db := newTestDB()
	s := newTestStore(db)
	require.NoError(t, s.Create(context.Background(), sampleOrder("o-1", "u-1", 4)))

	item := db.Item(ordersTable, "o-1")
	require.NotNil(t, item)
	assert.Equal(t, &types.AttributeValueMemberS{Value: recordType}, item["record_type"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "4"}, item["order_no"])
	line := item["items"].(*types.AttributeValueMemberL).Value[0].(*types.AttributeValueMemberM).Value
	assert.Len(t, line, 2, "resolved product details are never stored")
}

func strPtr(s string) *string { return &s }
