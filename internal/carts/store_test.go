package carts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-storefront-orderflow/internal/apperrors"
	"github.com/imrishuroy/go-storefront-orderflow/internal/aws/awstest"
	"github.com/imrishuroy/go-storefront-orderflow/internal/money"
	"github.com/imrishuroy/go-storefront-orderflow/internal/products"
	"github.com/imrishuroy/go-storefront-orderflow/internal/validation"
)

const cartsTable = "carts"

func newTestStore() (*Store, *awstest.Dynamo) {
	db := awstest.NewDynamo()
	db.DefineTable(cartsTable, "user_id", "product_id")
	return NewStore(db, cartsTable), db
}

func TestStore_PutReplacesLine(t *testing.T) {
	s, db := newTestStore()
	ctx := context.Background()

	_, err := s.Put(ctx, Item{UserID: "u-1", ProductID: "p-1", Quantity: 1})
	require.NoError(t, err)
	_, err = s.Put(ctx, Item{UserID: "u-1", ProductID: "p-1", Quantity: 3})
	require.NoError(t, err)
	_, err = s.Put(ctx, Item{UserID: "u-2", ProductID: "p-1", Quantity: 1})
	require.NoError(t, err)

	assert.Equal(t, 2, db.Len(cartsTable))
	items, err := s.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
}

func TestStore_UpdateQuantityAndRemove(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	_, err := s.Put(ctx, Item{UserID: "u-1", ProductID: "p-1", Quantity: 1})
	require.NoError(t, err)

	it, err := s.UpdateQuantity(ctx, "u-1", "p-1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, it.Quantity)

	_, err = s.UpdateQuantity(ctx, "u-1", "p-9", 5)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	require.NoError(t, s.Remove(ctx, "u-1", "p-1"))
	err = s.Remove(ctx, "u-1", "p-1")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestStore_ClearUserBatchesDeletes(t *testing.T) {
	s, db := newTestStore()
	ctx := context.Background()
	for i := 0; i < 30; i++ {
		_, err := s.Put(ctx, Item{UserID: "u-1", ProductID: fmt.Sprintf("p-%02d", i), Quantity: 1})
		require.NoError(t, err)
	}
	_, err := s.Put(ctx, Item{UserID: "u-2", ProductID: "p-00", Quantity: 1})
	require.NoError(t, err)

	n, err := s.ClearUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	assert.Equal(t, 2, db.Calls("BatchWriteItem"), "30 deletes need two batches")
	assert.Equal(t, 1, db.Len(cartsTable), "other users' carts are untouched")

	n, err = s.ClearUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

type unprocessedDynamo struct {
	*awstest.Dynamo
}

func (u unprocessedDynamo) BatchWriteItem(ctx context.Context, params *dyn.BatchWriteItemInput, optFns ...func(*dyn.Options)) (*dyn.BatchWriteItemOutput, error) {
	return &dyn.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{
		cartsTable: params.RequestItems[cartsTable][:1],
	}}, nil
}

func TestStore_ClearUserReportsUnprocessed(t *testing.T) {
	db := awstest.NewDynamo()
	db.DefineTable(cartsTable, "user_id", "product_id")
	s := NewStore(unprocessedDynamo{db}, cartsTable)
	ctx := context.Background()
	_, err := s.Put(ctx, Item{UserID: "u-1", ProductID: "p-1", Quantity: 1})
	require.NoError(t, err)
	_, err = s.Put(ctx, Item{UserID: "u-1", ProductID: "p-2", Quantity: 1})
	require.NoError(t, err)

	n, err := s.ClearUser(ctx, "u-1")
	assert.True(t, apperrors.Is(err, apperrors.KindUpstream))
	assert.Equal(t, 1, n)
}

func TestStore_ClearUserQueryFailure(t *testing.T) {
	s, db := newTestStore()
	db.FailOn("Query", errors.New("timeout"))

	_, err := s.ClearUser(context.Background(), "u-1")
	assert.True(t, apperrors.Is(err, apperrors.KindUpstream))
}

type stubCatalog map[string]products.Product

func (c stubCatalog) Get(_ context.Context, id string) (*products.Product, error) {
	p, ok := c[id]
	if !ok {
		return nil, apperrors.NotFound("stub", products.ErrProductNotFound)
	}
	return &p, nil
}

func (c stubCatalog) BatchGet(_ context.Context, ids []string) (map[string]products.Product, error) {
	out := map[string]products.Product{}
	for _, id := range ids {
		if p, ok := c[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func TestService_AddAndList(t *testing.T) {
	s, _ := newTestStore()
	catalog := stubCatalog{
		"p-1":   {ProductID: "p-1", Title: "Abaya", Price: money.MustParse("250")},
		"p-old": {ProductID: "p-old", IsDeleted: true},
	}
	svc := NewService(s, catalog, validation.New(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	it, err := svc.Add(ctx, AddInput{UserID: "u-1", ProductID: "p-1", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, "Abaya", it.Product.Title)

	_, err = svc.Add(ctx, AddInput{UserID: "u-1", ProductID: "p-old", Quantity: 1})
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	_, err = svc.Add(ctx, AddInput{UserID: "u-1", ProductID: "p-1"})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	list, err := svc.List(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Product)
	assert.Equal(t, 2, list[0].Quantity)

	_, err = svc.UpdateQuantity(ctx, "u-1", "p-1", QuantityInput{Quantity: 0})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	n, err := svc.ClearUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
