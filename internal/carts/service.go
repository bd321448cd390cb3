package carts

import (
	"context"
	"errors"
	"log/slog"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-storefront-orderflow/internal/apperrors"
	"github.com/imrishuroy/go-storefront-orderflow/internal/products"
)

// ProductLookup resolves cart lines to catalog entries.
type ProductLookup interface {
	Get(ctx context.Context, productID string) (*products.Product, error)
	BatchGet(ctx context.Context, ids []string) (map[string]products.Product, error)
}

type Service struct {
	store    *Store
	products ProductLookup
	validate *validatorv10.Validate
	log      *slog.Logger
}

func NewService(store *Store, catalog ProductLookup, validate *validatorv10.Validate, log *slog.Logger) *Service {
	return &Service{store: store, products: catalog, validate: validate, log: log}
}

// Add puts a product in the user's cart. The product must exist and not be
// soft-deleted.
func (s *Service) Add(ctx context.Context, in AddInput) (*Item, error) {
	const op = "carts.Add"
	if err := s.validate.Struct(in); err != nil {
		return nil, apperrors.Validation(op, err)
	}
	p, err := s.products.Get(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if p.IsDeleted {
		return nil, apperrors.NotFound(op, products.ErrProductNotFound)
	}

	it, err := s.store.Put(ctx, Item{
		UserID:    in.UserID,
		ProductID: in.ProductID,
		Quantity:  in.Quantity,
		Size:      in.Size,
	})
	if err != nil {
		return nil, err
	}
	it.Product = p
	return it, nil
}

// List returns the user's cart with product details. Lines whose product
// no longer resolves are returned without details.
func (s *Service) List(ctx context.Context, userID string) ([]Item, error) {
	if userID == "" {
		return nil, apperrors.Validation("carts.List", errors.New("user id is required"))
	}
	items, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return items, nil
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	found, err := s.products.BatchGet(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if p, ok := found[items[i].ProductID]; ok {
			items[i].Product = &p
		}
	}
	return items, nil
}

func (s *Service) UpdateQuantity(ctx context.Context, userID, productID string, in QuantityInput) (*Item, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, apperrors.Validation("carts.UpdateQuantity", err)
	}
	return s.store.UpdateQuantity(ctx, userID, productID, in.Quantity)
}

func (s *Service) Remove(ctx context.Context, userID, productID string) error {
	return s.store.Remove(ctx, userID, productID)
}

// ClearUser empties the cart. Order creation calls this after the order is
// persisted.
func (s *Service) ClearUser(ctx context.Context, userID string) (int, error) {
	n, err := s.store.ClearUser(ctx, userID)
	if err != nil {
		return n, err
	}
	s.log.InfoContext(ctx, "cart cleared", "user_id", userID, "items", n)
	return n, nil
}
