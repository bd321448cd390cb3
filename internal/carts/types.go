package carts

import (
	"time"

	"github.com/imrishuroy/go-storefront-orderflow/internal/products"
)

// Item is one line of a user's cart. The carts table is keyed by
// (user_id, product_id), so adding the same product again replaces the line.
type Item struct {
	UserID    string            `dynamodbav:"user_id" json:"user"`       // PK
	ProductID string            `dynamodbav:"product_id" json:"product"` // SK
	Quantity  int               `dynamodbav:"quantity" json:"quantity"`
	Size      string            `dynamodbav:"size,omitempty" json:"size,omitempty"`
	AddedAt   time.Time         `dynamodbav:"added_at" json:"addedAt"`
	UpdatedAt time.Time         `dynamodbav:"updated_at" json:"updatedAt"`
	Product   *products.Product `dynamodbav:"-" json:"productDetails,omitempty"`
}

// AddInput is the payload for putting a product in a cart.
type AddInput struct {
	UserID    string `json:"user" validate:"required"`
	ProductID string `json:"product" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
	Size      string `json:"size"`
}

// QuantityInput changes the quantity of an existing line.
type QuantityInput struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}
