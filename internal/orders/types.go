package orders

import (
	"time"

	"github.com/imrishuroy/go-storefront-orderflow/internal/money"
	"github.com/imrishuroy/go-storefront-orderflow/internal/products"
)

// recordType is the constant hash key of the index that lists every order by number.
const recordType = "order"

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	OrderID     string      `dynamodbav:"order_id" json:"id"` // PK
	UserID      string      `dynamodbav:"user_id" json:"user"`
	Items       []Item      `dynamodbav:"items" json:"items"`
	Address     Address     `dynamodbav:"address" json:"address"`
	PaymentMode string      `dynamodbav:"payment_mode" json:"paymentMode"`
	Total       money.Money `dynamodbav:"total" json:"total"` // as submitted by the client, not recomputed
	OrderNo     int64       `dynamodbav:"order_no" json:"orderNo"`
	Status      Status      `dynamodbav:"status" json:"status"`
	RecordType  string      `dynamodbav:"record_type" json:"-"`
	CreatedAt   time.Time   `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt   time.Time   `dynamodbav:"updated_at" json:"updatedAt"`
}

// Item is one order line. Product is filled in on reads and never stored.
type Item struct {
	ProductID string            `dynamodbav:"product_id" json:"product" validate:"required"`
	Quantity  int               `dynamodbav:"quantity" json:"quantity" validate:"required,min=1"`
	Product   *products.Product `dynamodbav:"-" json:"productDetails,omitempty" validate:"-"`
}

// Address is the shipping address captured at checkout.
type Address struct {
	FullName   string `dynamodbav:"full_name,omitempty" json:"fullName,omitempty"`
	Street     string `dynamodbav:"street" json:"street" validate:"required"`
	City       string `dynamodbav:"city" json:"city" validate:"required"`
	State      string `dynamodbav:"state,omitempty" json:"state,omitempty"`
	PostalCode string `dynamodbav:"postal_code,omitempty" json:"postalCode,omitempty"`
	Country    string `dynamodbav:"country" json:"country" validate:"required"`
	Phone      string `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
}

// CreateInput is the payload for creating an order from a cart.
type CreateInput struct {
	UserID      string       `json:"user" validate:"required"`
	Items       []Item       `json:"items" validate:"required,min=1,dive"`
	Address     *Address     `json:"address" validate:"required"`
	PaymentMode string       `json:"paymentMode" validate:"required"`
	Total       *money.Money `json:"total" validate:"required,gte=0"`
}

// Patch is a partial update; nil fields are left untouched. The order number
// and owner are not patchable.
type Patch struct {
	Status      *Status      `json:"status,omitempty"`
	Items       []Item       `json:"items,omitempty" validate:"omitempty,dive"`
	Address     *Address     `json:"address,omitempty"`
	PaymentMode *string      `json:"paymentMode,omitempty" validate:"omitempty,min=1"`
	Total       *money.Money `json:"total,omitempty" validate:"omitempty,gte=0"`
}

func (p Patch) empty() bool {
	return p.Status == nil && p.Items == nil && p.Address == nil && p.PaymentMode == nil && p.Total == nil
}

// Page is one window of the full order listing.
type Page struct {
	Orders     []Order
	TotalCount int
}
