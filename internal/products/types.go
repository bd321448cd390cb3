package products

import (
	"time"

	"github.com/imrishuroy/go-storefront-orderflow/internal/money"
)

// Product is the item stored in the products table.
type Product struct {
	ProductID          string         `dynamodbav:"product_id" json:"id"`                                    // PK
	Title              string         `dynamodbav:"title" json:"title"`
	Description        string         `dynamodbav:"description" json:"description"`
	Price              money.Money    `dynamodbav:"price" json:"price"`
	DiscountPercentage float64        `dynamodbav:"discount_percentage" json:"discountPercentage"`
	Category           string         `dynamodbav:"category" json:"category"`
	SubCategory        string         `dynamodbav:"sub_category" json:"subCategory"`
	StockQuantity      map[string]int `dynamodbav:"stock_quantity,omitempty" json:"stockQuantity,omitempty"` // per size/variant
	Thumbnail          string         `dynamodbav:"thumbnail,omitempty" json:"thumbnail,omitempty"`
	Images             []string       `dynamodbav:"images,omitempty" json:"images,omitempty"`
	IsFeatured         bool           `dynamodbav:"is_featured" json:"isFeatured"`
	IsDeleted          bool           `dynamodbav:"is_deleted" json:"isDeleted"`
	CreatedAt          time.Time      `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt          time.Time      `dynamodbav:"updated_at" json:"updatedAt"`
}

// CreateInput is the payload for creating a product.
type CreateInput struct {
	Title              string         `json:"title" validate:"required"`
	Description        string         `json:"description" validate:"required"`
	Price              money.Money    `json:"price" validate:"required,gt=0"`
	DiscountPercentage float64        `json:"discountPercentage" validate:"gte=0,lte=100"`
	Category           string         `json:"category" validate:"required"`
	SubCategory        string         `json:"subCategory" validate:"required"`
	StockQuantity      map[string]int `json:"stockQuantity" validate:"required,min=1,dive,gte=0"`
	Thumbnail          string         `json:"thumbnail"`
	Images             []string       `json:"images" validate:"required,min=1,dive,required"`
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	Title              *string        `json:"title,omitempty" validate:"omitempty,min=1"`
	Description        *string        `json:"description,omitempty" validate:"omitempty,min=1"`
	Price              *money.Money   `json:"price,omitempty" validate:"omitempty,gt=0"`
	DiscountPercentage *float64       `json:"discountPercentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	Category           *string        `json:"category,omitempty"`
	SubCategory        *string        `json:"subCategory,omitempty"`
	StockQuantity      map[string]int `json:"stockQuantity,omitempty" validate:"omitempty,dive,gte=0"`
	Thumbnail          *string        `json:"thumbnail,omitempty"`
	Images             []string       `json:"images,omitempty"`
}

// ListQuery filters, orders and pages a product listing.
type ListQuery struct {
	Category     string
	SubCategory  string
	FeaturedOnly bool
	HideDeleted  bool
	// Text keeps products whose title or description contains it, ignoring case.
	Text string
	// SortBy is one of price, title, createdAt, discountPercentage; empty keeps store order.
	SortBy string
	Desc   bool
	Page   int
	Limit  int
}

// FeaturedPage is the featured listing envelope.
type FeaturedPage struct {
	Data        []Product `json:"data"`
	TotalCount  int       `json:"totalCount"`
	CurrentPage int       `json:"currentPage"`
	TotalPages  int       `json:"totalPages"`
}
