package handlers

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-storefront-orderflow/internal/carts"
	"github.com/imrishuroy/go-storefront-orderflow/internal/categories"
	"github.com/imrishuroy/go-storefront-orderflow/internal/checkout"
	"github.com/imrishuroy/go-storefront-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-storefront-orderflow/internal/orders"
	"github.com/imrishuroy/go-storefront-orderflow/internal/products"
)

// OrderService is the order API the routes call.
type OrderService interface {
	CreateOrder(ctx context.Context, in orders.CreateInput) (*orders.Order, error)
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	ListOrdersForUser(ctx context.Context, userID string) ([]orders.Order, error)
	ListAllOrders(ctx context.Context, page, pageSize int) (*orders.Page, error)
	UpdateOrder(ctx context.Context, orderID string, patch orders.Patch) (*orders.Order, error)
	MarkPaid(ctx context.Context, orderID string) (*orders.Order, error)
}

// IdempotencyStore remembers POST /orders responses per Idempotency-Key.
type IdempotencyStore interface {
	Begin(ctx context.Context, key, requestHash string) (*idempotency.Record, error)
	Complete(ctx context.Context, key, orderID string, responseStatus int, responseBody []byte) error
	Fail(ctx context.Context, key, note string) error
}

type CheckoutService interface {
	CreateSession(ctx context.Context, in checkout.CreateSessionInput) (*checkout.Session, error)
	ResolveOrderFromSession(ctx context.Context, sessionID string) (*orders.Order, error)
}

type CartService interface {
	Add(ctx context.Context, in carts.AddInput) (*carts.Item, error)
	List(ctx context.Context, userID string) ([]carts.Item, error)
	UpdateQuantity(ctx context.Context, userID, productID string, in carts.QuantityInput) (*carts.Item, error)
	Remove(ctx context.Context, userID, productID string) error
}

type ProductService interface {
	Create(ctx context.Context, in products.CreateInput) (*products.Product, error)
	Get(ctx context.Context, productID string) (*products.Product, error)
	List(ctx context.Context, q products.ListQuery) ([]products.Product, int, error)
	Featured(ctx context.Context, page, limit int) (*products.FeaturedPage, error)
	Update(ctx context.Context, productID string, patch products.Patch) (*products.Product, error)
	Delete(ctx context.Context, productID string) (*products.Product, error)
	Undelete(ctx context.Context, productID string) (*products.Product, error)
	ToggleFeatured(ctx context.Context, productID string) (*products.Product, error)
	Latest(ctx context.Context, category string) ([]products.Product, error)
	Search(ctx context.Context, query string) ([]products.Product, error)
	Suggestions(ctx context.Context, query string) ([]products.Product, error)
}

type CategoryService interface {
	Create(ctx context.Context, in categories.CreateInput) (*categories.Category, error)
	List(ctx context.Context) ([]categories.Category, error)
}

// HandlerConfig groups dependencies for the HTTP routes. Idempotency may be
// nil, in which case the Idempotency-Key header is ignored.
type HandlerConfig struct {
	Orders      OrderService
	Idempotency IdempotencyStore
	Checkout    CheckoutService
	Carts       CartService
	Products    ProductService
	Categories  CategoryService
	Validate    *validatorv10.Validate
	Log         *slog.Logger
}

// Register mounts every storefront route on r.
func Register(r gin.IRouter, cfg HandlerConfig) {
	RegisterOrdersRoutes(r, cfg)
	RegisterCheckoutRoutes(r, cfg)
	RegisterCartRoutes(r, cfg)
	RegisterProductsRoutes(r, cfg)
	RegisterCategoriesRoutes(r, cfg)
}

// intQuery parses an optional non-negative integer query parameter.
func intQuery(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(c, "invalid_query", name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
