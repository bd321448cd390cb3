package checkout

import (
	"context"
	"errors"

	"github.com/imrishuroy/go-storefront-orderflow/internal/money"
)

// MetadataOrderKey is the session metadata key carrying the local order id.
const MetadataOrderKey = "order_id"

// Payment statuses reported by the provider.
const (
	PaymentStatusPaid   = "paid"
	PaymentStatusUnpaid = "unpaid"
)

var (
	ErrSessionNotFound = errors.New("checkout session not found")
	// ErrOrderReferenceMissing means the session exists but carries no order id.
	ErrOrderReferenceMissing = errors.New("checkout session has no order reference")
	ErrPayerMissing          = errors.New("no order payer configured")
)

// LineItem is one provider-side line. UnitPrice is in major units and is
// converted to minor units when the session is built.
type LineItem struct {
	Name      string
	UnitPrice money.Money
	Quantity  int64
}

// Session is the provider's view of a hosted checkout.
type Session struct {
	ID            string `json:"id"`
	URL           string `json:"url,omitempty"`
	OrderRef      string `json:"-"`
	Status        string `json:"status,omitempty"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
}

func (s Session) Paid() bool { return s.PaymentStatus == PaymentStatusPaid }

// SessionProvider creates and retrieves hosted payment sessions.
type SessionProvider interface {
	CreateSession(ctx context.Context, orderRef string, items []LineItem) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
}
