package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/imrishuroy/go-storefront-orderflow/internal/apperrors"
)

// SessionAPI is the subset of the Stripe checkout session client used here.
type SessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeConfig holds the fixed parts of every session.
type StripeConfig struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

// URLsFor derives the redirect targets from the storefront base URL.
// Stripe substitutes {CHECKOUT_SESSION_ID} in the success URL.
func URLsFor(storefrontURL string) (success, cancel string) {
	base := strings.TrimRight(storefrontURL, "/")
	return base + "/order-success/{CHECKOUT_SESSION_ID}", base + "/cart"
}

// NewStripeClient returns a Stripe API client with a bounded HTTP timeout and
// no network retries.
func NewStripeClient(secretKey string, timeout time.Duration) *client.API {
	cfg := func() *stripe.BackendConfig {
		return &stripe.BackendConfig{
			HTTPClient:        &http.Client{Timeout: timeout},
			MaxNetworkRetries: stripe.Int64(0),
		}
	}
	sc := &client.API{}
	sc.Init(secretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg()),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg()),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg()),
	})
	return sc
}

// StripeGateway is the SessionProvider backed by Stripe Checkout.
type StripeGateway struct {
	sessions SessionAPI
	cfg      StripeConfig
}

func NewStripeGateway(sessions SessionAPI, cfg StripeConfig) *StripeGateway {
	if cfg.Currency == "" {
		cfg.Currency = "aed"
	}
	return &StripeGateway{sessions: sessions, cfg: cfg}
}

func (g *StripeGateway) CreateSession(ctx context.Context, orderRef string, items []LineItem) (*Session, error) {
	const op = "checkout.CreateSession"
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(g.cfg.SuccessURL),
		CancelURL:          stripe.String(g.cfg.CancelURL),
	}
	for _, it := range items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(g.cfg.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(it.Name),
				},
				UnitAmount: stripe.Int64(it.UnitPrice.MinorUnits()),
			},
			Quantity: stripe.Int64(it.Quantity),
		})
	}
	params.AddMetadata(MetadataOrderKey, orderRef)
	params.Context = ctx

	cs, err := g.sessions.New(params)
	if err != nil {
		return nil, apperrors.Upstream(op, fmt.Errorf("stripe create session: %w", err))
	}
	return toSession(cs), nil
}

func (g *StripeGateway) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	const op = "checkout.GetSession"
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	cs, err := g.sessions.Get(sessionID, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && (se.HTTPStatusCode == http.StatusNotFound || se.Code == stripe.ErrorCodeResourceMissing) {
			return nil, apperrors.NotFound(op, ErrSessionNotFound)
		}
		return nil, apperrors.Upstream(op, fmt.Errorf("stripe get session: %w", err))
	}
	return toSession(cs), nil
}

func toSession(cs *stripe.CheckoutSession) *Session {
	return &Session{
		ID:            cs.ID,
		URL:           cs.URL,
		OrderRef:      cs.Metadata[MetadataOrderKey],
		Status:        string(cs.Status),
		PaymentStatus: string(cs.PaymentStatus),
	}
}
