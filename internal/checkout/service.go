package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-storefront-orderflow/internal/apperrors"
	"github.com/imrishuroy/go-storefront-orderflow/internal/money"
	"github.com/imrishuroy/go-storefront-orderflow/internal/orders"
)

// EventPaymentConfirmed is published when a paid session is observed for an
// order that is still Pending.
const EventPaymentConfirmed = "payment.confirmed"

// OrderReader loads stored orders.
type OrderReader interface {
	FindOrder(ctx context.Context, orderID string) (*orders.Order, error)
}

// OrderPayer applies the Pending -> Paid transition.
type OrderPayer interface {
	MarkPaid(ctx context.Context, orderID string) (*orders.Order, error)
}

// Publisher sends JSON messages to the payment confirmation queue.
type Publisher interface {
	PublishJSON(ctx context.Context, payload any, attributes map[string]string) error
}

// PaymentConfirmed is the queue message consumed by the worker.
type PaymentConfirmed struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId"`
	OrderID   string `json:"orderId"`
}

// CreateSessionInput mirrors the storefront's checkout request: the cart
// lines as displayed and the order created from them.
type CreateSessionInput struct {
	Products []CartLine `json:"products" validate:"required,min=1,dive"`
	Order    *OrderRef  `json:"order" validate:"required"`
}

type CartLine struct {
	Product  LineProduct `json:"product"`
	Quantity int64       `json:"quantity" validate:"required,min=1"`
}

type LineProduct struct {
	ID    string      `json:"id"`
	Title string      `json:"title" validate:"required"`
	Price money.Money `json:"price" validate:"gte=0"`
}

type OrderRef struct {
	ID string `json:"id" validate:"required"`
}

// Service creates checkout sessions and maps returning sessions back to orders.
type Service struct {
	provider  SessionProvider
	orders    OrderReader
	payer     OrderPayer
	publisher Publisher
	validate  *validatorv10.Validate
	log       *slog.Logger
}

// Deps groups the collaborators of a Service. Publisher and Payer may be nil.
// Without a publisher paid sessions are not forwarded to the worker; without
// a payer ConfirmPayment fails with ErrPayerMissing.
type Deps struct {
	Provider  SessionProvider
	Orders    OrderReader
	Payer     OrderPayer
	Publisher Publisher
	Validate  *validatorv10.Validate
	Log       *slog.Logger
}

func NewService(d Deps) *Service {
	return &Service{
		provider:  d.Provider,
		orders:    d.Orders,
		payer:     d.Payer,
		publisher: d.Publisher,
		validate:  d.Validate,
		log:       d.Log,
	}
}

// CreateSession builds one provider line per cart line and stores the order
// id in the session metadata. Prices are taken as submitted.
func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (*Session, error) {
	const op = "checkout.CreateSession"
	if err := s.validate.Struct(in); err != nil {
		return nil, apperrors.Validation(op, err)
	}

	items := make([]LineItem, 0, len(in.Products))
	for _, line := range in.Products {
		items = append(items, LineItem{
			Name:      line.Product.Title,
			UnitPrice: line.Product.Price,
			Quantity:  line.Quantity,
		})
	}

	sess, err := s.provider.CreateSession(ctx, in.Order.ID, items)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "checkout session created", "session_id", sess.ID, "order_id", in.Order.ID)
	return sess, nil
}

// ResolveOrderFromSession returns the order referenced by a session's
// metadata. It never changes the order. When the session is paid and the
// order is still Pending a confirmation is queued for the worker; a publish
// failure is logged and does not fail the lookup.
func (s *Service) ResolveOrderFromSession(ctx context.Context, sessionID string) (*orders.Order, error) {
	const op = "checkout.ResolveOrderFromSession"
	if sessionID == "" {
		return nil, apperrors.Validation(op, errors.New("session id is required"))
	}

	sess, err := s.provider.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.OrderRef == "" {
		return nil, apperrors.Validation(op, ErrOrderReferenceMissing)
	}

	o, err := s.orders.FindOrder(ctx, sess.OrderRef)
	if err != nil {
		return nil, err
	}

	if sess.Paid() && o.Status == orders.StatusPending && s.publisher != nil {
		msg := PaymentConfirmed{Event: EventPaymentConfirmed, SessionID: sess.ID, OrderID: o.OrderID}
		if err := s.publisher.PublishJSON(ctx, msg, map[string]string{"event": EventPaymentConfirmed}); err != nil {
			s.log.WarnContext(ctx, "payment confirmation not queued",
				"session_id", sess.ID, "order_id", o.OrderID, "err", err)
		}
	}
	return o, nil
}

// ConfirmPayment re-reads the session and marks the order paid only if the
// provider reports it paid and the session still points at the same order.
func (s *Service) ConfirmPayment(ctx context.Context, msg PaymentConfirmed) (*orders.Order, error) {
	const op = "checkout.ConfirmPayment"
	if msg.SessionID == "" || msg.OrderID == "" {
		return nil, apperrors.Validation(op, errors.New("session id and order id are required"))
	}
	if s.payer == nil {
		return nil, apperrors.Upstream(op, ErrPayerMissing)
	}

	sess, err := s.provider.GetSession(ctx, msg.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.OrderRef != msg.OrderID {
		return nil, apperrors.Conflict(op, fmt.Errorf("session %s references order %q, message says %q", sess.ID, sess.OrderRef, msg.OrderID))
	}
	if !sess.Paid() {
		return nil, apperrors.Conflict(op, fmt.Errorf("session %s payment status is %q", sess.ID, sess.PaymentStatus))
	}

	o, err := s.payer.MarkPaid(ctx, msg.OrderID)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "order marked paid", "order_id", o.OrderID, "session_id", sess.ID)
	return o, nil
}
