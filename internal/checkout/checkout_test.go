package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"github.com/imrishuroy/go-storefront-orderflow/internal/apperrors"
	"github.com/imrishuroy/go-storefront-orderflow/internal/aws/awstest"
	"github.com/imrishuroy/go-storefront-orderflow/internal/counter"
	"github.com/imrishuroy/go-storefront-orderflow/internal/money"
	"github.com/imrishuroy/go-storefront-orderflow/internal/orders"
	"github.com/imrishuroy/go-storefront-orderflow/internal/validation"
)

// fakeStripe keeps sessions in memory the way the hosted service would.
type fakeStripe struct {
	mu       sync.Mutex
	created  []*stripe.CheckoutSessionParams
	sessions map[string]*stripe.CheckoutSession
	newErr   error
}

func newFakeStripe() *fakeStripe {
	return &fakeStripe{sessions: map[string]*stripe.CheckoutSession{}}
}

func (f *fakeStripe) New(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	f.created = append(f.created, p)
	id := fmt.Sprintf("cs_test_%d", len(f.created))
	cs := &stripe.CheckoutSession{
		ID:            id,
		URL:           "https://checkout.stripe.test/" + id,
		Metadata:      p.Metadata,
		Status:        stripe.CheckoutSessionStatusOpen,
		PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
	}
	f.sessions[id] = cs
	return cs, nil
}

func (f *fakeStripe) Get(id string, _ *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cs, ok := f.sessions[id]
	if !ok {
		return nil, &stripe.Error{HTTPStatusCode: 404, Code: stripe.ErrorCodeResourceMissing, Msg: "No such checkout.session: " + id}
	}
	return cs, nil
}

func (f *fakeStripe) pay(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id].Status = stripe.CheckoutSessionStatusComplete
	f.sessions[id].PaymentStatus = stripe.CheckoutSessionPaymentStatusPaid
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []any
	err      error
}

func (p *recordingPublisher) PublishJSON(_ context.Context, payload any, _ map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, payload)
	return nil
}

type noopCarts struct{}

func (noopCarts) ClearUser(context.Context, string) (int, error) { return 0, nil }

type fixture struct {
	svc       *Service
	orders    *orders.Service
	stripe    *fakeStripe
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := awstest.NewDynamo()
	db.DefineTable("orders", "order_id")
	db.DefineIndex("orders", orders.UserIndex, "user_id", "order_no")
	db.DefineIndex("orders", orders.NumberIndex, "record_type", "order_no")
	db.DefineTable("counters", "name")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := validation.New()
	orderSvc := orders.NewService(orders.Deps{
		Store:    orders.NewStore(db, "orders"),
		Sequence: counter.NewStore(db, "counters"),
		Carts:    noopCarts{},
		Validate: v,
		Log:      log,
	})

	success, cancel := URLsFor("https://shop.example/")
	f := &fixture{orders: orderSvc, stripe: newFakeStripe(), publisher: &recordingPublisher{}}
	f.svc = NewService(Deps{
		Provider:  NewStripeGateway(f.stripe, StripeConfig{SuccessURL: success, CancelURL: cancel}),
		Orders:    orderSvc,
		Payer:     orderSvc,
		Publisher: f.publisher,
		Validate:  v,
		Log:       log,
	})
	return f
}

func (f *fixture) createOrder(t *testing.T) *orders.Order {
	t.Helper()
	total := money.MustParse("39.99")
	o, err := f.orders.CreateOrder(context.Background(), orders.CreateInput{
		UserID:      "u-1",
		Items:       []orders.Item{{ProductID: "p-1", Quantity: 2}},
		Address:     &orders.Address{Street: "1 Marina Walk", City: "Dubai", Country: "AE"},
		PaymentMode: "card",
		Total:       &total,
	})
	require.NoError(t, err)
	return o
}

func sessionInput(orderID string, price string, qty int64) CreateSessionInput {
	return CreateSessionInput{
		Products: []CartLine{{Product: LineProduct{ID: "p-1", Title: "Linen shirt", Price: money.MustParse(price)}, Quantity: qty}},
		Order:    &OrderRef{ID: orderID},
	}
}

func TestCreateSession_BuildsStripeParams(t *testing.T) {
	f := newFixture(t)

	sess, err := f.svc.CreateSession(context.Background(), sessionInput("o-1", "19.995", 2))
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.ID)

	require.Len(t, f.stripe.created, 1)
	p := f.stripe.created[0]
	require.Len(t, p.LineItems, 1)
	li := p.LineItems[0]
	assert.Equal(t, int64(2000), *li.PriceData.UnitAmount, "19.995 rounds to 2000 minor units")
	assert.Equal(t, int64(2), *li.Quantity)
	assert.Equal(t, "aed", *li.PriceData.Currency)
	assert.Equal(t, "Linen shirt", *li.PriceData.ProductData.Name)
	assert.Equal(t, "payment", *p.Mode)
	assert.Equal(t, []*string{stripe.String("card")}, p.PaymentMethodTypes)
	assert.Equal(t, "https://shop.example/order-success/{CHECKOUT_SESSION_ID}", *p.SuccessURL)
	assert.Equal(t, "https://shop.example/cart", *p.CancelURL)
	assert.Equal(t, "o-1", p.Metadata[MetadataOrderKey])
}

func TestCreateSession_RejectsMissingInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateSession(ctx, CreateSessionInput{Order: &OrderRef{ID: "o-1"}})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	in := sessionInput("o-1", "10", 1)
	in.Order = nil
	_, err = f.svc.CreateSession(ctx, in)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	assert.Empty(t, f.stripe.created, "nothing reaches the provider")
}

func TestCreateSession_ProviderFailureIsUpstream(t *testing.T) {
	f := newFixture(t)
	f.stripe.newErr = &stripe.Error{HTTPStatusCode: 500, Msg: "boom"}

	_, err := f.svc.CreateSession(context.Background(), sessionInput("o-1", "10", 1))
	assert.True(t, apperrors.Is(err, apperrors.KindUpstream))
}

func TestResolveOrderFromSession_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createOrder(t)

	sess, err := f.svc.CreateSession(ctx, sessionInput(created.OrderID, "19.99", 2))
	require.NoError(t, err)

	got, err := f.svc.ResolveOrderFromSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, created.OrderID, got.OrderID)
	assert.Equal(t, orders.StatusPending, got.Status)
	assert.Empty(t, f.publisher.messages, "unpaid sessions are not forwarded")
}

func TestResolveOrderFromSession_DistinctFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ResolveOrderFromSession(ctx, "")
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	_, err = f.svc.ResolveOrderFromSession(ctx, "cs_missing")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	assert.ErrorIs(t, err, ErrSessionNotFound)

	f.stripe.sessions["cs_bare"] = &stripe.CheckoutSession{ID: "cs_bare"}
	_, err = f.svc.ResolveOrderFromSession(ctx, "cs_bare")
	assert.ErrorIs(t, err, ErrOrderReferenceMissing)
	assert.NotErrorIs(t, err, ErrSessionNotFound)

	sess, err := f.svc.CreateSession(ctx, sessionInput("no-such-order", "5", 1))
	require.NoError(t, err)
	_, err = f.svc.ResolveOrderFromSession(ctx, sess.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestResolveOrderFromSession_PaidQueuesConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createOrder(t)
	sess, err := f.svc.CreateSession(ctx, sessionInput(created.OrderID, "39.99", 1))
	require.NoError(t, err)
	f.stripe.pay(sess.ID)

	got, err := f.svc.ResolveOrderFromSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, got.Status, "reconciliation itself never writes")
	require.Len(t, f.publisher.messages, 1)
	msg := f.publisher.messages[0].(PaymentConfirmed)
	assert.Equal(t, PaymentConfirmed{Event: EventPaymentConfirmed, SessionID: sess.ID, OrderID: created.OrderID}, msg)

	paid, err := f.svc.ConfirmPayment(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, paid.Status)

	// redelivery is harmless
	again, err := f.svc.ConfirmPayment(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, again.Status)
}

func TestResolveOrderFromSession_PublishFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createOrder(t)
	sess, err := f.svc.CreateSession(ctx, sessionInput(created.OrderID, "39.99", 1))
	require.NoError(t, err)
	f.stripe.pay(sess.ID)
	f.publisher.err = errors.New("queue unavailable")

	got, err := f.svc.ResolveOrderFromSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, created.OrderID, got.OrderID)
}

func TestConfirmPayment_RequiresPaidMatchingSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createOrder(t)
	sess, err := f.svc.CreateSession(ctx, sessionInput(created.OrderID, "39.99", 1))
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(ctx, PaymentConfirmed{SessionID: sess.ID, OrderID: created.OrderID})
	assert.True(t, apperrors.Is(err, apperrors.KindConflict), "unpaid session")

	f.stripe.pay(sess.ID)
	_, err = f.svc.ConfirmPayment(ctx, PaymentConfirmed{SessionID: sess.ID, OrderID: "someone-else"})
	assert.True(t, apperrors.Is(err, apperrors.KindConflict), "mismatched order")

	o, err := f.orders.FindOrder(ctx, created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, o.Status)
}

func TestConfirmPayment_WithoutPayer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createOrder(t)
	sess, err := f.svc.CreateSession(ctx, sessionInput(created.OrderID, "39.99", 1))
	require.NoError(t, err)
	f.stripe.pay(sess.ID)

	readOnly := NewService(Deps{
		Provider: f.svc.provider,
		Orders:   f.orders,
		Validate: f.svc.validate,
		Log:      f.svc.log,
	})
	_, err = readOnly.ConfirmPayment(ctx, PaymentConfirmed{SessionID: sess.ID, OrderID: created.OrderID})
	assert.ErrorIs(t, err, ErrPayerMissing)
	assert.True(t, apperrors.Is(err, apperrors.KindUpstream), "left for redelivery")

	o, err := f.orders.FindOrder(ctx, created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, o.Status)
}
