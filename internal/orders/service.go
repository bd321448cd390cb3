package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-storefront-orderflow/internal/apperrors"
	"github.com/imrishuroy/go-storefront-orderflow/internal/counter"
	"github.com/imrishuroy/go-storefront-orderflow/internal/products"
)

// MaxPageSize bounds the limit accepted by ListAllOrders.
const MaxPageSize = 100

// maxOffset keeps page*pageSize well inside int on every platform.
const maxOffset = math.MaxInt32

// Business metric names.
const (
	MetricOrderCreated     = "OrderCreated"
	MetricCartClearFailed  = "CartClearFailed"
	MetricPaymentConfirmed = "PaymentConfirmed"
)

// CartClearer empties a user's cart once the order is persisted.
type CartClearer interface {
	ClearUser(ctx context.Context, userID string) (int, error)
}

// ProductLookup resolves product ids for order line items.
type ProductLookup interface {
	BatchGet(ctx context.Context, ids []string) (map[string]products.Product, error)
}

// Recorder counts business events. Failures are the recorder's problem.
type Recorder interface {
	Incr(ctx context.Context, name string)
}

// Service orchestrates order creation, retrieval, listing and updates.
type Service struct {
	store    *Store
	seq      counter.Allocator
	carts    CartClearer
	products ProductLookup
	metrics  Recorder
	validate *validatorv10.Validate
	log      *slog.Logger
}

// Deps groups the collaborators of a Service. Only CreateOrder needs
// Sequence; the worker leaves it nil.
type Deps struct {
	Store    *Store
	Sequence counter.Allocator
	Carts    CartClearer
	Products ProductLookup
	Metrics  Recorder
	Validate *validatorv10.Validate
	Log      *slog.Logger
}

func NewService(d Deps) *Service {
	return &Service{
		store:    d.Store,
		seq:      d.Sequence,
		carts:    d.Carts,
		products: d.Products,
		metrics:  d.Metrics,
		validate: d.Validate,
		log:      d.Log,
	}
}

// CreateOrder allocates the next order number, persists a Pending order and
// then clears the user's cart. The three steps are not transactional: a
// failure after allocation leaves a gap in order numbers, which is fine.
//
// If the cart cannot be cleared the order is still returned together with a
// PartialFailure error; callers must treat the order as created.
func (s *Service) CreateOrder(ctx context.Context, in CreateInput) (*Order, error) {
	const op = "orders.CreateOrder"
	if err := s.validate.Struct(in); err != nil {
		return nil, apperrors.Validation(op, err)
	}

	if s.seq == nil {
		return nil, apperrors.Upstream(op, errors.New("no order sequence configured"))
	}
	orderNo, err := s.seq.Next(ctx, counter.OrderSequence)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(in.Items))
	for _, it := range in.Items {
		items = append(items, Item{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	o := Order{
		OrderID:     uuid.NewString(),
		UserID:      in.UserID,
		Items:       items,
		Address:     *in.Address,
		PaymentMode: in.PaymentMode,
		Total:       *in.Total,
		OrderNo:     orderNo,
		Status:      StatusPending,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}
	s.incr(ctx, MetricOrderCreated)

	created, err := s.store.Get(ctx, o.OrderID)
	if err != nil {
		// the write succeeded; answer with what we wrote
		s.log.WarnContext(ctx, "re-read of created order failed", "order_id", o.OrderID, "err", err)
		created = &o
	}
	s.log.InfoContext(ctx, "order created", "order_id", o.OrderID, "order_no", orderNo, "user_id", in.UserID)

	if _, err := s.carts.ClearUser(ctx, in.UserID); err != nil {
		s.incr(ctx, MetricCartClearFailed)
		s.log.WarnContext(ctx, "cart clear failed after order creation",
			"order_id", o.OrderID, "user_id", in.UserID, "err", err)
		return created, apperrors.Partial(op, fmt.Errorf("clear cart: %w", err))
	}
	return created, nil
}

// GetOrder returns one order with its line items resolved to products.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	if orderID == "" {
		return nil, apperrors.Validation("orders.GetOrder", errors.New("order id is required"))
	}
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.populate(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

// FindOrder returns the stored order without resolving products.
func (s *Service) FindOrder(ctx context.Context, orderID string) (*Order, error) {
	return s.store.Get(ctx, orderID)
}

func (s *Service) ListOrdersForUser(ctx context.Context, userID string) ([]Order, error) {
	if userID == "" {
		return nil, apperrors.Validation("orders.ListOrdersForUser", errors.New("user id is required"))
	}
	list, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.populate(ctx, ptrs(list)); err != nil {
		return nil, err
	}
	return list, nil
}

// ListAllOrders returns the requested window and the size of the whole
// collection. page and pageSize of zero mean "everything".
func (s *Service) ListAllOrders(ctx context.Context, page, pageSize int) (*Page, error) {
	const op = "orders.ListAllOrders"
	if page < 0 || pageSize < 0 || (pageSize > 0 && page == 0) {
		return nil, apperrors.Validation(op, fmt.Errorf("invalid page %d / page size %d", page, pageSize))
	}
	if pageSize > MaxPageSize {
		return nil, apperrors.Validation(op, fmt.Errorf("page size %d exceeds %d", pageSize, MaxPageSize))
	}
	if pageSize > 0 && page-1 > maxOffset/pageSize {
		return nil, apperrors.Validation(op, fmt.Errorf("page %d is out of range", page))
	}

	var (
		total int
		list  []Order
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		total, err = s.store.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		list, err = s.store.List(gctx, page, pageSize)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := s.populate(ctx, ptrs(list)); err != nil {
		return nil, err
	}
	return &Page{Orders: list, TotalCount: total}, nil
}

// UpdateOrder applies a partial update. A status change must be a legal
// transition from the stored status and is written conditionally on that
// status, so two concurrent transitions cannot both win.
func (s *Service) UpdateOrder(ctx context.Context, orderID string, patch Patch) (*Order, error) {
	const op = "orders.UpdateOrder"
	if err := s.validate.Struct(patch); err != nil {
		return nil, apperrors.Validation(op, err)
	}
	if patch.Items != nil && len(patch.Items) == 0 {
		return nil, apperrors.Validation(op, errors.New("items must not be empty"))
	}
	if patch.Status != nil && !patch.Status.IsValid() {
		return nil, apperrors.Validation(op, fmt.Errorf("unknown status %q", *patch.Status))
	}

	current, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if patch.empty() {
		return current, nil
	}

	var expected *Status
	if patch.Status != nil && *patch.Status != current.Status {
		if err := current.Status.Transition(*patch.Status); err != nil {
			return nil, apperrors.Conflict(op, err)
		}
		expected = &current.Status
	}

	updated, err := s.store.Update(ctx, orderID, patch, expected)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "order updated", "order_id", orderID, "status", updated.Status)
	return updated, nil
}

// MarkPaid moves a Pending order to Paid. It is the explicit write-back that
// checkout reconciliation does not perform on its own. Marking an already
// paid order is a no-op.
func (s *Service) MarkPaid(ctx context.Context, orderID string) (*Order, error) {
	current, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusPaid {
		return current, nil
	}

	paid := StatusPaid
	o, err := s.UpdateOrder(ctx, orderID, Patch{Status: &paid})
	if err != nil {
		return nil, err
	}
	s.incr(ctx, MetricPaymentConfirmed)
	return o, nil
}

func (s *Service) populate(ctx context.Context, list []*Order) error {
	if s.products == nil {
		return nil
	}
	var ids []string
	for _, o := range list {
		for _, it := range o.Items {
			ids = append(ids, it.ProductID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	found, err := s.products.BatchGet(ctx, ids)
	if err != nil {
		return err
	}
	for _, o := range list {
		for i := range o.Items {
			if p, ok := found[o.Items[i].ProductID]; ok {
				o.Items[i].Product = &p
			}
		}
	}
	return nil
}

func (s *Service) incr(ctx context.Context, name string) {
	if s.metrics != nil {
		s.metrics.Incr(ctx, name)
	}
}

func ptrs(list []Order) []*Order {
	out := make([]*Order, len(list))
	for i := range list {
		out[i] = &list[i]
	}
	return out
}
