package order

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/allocation"
	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/discount"
	"github.com/xenking/kart-orders/internal/domain/inventory"
	"github.com/xenking/kart-orders/internal/domain/money"
	"github.com/xenking/kart-orders/internal/domain/product"
)

const instrumentationName = "github.com/xenking/kart-orders/internal/domain/order"

// RetryConfig bounds the retries of a placement that lost a stock
// contention race.
type RetryConfig struct {
	MaxAttempts  int           `default:"3" usage:"Attempts per order placement on stock contention"`
	InitialDelay time.Duration `default:"20ms" usage:"Delay before the first retry"`
	MaxDelay     time.Duration `default:"500ms" usage:"Upper bound for the retry delay"`
}

// DefaultRetryConfig returns the retry policy used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: 20 * time.Millisecond, MaxDelay: 500 * time.Millisecond}
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID string
	Role   auth.Role
	Items  []Item
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher publishes committed orders to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithProductCache invalidates touched products in c after every commit.
func WithProductCache(c product.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithRetry overrides the conflict retry policy.
func WithRetry(cfg RetryConfig) Option {
	return func(s *Service) { s.retry = cfg }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides order id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithTracerProvider sets the tracer provider for placement spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider for placement metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// Service places orders: it reserves stock, evaluates discounts, allocates
// them over lines and persists the result in one transaction.
type Service struct {
	txm    TxManager
	orders Repository
	chain  *discount.Chain

	publisher Publisher
	cache     product.Cache
	retry     RetryConfig
	now       func() time.Time
	newID     func() string

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	placed         metric.Int64Counter
	failed         metric.Int64Counter
	conflicts      metric.Int64Counter
	amount         metric.Float64Histogram
}

// NewService creates an order Service. orders serves reads outside of a
// placement transaction.
func NewService(txm TxManager, orders Repository, chain *discount.Chain, opts ...Option) (*Service, error) {
	s := &Service{
		txm:            txm,
		orders:         orders,
		chain:          chain,
		retry:          DefaultRetryConfig(),
		now:            time.Now,
		newID:          func() string { return uuid.New().String() },
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retry.MaxAttempts < 1 {
		s.retry.MaxAttempts = 1
	}

	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	meter := s.meterProvider.Meter(instrumentationName)

	var err error
	if s.placed, err = meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders committed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.placed counter")
	}
	if s.failed, err = meter.Int64Counter("orders.failed",
		metric.WithDescription("Order placements rejected or failed, by reason"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.failed counter")
	}
	if s.conflicts, err = meter.Int64Counter("orders.stock_conflicts",
		metric.WithDescription("Placement attempts aborted by concurrent stock updates"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.stock_conflicts counter")
	}
	if s.amount, err = meter.Float64Histogram("orders.total",
		metric.WithDescription("Order totals after discount"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.total histogram")
	}

	return s, nil
}

// PlaceOrder reserves stock for every item in submission order and persists
// the priced order. Any failure rolls back all reservations of the call.
// Stock contention is retried per RetryConfig; business errors are not.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "PlaceOrder", trace.WithAttributes(
		attribute.String("user.id", req.UserID),
		attribute.Int("order.items", len(req.Items)),
	))
	defer func() {
		if rerr != nil {
			kind := Classify(rerr)
			s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(kind))))
			span.RecordError(rerr)
			span.SetStatus(codes.Error, string(kind))
		}
		span.End()
	}()

	if err := validate(req); err != nil {
		return nil, err
	}

	var (
		placed  *Order
		attempt int
		id      = s.newID()
	)
	op := func() error {
		attempt++
		err := s.txm.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			o, err := s.assemble(ctx, tx.Inventory(), id, req)
			if err != nil {
				return err
			}
			if err := tx.Orders().Create(ctx, o); err != nil {
				return errors.Wrap(err, "create order")
			}
			placed = o
			return nil
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, inventory.ErrConflict) {
			s.conflicts.Add(ctx, 1)
			zctx.From(ctx).Debug("Stock contention, retrying order",
				zap.String("order_id", id),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(op, s.backoff(ctx)); err != nil {
		return nil, err
	}

	s.afterCommit(ctx, placed)
	span.SetAttributes(attribute.String("order.id", placed.ID))
	return placed, nil
}

// GetOrder returns the order with the given id if it belongs to userID.
func (s *Service) GetOrder(ctx context.Context, userID, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

func validate(req PlaceOrderRequest) error {
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	if req.UserID == "" {
		return ErrMissingUser
	}
	if err := req.Role.Validate(); err != nil {
		return errors.Wrapf(err, "role %q", req.Role)
	}
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return &inventory.InvalidQuantityError{ProductID: item.ProductID, Quantity: item.Quantity}
		}
	}
	return nil
}

// assemble reserves the items and prices the order. It runs inside the
// placement transaction.
func (s *Service) assemble(ctx context.Context, store inventory.Store, id string, req PlaceOrderRequest) (*Order, error) {
	reserver := inventory.NewReserver(store)

	lines := make([]Line, len(req.Items))
	raw := make([]decimal.Decimal, len(req.Items))
	lineTotals := make([]decimal.Decimal, len(req.Items))
	for i, item := range req.Items {
		price, err := reserver.Reserve(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return nil, err
		}
		raw[i] = price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		lineTotals[i] = money.Round(raw[i])
		lines[i] = Line{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: price,
		}
	}

	subtotal := money.Round(money.Sum(raw))
	aggregate := s.chain.Evaluate(req.Role, subtotal, lineTotals)
	alloc := allocation.Allocate(subtotal, aggregate, lineTotals)
	for i := range lines {
		lines[i].Discount = alloc.LineDiscounts[i]
		lines[i].Total = alloc.LineTotals[i]
	}

	return &Order{
		ID:        id,
		UserID:    req.UserID,
		Lines:     lines,
		Subtotal:  subtotal,
		Discount:  alloc.Discount,
		Total:     alloc.Total(),
		CreatedAt: s.now().UTC(),
	}, nil
}

func (s *Service) afterCommit(ctx context.Context, o *Order) {
	lg := zctx.From(ctx)

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, o.ProductIDs()...); err != nil {
			lg.Warn("Invalidate product cache", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.OrderPlaced(ctx, o); err != nil {
			lg.Error("Publish order placed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}

	s.placed.Add(ctx, 1)
	s.amount.Record(ctx, o.Total.InexactFloat64())

	lg.Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.Stringer("total", o.Total),
		zap.Stringer("discount", o.Discount),
	)
}

func (s *Service) backoff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.retry.InitialDelay
	exp.MaxInterval = s.retry.MaxDelay
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(s.retry.MaxAttempts-1)), ctx)
}
