package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

const tracerName = "github.com/rl1809/stockroom/internal/core/service"

type OrderService struct {
	store     port.Store
	cache     port.IdempotencyCache
	publisher port.EventPublisher
	recorder  port.Recorder
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*OrderService)

func WithIdempotencyCache(cache port.IdempotencyCache) Option {
	return func(s *OrderService) { s.cache = cache }
}

func WithEventPublisher(publisher port.EventPublisher) Option {
	return func(s *OrderService) { s.publisher = publisher }
}

func WithRecorder(recorder port.Recorder) Option {
	return func(s *OrderService) { s.recorder = recorder }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *OrderService) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *OrderService) { s.now = now }
}

func NewOrderService(store port.Store, opts ...Option) *OrderService {
	s := &OrderService{
		store:    store,
		recorder: nopRecorder{},
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitOrder reconciles every requested line against the catalog, one at a time,
// and persists an order holding only the quantities that were applied.
func (s *OrderService) SubmitOrder(ctx context.Context, req domain.OrderRequest) (result *domain.ReconciliationResult, err error) {
	direction := domain.Direction(req.IsOutgoing)
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "OrderService.SubmitOrder", trace.WithAttributes(
		attribute.String("order.direction", direction),
		attribute.Int("order.lines", len(req.Lines)),
	))
	defer func() {
		s.recorder.OrderSubmitted(direction, submissionResult(err), time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	release, err := s.claim(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	// A claim is only given back while no inventory has moved; a retry would apply it twice.
	var applied int
	defer func() {
		switch {
		case err == nil:
		case applied == 0:
			release()
		default:
			s.logger.Warn("keeping idempotency key after partial application",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int("applied_lines", applied),
				zap.Error(err),
			)
		}
	}()

	session, err := s.store.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			s.logger.Warn("failed to release session", zap.Error(closeErr))
		}
	}()

	result = domain.NewReconciliationResult()
	details := make([]domain.LineItem, 0, len(req.Lines))
	for _, line := range req.Lines {
		item, ok, err := s.reconcileLine(ctx, session, req.IsOutgoing, line, result)
		if err != nil {
			s.logger.Error("store unavailable during reconciliation",
				zap.String("product_id", line.ProductID),
				zap.Int("applied_lines", applied),
				zap.Error(err),
			)
			return nil, err
		}
		if ok {
			details = append(details, item)
			applied++
		}
	}

	if len(details) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoFulfillment, strings.Join(result.Unfulfilled, ", "))
	}

	order := domain.Order{
		IsOutgoing:   req.IsOutgoing,
		OrderDetails: details,
		DateTime:     s.now().UTC(),
	}
	id, err := session.InsertOrder(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	order.ID = id
	result.OrderID = id
	result.Order = order

	span.SetAttributes(attribute.String("order.id", id))
	s.logger.Info("order submitted",
		zap.String("order_id", id),
		zap.String("direction", direction),
		zap.Strings("fulfilled", result.Fulfilled),
		zap.Strings("partial", result.Partial),
		zap.Strings("unfulfilled", result.Unfulfilled),
	)

	s.publish(ctx, order)
	return result, nil
}

// reconcileLine returns the applied line item and true when the line was confirmed by the store.
// Only store unavailability is returned as an error; every other failure becomes unfulfilled.
func (s *OrderService) reconcileLine(ctx context.Context, session port.Session, isOutgoing bool, line domain.RequestedLine, result *domain.ReconciliationResult) (domain.LineItem, bool, error) {
	direction := domain.Direction(isOutgoing)
	unfulfilled := func(reason domain.UnfulfilledReason) (domain.LineItem, bool, error) {
		result.MarkUnfulfilled(line.ProductID, reason)
		s.recorder.LineReconciled(direction, domain.OutcomeUnfulfilled, reason)
		trace.SpanFromContext(ctx).AddEvent("line.unfulfilled", trace.WithAttributes(
			attribute.String("product.id", line.ProductID),
			attribute.String("reason", string(reason)),
		))
		return domain.LineItem{}, false, nil
	}

	product, err := session.FindProductByID(ctx, line.ProductID)
	if err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			return domain.LineItem{}, false, err
		}
		s.logger.Warn("product lookup failed", zap.String("product_id", line.ProductID), zap.Error(err))
		return unfulfilled(domain.ReasonStoreError)
	}
	if product == nil {
		return unfulfilled(domain.ReasonNotFound)
	}

	plan := domain.PlanLine(isOutgoing, product.Inventory, line.Quantity)
	if plan.Outcome == domain.OutcomeUnfulfilled {
		return unfulfilled(domain.ReasonOutOfStock)
	}

	modified, err := session.AdjustInventory(ctx, plan.Mutation(product.ID, product.Inventory))
	if err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			return domain.LineItem{}, false, err
		}
		s.logger.Warn("inventory update failed", zap.String("product_id", line.ProductID), zap.Error(err))
		return unfulfilled(domain.ReasonStoreError)
	}
	if modified == 0 {
		s.logger.Info("inventory update not applied",
			zap.String("product_id", line.ProductID),
			zap.Int64("observed", product.Inventory),
			zap.Int64("delta", plan.Delta),
		)
		return unfulfilled(domain.ReasonNotModified)
	}

	result.Classify(line.ProductID, plan.Outcome)
	s.recorder.LineReconciled(direction, plan.Outcome, "")
	trace.SpanFromContext(ctx).AddEvent("line."+string(plan.Outcome), trace.WithAttributes(
		attribute.String("product.id", line.ProductID),
		attribute.Int64("quantity.applied", plan.Applied),
	))
	return domain.LineItem{ProductID: line.ProductID, Quantity: plan.Applied}, true, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: order ID is required", domain.ErrInvalidInput)
	}
	session, err := s.store.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			s.logger.Warn("failed to release session", zap.Error(err))
		}
	}()

	order, err := session.FindOrderByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return order, nil
}

// claim takes the idempotency key if one was supplied and returns a func that gives it back.
func (s *OrderService) claim(ctx context.Context, key string) (func(), error) {
	if s.cache == nil || key == "" {
		return func() {}, nil
	}
	key = "idempotency:" + key
	token, ok, err := s.cache.SetIdempotency(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return nil, domain.ErrDuplicateRequest
	}
	return func() {
		// The request context may already be done; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.cache.ReleaseIdempotency(releaseCtx, key, token); err != nil {
			s.logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (s *OrderService) publish(ctx context.Context, order domain.Order) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOrderCreated(ctx, order); err != nil {
		s.logger.Warn("failed to publish order created event", zap.String("order_id", order.ID), zap.Error(err))
	}
}

func submissionResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrNoFulfillment):
		return "no_fulfillment"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}

type nopRecorder struct{}

func (nopRecorder) LineReconciled(string, domain.Outcome, domain.UnfulfilledReason) {}
func (nopRecorder) OrderSubmitted(string, string, time.Duration)                   {}
