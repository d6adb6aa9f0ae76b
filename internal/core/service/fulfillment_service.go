package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/port"
)

const compensationTimeout = 10 * time.Second

type FulfillmentService struct {
	orders      port.OrderRepository
	inventory   port.InventoryRepository
	locker      port.FulfillmentLocker
	events      EventSink
	tracer      trace.Tracer
	logger      *zap.Logger
	strictMatch bool
	now         func() time.Time
}

type FulfillmentOption func(*FulfillmentService)

func WithEvents(events EventSink) FulfillmentOption {
	return func(s *FulfillmentService) { s.events = events }
}

func WithTracer(tracer trace.Tracer) FulfillmentOption {
	return func(s *FulfillmentService) { s.tracer = tracer }
}

// WithStrictLineMatch controls whether the lines must pick exactly the copies
// the order requested. Enabled by default.
func WithStrictLineMatch(strict bool) FulfillmentOption {
	return func(s *FulfillmentService) { s.strictMatch = strict }
}

func WithClock(now func() time.Time) FulfillmentOption {
	return func(s *FulfillmentService) { s.now = now }
}

func NewFulfillmentService(
	orders port.OrderRepository,
	inventory port.InventoryRepository,
	locker port.FulfillmentLocker,
	logger *zap.Logger,
	opts ...FulfillmentOption,
) *FulfillmentService {
	s := &FulfillmentService{
		orders:      orders,
		inventory:   inventory,
		locker:      locker,
		tracer:      noop.NewTracerProvider().Tracer("fulfillment"),
		logger:      logger,
		strictMatch: true,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func lockKey(orderID string) string {
	return "fulfillment:" + orderID
}

// FulfillOrder validates every line against current stock, then decrements
// each line in order and marks the order fulfilled. Nothing is written unless
// the validation pass succeeds.
func (s *FulfillmentService) FulfillOrder(ctx context.Context, orderID string, lines []domain.FulfillmentLine) (err error) {
	ctx, span := s.tracer.Start(ctx, "fulfillment.fulfill_order",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.Int("fulfillment.lines", len(lines)),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if strings.TrimSpace(orderID) == "" {
		return fmt.Errorf("%w: order id is required", domain.ErrInvalidRequest)
	}
	if err := domain.ValidateLines(lines); err != nil {
		return err
	}

	release, acquired, err := s.locker.TryAcquire(ctx, lockKey(orderID))
	if err != nil {
		return fmt.Errorf("acquire fulfillment lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("%w: order %s is already being fulfilled", domain.ErrConflict, orderID)
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			s.logger.Warn("failed to release fulfillment lock", zap.String("order_id", orderID), zap.Error(rerr))
		}
	}()

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	if order.Status != domain.OrderStatusPending {
		return fmt.Errorf("%w: order %s is %s", domain.ErrConflict, orderID, order.Status)
	}
	if err := s.validate(ctx, lines); err != nil {
		return err
	}
	if s.strictMatch {
		if err := domain.MatchLines(*order, lines); err != nil {
			return err
		}
	}
	if err := s.commit(ctx, order.ID, lines); err != nil {
		return err
	}

	fulfilledAt := s.now().UTC()
	if err := s.orders.MarkFulfilled(ctx, order.ID, fulfilledAt); err != nil {
		if !s.markLanded(ctx, order.ID, lines, err) {
			return fmt.Errorf("mark order fulfilled: %w", err)
		}
	}

	s.logger.Info("order fulfilled",
		zap.String("order_id", order.ID),
		zap.Int("lines", len(lines)),
	)
	if s.events != nil {
		s.events.Dispatch(domain.OrderFulfilledEvent{
			OrderID:     order.ID,
			Lines:       lines,
			FulfilledAt: fulfilledAt,
		})
	}
	return nil
}

// markLanded settles a failed MarkFulfilled after the commit pass. It reports
// whether the order ended up fulfilled anyway. Stock is restored only when the
// order is known not to be fulfilled by this call; when its state cannot be
// read the deduction is kept, since restoring it could oversell.
func (s *FulfillmentService) markLanded(ctx context.Context, orderID string, lines []domain.FulfillmentLine, markErr error) bool {
	if errors.Is(markErr, domain.ErrConflict) {
		// another writer fulfilled the order while the lock was held elsewhere
		s.compensate(ctx, orderID, lines)
		return false
	}

	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	current, err := s.orders.GetOrder(readCtx, orderID)
	switch {
	case err != nil || current == nil:
		s.logger.Error("order state unknown after failed mark, stock stays deducted",
			zap.String("order_id", orderID),
			zap.NamedError("mark_error", markErr),
			zap.Error(err),
		)
		return false
	case current.Status == domain.OrderStatusFulfilled:
		s.logger.Warn("mark reported a failure but the order is fulfilled",
			zap.String("order_id", orderID),
			zap.Error(markErr),
		)
		return true
	default:
		s.compensate(ctx, orderID, lines)
		return false
	}
}

type stockKey struct {
	book  string
	shelf string
}

// validate reads every (book, shelf) entry once. Lines naming the same key
// consume from the same count.
func (s *FulfillmentService) validate(ctx context.Context, lines []domain.FulfillmentLine) error {
	ctx, span := s.tracer.Start(ctx, "fulfillment.validate")
	defer span.End()

	remaining := make(map[stockKey]int, len(lines))
	for _, l := range lines {
		key := stockKey{book: l.Book, shelf: l.Shelf}

		available, seen := remaining[key]
		if !seen {
			entry, err := s.inventory.GetEntry(ctx, l.Book, l.Shelf)
			if err != nil {
				span.RecordError(err)
				return fmt.Errorf("read stock for book %s on shelf %s: %w", l.Book, l.Shelf, err)
			}
			if entry != nil {
				available = entry.Count
			}
		}

		if available < l.NumberOfBooks {
			span.SetAttributes(attribute.String("fulfillment.short_book", l.Book))
			return &domain.InsufficientInventoryError{Line: l, Available: available}
		}
		remaining[key] = available - l.NumberOfBooks
	}
	return nil
}

func (s *FulfillmentService) commit(ctx context.Context, orderID string, lines []domain.FulfillmentLine) error {
	ctx, span := s.tracer.Start(ctx, "fulfillment.commit")
	defer span.End()

	applied := make([]domain.FulfillmentLine, 0, len(lines))
	for _, l := range lines {
		ok, err := s.inventory.TryDecrement(ctx, l.Book, l.Shelf, l.NumberOfBooks)
		if err != nil {
			span.RecordError(err)
			s.compensate(ctx, orderID, applied)
			return fmt.Errorf("decrement book %s on shelf %s: %w", l.Book, l.Shelf, err)
		}
		if !ok {
			raceErr := &domain.FulfillmentRaceError{OrderID: orderID, Line: l}
			raceErr.Compensated, raceErr.CompensationErr = s.compensate(ctx, orderID, applied)
			span.RecordError(raceErr)
			return raceErr
		}
		applied = append(applied, l)
	}
	return nil
}

// compensate restores already applied decrements in reverse order. It runs on
// a detached context so a cancelled request still returns its stock.
func (s *FulfillmentService) compensate(ctx context.Context, orderID string, applied []domain.FulfillmentLine) ([]domain.FulfillmentLine, error) {
	if len(applied) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	var errs []error
	restored := make([]domain.FulfillmentLine, 0, len(applied))
	for i := len(applied) - 1; i >= 0; i-- {
		l := applied[i]
		if err := s.inventory.AddStock(ctx, l.Book, l.Shelf, l.NumberOfBooks); err != nil {
			errs = append(errs, fmt.Errorf("restore book %s on shelf %s: %w", l.Book, l.Shelf, err))
			continue
		}
		restored = append(restored, l)
	}
	compErr := errors.Join(errs...)

	if compErr != nil {
		s.logger.Error("fulfillment compensation failed, inventory is short",
			zap.String("order_id", orderID),
			zap.Int("restored", len(restored)),
			zap.Int("applied", len(applied)),
			zap.Error(compErr),
		)
	} else {
		s.logger.Warn("fulfillment rolled back",
			zap.String("order_id", orderID),
			zap.Int("restored", len(restored)),
		)
	}

	if s.events != nil {
		s.events.Dispatch(domain.InventoryCompensatedEvent{
			OrderID:  orderID,
			Restored: restored,
			Failed:   compErr != nil,
		})
	}
	return restored, compErr
}
