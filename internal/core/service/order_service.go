package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/port"
)

type OrderService struct {
	orders port.OrderRepository
	events EventSink
	logger *zap.Logger
	now    func() time.Time
}

// NewOrderService builds the order intake service. events may be nil.
func NewOrderService(orders port.OrderRepository, events EventSink, logger *zap.Logger) *OrderService {
	return &OrderService{
		orders: orders,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// CreateOrder records a pending order for the given book ids. Duplicate ids
// request multiple copies. Catalog existence is not checked.
func (s *OrderService) CreateOrder(ctx context.Context, bookIDs []string) (string, error) {
	counts, err := domain.CountBooks(bookIDs)
	if err != nil {
		return "", err
	}

	order := domain.Order{
		Books:     counts,
		Status:    domain.OrderStatusPending,
		CreatedAt: s.now().UTC(),
	}

	id, err := s.orders.CreateOrder(ctx, order)
	if err != nil {
		return "", fmt.Errorf("create order: %w", err)
	}

	s.logger.Info("order created", zap.String("order_id", id), zap.Int("titles", len(counts)))

	if s.events != nil {
		s.events.Dispatch(domain.OrderCreatedEvent{
			OrderID:   id,
			Books:     counts,
			CreatedAt: order.CreatedAt,
		})
	}
	return id, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: order id is required", domain.ErrInvalidRequest)
	}

	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, id)
	}
	return order, nil
}

// ListOrders returns every order regardless of status.
func (s *OrderService) ListOrders(ctx context.Context) ([]domain.Order, error) {
	orders, err := s.orders.ListOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}
