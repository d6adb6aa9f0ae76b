package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/bookstore/internal/core/domain"
)

func TestCreateOrder_Success(t *testing.T) {
	orders := newMockOrders()
	sink := &recordingSink{}
	svc := NewOrderService(orders, sink, zaptest.NewLogger(t))

	id, err := svc.CreateOrder(context.Background(), []string{"book-a", "book-b", "book-a"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	order, err := svc.GetOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"book-a": 2, "book-b": 1}, order.Books)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Nil(t, order.FulfilledAt)
	assert.False(t, order.CreatedAt.IsZero())

	assert.Equal(t, []string{domain.TopicOrderCreated}, sink.topics())
}

func TestCreateOrder_Invalid(t *testing.T) {
	svc := NewOrderService(newMockOrders(), nil, zaptest.NewLogger(t))

	cases := map[string][]string{
		"empty":    {},
		"nil":      nil,
		"blank id": {"book-a", "  "},
	}
	for name, ids := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), ids)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		})
	}
}

func TestCreateOrder_StoreFailure(t *testing.T) {
	orders := newMockOrders()
	orders.createErr = errors.New("connection reset")
	sink := &recordingSink{}
	svc := NewOrderService(orders, sink, zaptest.NewLogger(t))

	_, err := svc.CreateOrder(context.Background(), []string{"book-a"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Empty(t, sink.topics())
}

func TestGetOrder_NotFound(t *testing.T) {
	svc := NewOrderService(newMockOrders(), nil, zaptest.NewLogger(t))

	_, err := svc.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetOrder(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestListOrders_EmptyStore(t *testing.T) {
	svc := NewOrderService(newMockOrders(), nil, zaptest.NewLogger(t))

	orders, err := svc.ListOrders(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)
}

func TestCreateOrder_Concurrent(t *testing.T) {
	totalRequests := 50

	orders := newMockOrders()
	svc := NewOrderService(orders, nil, zaptest.NewLogger(t))

	var successCount atomic.Int32
	var wg sync.WaitGroup
	ids := sync.Map{}

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := svc.CreateOrder(context.Background(), []string{"book-a"})
			if err != nil {
				t.Errorf("create order: %v", err)
				return
			}
			if _, dup := ids.LoadOrStore(id, true); dup {
				t.Errorf("duplicate order id %s", id)
			}
			successCount.Add(1)
		}()
	}

	wg.Wait()

	if int(successCount.Load()) != totalRequests {
		t.Errorf("expected %d orders, got %d", totalRequests, successCount.Load())
	}

	all, err := svc.ListOrders(context.Background())
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(all) != totalRequests {
		t.Errorf("expected %d stored orders, got %d", totalRequests, len(all))
	}
}
