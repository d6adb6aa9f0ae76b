package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"

	"github.com/rl1809/bookstore/internal/adapter/storage"
	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/core/service"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testCatalog = []domain.Book{
	{ID: "b1", Name: "Go in Action", Author: "Kennedy", Price: 10},
	{ID: "b2", Name: "Dune", Author: "Herbert", Price: 25},
	{ID: "b3", Name: "Emma", Author: "Austen", Price: 40},
}

func newTestServices() (Services, *storage.MemoryAdapter) {
	store := storage.NewMemoryAdapter()
	store.Seed(testCatalog)
	logger := zap.NewNop()
	return Services{
		Catalog:     service.NewCatalogService(store, logger),
		Warehouse:   service.NewWarehouseService(store, logger),
		Orders:      service.NewOrderService(store, nil, logger),
		Fulfillment: service.NewFulfillmentService(store, store, storage.NewMemoryLocker(), logger),
	}, store
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		kind       string
		httpStatus int
		grpcCode   codes.Code
	}{
		{"invalid", fmt.Errorf("wrap: %w", domain.ErrInvalidRequest), kindInvalidRequest, http.StatusBadRequest, codes.InvalidArgument},
		{"not found", domain.ErrNotFound, kindNotFound, http.StatusNotFound, codes.NotFound},
		{"conflict", domain.ErrConflict, kindConflict, http.StatusBadRequest, codes.FailedPrecondition},
		{"insufficient", &domain.InsufficientInventoryError{}, kindInsufficientInventory, http.StatusBadRequest, codes.FailedPrecondition},
		{"race", &domain.FulfillmentRaceError{}, kindFulfillmentRace, http.StatusInternalServerError, codes.Aborted},
		{"not implemented", domain.ErrNotImplemented, kindNotImplemented, http.StatusNotImplemented, codes.Unimplemented},
		{"deadline", fmt.Errorf("store: %w", context.DeadlineExceeded), kindTimeout, http.StatusGatewayTimeout, codes.DeadlineExceeded},
		{"storage fault", errors.New("connection reset"), kindInternal, http.StatusInternalServerError, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := classify(tt.err)
			assert.Equal(t, tt.kind, m.kind)
			assert.Equal(t, tt.httpStatus, m.httpStatus)
			assert.Equal(t, tt.grpcCode, m.grpcCode)
		})
	}
}

func TestPublicMessage_HidesStorageDetails(t *testing.T) {
	err := errors.New("dial tcp 10.0.0.3:27017: connection refused")
	assert.Equal(t, "internal error", publicMessage(classify(err), err))

	err = fmt.Errorf("%w: book b9", domain.ErrNotFound)
	assert.Equal(t, "not found: book b9", publicMessage(classify(err), err))
}
