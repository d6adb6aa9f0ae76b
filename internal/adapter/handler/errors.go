package handler

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/core/service"
)

// Services bundles the core services both transports dispatch to.
type Services struct {
	Catalog     *service.CatalogService
	Warehouse   *service.WarehouseService
	Orders      *service.OrderService
	Fulfillment *service.FulfillmentService
}

const (
	kindInvalidRequest        = "invalid_request"
	kindNotFound              = "not_found"
	kindConflict              = "conflict"
	kindInsufficientInventory = "insufficient_inventory"
	kindFulfillmentRace       = "fulfillment_race"
	kindNotImplemented        = "not_implemented"
	kindTimeout               = "timeout"
	kindInternal              = "internal"
)

type errorMapping struct {
	kind       string
	httpStatus int
	grpcCode   codes.Code
}

func classify(err error) errorMapping {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return errorMapping{kindInvalidRequest, http.StatusBadRequest, codes.InvalidArgument}
	case errors.Is(err, domain.ErrNotFound):
		return errorMapping{kindNotFound, http.StatusNotFound, codes.NotFound}
	case errors.Is(err, domain.ErrConflict):
		return errorMapping{kindConflict, http.StatusBadRequest, codes.FailedPrecondition}
	case errors.Is(err, domain.ErrInsufficientInventory):
		return errorMapping{kindInsufficientInventory, http.StatusBadRequest, codes.FailedPrecondition}
	case errors.Is(err, domain.ErrFulfillmentRace):
		return errorMapping{kindFulfillmentRace, http.StatusInternalServerError, codes.Aborted}
	case errors.Is(err, domain.ErrNotImplemented):
		return errorMapping{kindNotImplemented, http.StatusNotImplemented, codes.Unimplemented}
	case errors.Is(err, context.DeadlineExceeded):
		return errorMapping{kindTimeout, http.StatusGatewayTimeout, codes.DeadlineExceeded}
	default:
		return errorMapping{kindInternal, http.StatusInternalServerError, codes.Internal}
	}
}

// publicMessage hides storage details behind a generic message.
func publicMessage(m errorMapping, err error) string {
	switch m.kind {
	case kindInternal:
		return "internal error"
	case kindTimeout:
		return "store deadline exceeded"
	default:
		return err.Error()
	}
}
