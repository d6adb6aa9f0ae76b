package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/port"
)

const (
	healthServiceName = "bookservice"
	maxBodyBytes      = 1 << 20
)

type HTTPHandler struct {
	services     Services
	store        port.Pinger
	storeTimeout time.Duration
	logger       *zap.Logger
}

type ErrorBody struct {
	Kind      string                  `json:"kind"`
	Message   string                  `json:"message"`
	Line      *domain.FulfillmentLine `json:"line,omitempty"`
	Available *int                    `json:"available,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type createOrderBody struct {
	Order []string `json:"order"`
}

type fulfillOrderBody struct {
	BooksFulfilled []domain.FulfillmentLine `json:"booksFulfilled"`
}

type OrderResponse struct {
	OrderID     string             `json:"orderId"`
	Books       map[string]int     `json:"books"`
	Status      domain.OrderStatus `json:"status"`
	CreatedAt   time.Time          `json:"createdAt"`
	FulfilledAt *time.Time         `json:"fulfilledAt,omitempty"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
	Database  string `json:"database"`
}

// NewHTTPHandler wires the services to HTTP. store may be nil, in which case
// the health check always reports the database as connected.
func NewHTTPHandler(services Services, store port.Pinger, storeTimeout time.Duration, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		services:     services,
		store:        store,
		storeTimeout: storeTimeout,
		logger:       logger,
	}
}

func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/books", h.ListAllBooks)
		r.Post("/books/list", h.ListBooks)
		r.Get("/books/{id}", h.GetBook)
		r.Put("/books", h.SaveBook)
		r.Delete("/books/{id}", h.RemoveBook)

		r.Put("/warehouse/{bookId}/{shelf}/{count}", h.AddStock)
		r.Get("/warehouse/{bookId}", h.FindBook)

		r.Post("/order", h.CreateOrder)
		r.Get("/order", h.ListOrders)
		r.Get("/order/{orderId}", h.GetOrder)
		r.Put("/order/{orderId}", h.FulfillOrder)
	})

	return r
}

func (h *HTTPHandler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *HTTPHandler) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.storeTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.storeTimeout)
}

func (h *HTTPHandler) ListAllBooks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()

	books, err := h.services.Catalog.ListBooks(ctx, nil)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

// ListBooks accepts a JSON array of filters. An empty body lists everything.
func (h *HTTPHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	var filters []domain.Filter
	if err := decodeBody(r, &filters, true); err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	books, err := h.services.Catalog.ListBooks(ctx, filters)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (h *HTTPHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()

	book, err := h.services.Catalog.GetBook(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *HTTPHandler) SaveBook(w http.ResponseWriter, r *http.Request) {
	var book domain.Book
	if err := decodeBody(r, &book, true); err != nil {
		h.writeError(w, r, err)
		return
	}

	id, err := h.services.Catalog.SaveBook(r.Context(), book)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (h *HTTPHandler) RemoveBook(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Catalog.RemoveBook(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) AddStock(w http.ResponseWriter, r *http.Request) {
	count, err := strconv.Atoi(chi.URLParam(r, "count"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: count must be a positive number", domain.ErrInvalidRequest))
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	if err := h.services.Warehouse.AddStock(ctx, chi.URLParam(r, "bookId"), chi.URLParam(r, "shelf"), count); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Books added to shelf successfully"})
}

// FindBook responds with a shelf id to count map.
func (h *HTTPHandler) FindBook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()

	locations, err := h.services.Warehouse.FindBook(ctx, chi.URLParam(r, "bookId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	shelves := make(map[string]int, len(locations))
	for _, loc := range locations {
		shelves[loc.Shelf] = loc.Count
	}
	writeJSON(w, http.StatusOK, shelves)
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderBody
	if err := decodeBody(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	id, err := h.services.Orders.CreateOrder(ctx, req.Order)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, id)
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()

	orders, err := h.services.Orders.ListOrders(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()

	order, err := h.services.Orders.GetOrder(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(*order))
}

func (h *HTTPHandler) FulfillOrder(w http.ResponseWriter, r *http.Request) {
	var req fulfillOrderBody
	if err := decodeBody(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.BooksFulfilled == nil {
		h.writeError(w, r, fmt.Errorf("%w: booksFulfilled must be an array", domain.ErrInvalidRequest))
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	if err := h.services.Fulfillment.FulfillOrder(ctx, chi.URLParam(r, "orderId"), req.BooksFulfilled); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Order fulfilled successfully"})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Service:   healthServiceName,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Database:  "connected",
	}
	status := http.StatusOK

	if h.store != nil {
		ctx, cancel := h.storeContext(r)
		defer cancel()

		if err := h.store.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			resp.Status = "unhealthy"
			resp.Database = "disconnected"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}

func toOrderResponse(o domain.Order) OrderResponse {
	return OrderResponse{
		OrderID:     o.ID,
		Books:       o.Books,
		Status:      o.Status,
		CreatedAt:   o.CreatedAt,
		FulfilledAt: o.FulfilledAt,
	}
}

// decodeBody decodes a JSON request body. Malformed JSON is an invalid
// request; an empty body is accepted only when allowEmpty is set.
func decodeBody(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && allowEmpty:
		return nil
	case errors.Is(err, io.EOF):
		return fmt.Errorf("%w: request body is required", domain.ErrInvalidRequest)
	default:
		return fmt.Errorf("%w: invalid JSON body: %v", domain.ErrInvalidRequest, err)
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	m := classify(err)
	body := ErrorBody{Kind: m.kind, Message: publicMessage(m, err)}

	var insufficient *domain.InsufficientInventoryError
	if errors.As(err, &insufficient) {
		line := insufficient.Line
		available := insufficient.Available
		body.Line = &line
		body.Available = &available
	}

	if m.httpStatus >= http.StatusInternalServerError && m.kind != kindNotImplemented {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("kind", m.kind),
			zap.Error(err),
		)
	}

	writeJSON(w, m.httpStatus, ErrorResponse{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
