package handler

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/rl1809/bookstore/internal/core/domain"
)

const BookstoreServiceName = "bookstore.v1.Bookstore"

// jsonCodec lets clients call the service with content-subtype "json"
// without generated protobuf stubs.
type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type ListBooksRequest struct {
	Filters []domain.Filter `json:"filters"`
}

type ListBooksResponse struct {
	Books []domain.Book `json:"books"`
}

type GetBookRequest struct {
	ID string `json:"id"`
}

type SaveBookRequest struct {
	Book domain.Book `json:"book"`
}

type SaveBookResponse struct {
	ID string `json:"id"`
}

type RemoveBookRequest struct {
	ID string `json:"id"`
}

type Empty struct{}

type AddStockRequest struct {
	BookID string `json:"bookId"`
	Shelf  string `json:"shelf"`
	Count  int    `json:"count"`
}

type FindBookRequest struct {
	BookID string `json:"bookId"`
}

type FindBookResponse struct {
	Shelves map[string]int `json:"shelves"`
}

type CreateOrderRequest struct {
	Order []string `json:"order"`
}

type CreateOrderResponse struct {
	OrderID string `json:"orderId"`
}

type ListOrdersResponse struct {
	Orders []OrderResponse `json:"orders"`
}

type GetOrderRequest struct {
	OrderID string `json:"orderId"`
}

type FulfillOrderRequest struct {
	OrderID        string                   `json:"orderId"`
	BooksFulfilled []domain.FulfillmentLine `json:"booksFulfilled"`
}

type BookstoreServer interface {
	ListBooks(context.Context, *ListBooksRequest) (*ListBooksResponse, error)
	GetBook(context.Context, *GetBookRequest) (*domain.Book, error)
	SaveBook(context.Context, *SaveBookRequest) (*SaveBookResponse, error)
	RemoveBook(context.Context, *RemoveBookRequest) (*Empty, error)
	AddStock(context.Context, *AddStockRequest) (*MessageResponse, error)
	FindBook(context.Context, *FindBookRequest) (*FindBookResponse, error)
	CreateOrder(context.Context, *CreateOrderRequest) (*CreateOrderResponse, error)
	ListOrders(context.Context, *Empty) (*ListOrdersResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*OrderResponse, error)
	FulfillOrder(context.Context, *FulfillOrderRequest) (*MessageResponse, error)
}

func unary[Req, Resp any](name string, call func(BookstoreServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(BookstoreServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + BookstoreServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*Req))
			})
		},
	}
}

var BookstoreServiceDesc = grpc.ServiceDesc{
	ServiceName: BookstoreServiceName,
	HandlerType: (*BookstoreServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListBooks", BookstoreServer.ListBooks),
		unary("GetBook", BookstoreServer.GetBook),
		unary("SaveBook", BookstoreServer.SaveBook),
		unary("RemoveBook", BookstoreServer.RemoveBook),
		unary("AddStock", BookstoreServer.AddStock),
		unary("FindBook", BookstoreServer.FindBook),
		unary("CreateOrder", BookstoreServer.CreateOrder),
		unary("ListOrders", BookstoreServer.ListOrders),
		unary("GetOrder", BookstoreServer.GetOrder),
		unary("FulfillOrder", BookstoreServer.FulfillOrder),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bookstore/v1/bookstore.json",
}

var _ BookstoreServer = (*GRPCHandler)(nil)

func RegisterBookstoreServer(s grpc.ServiceRegistrar, srv BookstoreServer) {
	s.RegisterService(&BookstoreServiceDesc, srv)
}

type GRPCHandler struct {
	services     Services
	storeTimeout time.Duration
	logger       *zap.Logger
}

func NewGRPCHandler(services Services, storeTimeout time.Duration, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{services: services, storeTimeout: storeTimeout, logger: logger}
}

func (h *GRPCHandler) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.storeTimeout)
}

func (h *GRPCHandler) toStatus(method string, err error) error {
	m := classify(err)
	if m.kind == kindInternal || m.kind == kindFulfillmentRace {
		h.logger.Error("rpc failed", zap.String("method", method), zap.Error(err))
	}
	return status.Error(m.grpcCode, publicMessage(m, err))
}

func (h *GRPCHandler) ListBooks(ctx context.Context, req *ListBooksRequest) (*ListBooksResponse, error) {
	ctx, cancel := h.storeContext(ctx)
	defer cancel()

	books, err := h.services.Catalog.ListBooks(ctx, req.Filters)
	if err != nil {
		return nil, h.toStatus("ListBooks", err)
	}
	return &ListBooksResponse{Books: books}, nil
}

func (h *GRPCHandler) GetBook(ctx context.Context, req *GetBookRequest) (*domain.Book, error) {
	ctx, cancel := h.storeContext(ctx)
	defer cancel()

	book, err := h.services.Catalog.GetBook(ctx, req.ID)
	if err != nil {
		return nil, h.toStatus("GetBook", err)
	}
	return book, nil
}

func (h *GRPCHandler) SaveBook(ctx context.Context, req *SaveBookRequest) (*SaveBookResponse, error) {
	id, err := h.services.Catalog.SaveBook(ctx, req.Book)
	if err != nil {
		return nil, h.toStatus("SaveBook", err)
	}
	return &SaveBookResponse{ID: id}, nil
}

func (h *GRPCHandler) RemoveBook(ctx context.Context, req *RemoveBookRequest) (*Empty, error) {
	if err := h.services.Catalog.RemoveBook(ctx, req.ID); err != nil {
		return nil, h.toStatus("RemoveBook", err)
	}
	return &Empty{}, nil
}

func (h *GRPCHandler) AddStock(ctx context.Context, req *AddStockRequest) (*MessageResponse, error) {
	ctx, cancel := h.storeContext(ctx)
	defer cancel()

	if err := h.services.Warehouse.AddStock(ctx, req.BookID, req.Shelf, req.Count); err != nil {
		return nil, h.toStatus("AddStock", err)
	}
	return &MessageResponse{Message: "Books added to shelf successfully"}, nil
}

func (h *GRPCHandler) FindBook(ctx context.Context, req *FindBookRequest) (*FindBookResponse, error) {
	ctx, cancel := h.storeContext(ctx)
	defer cancel()

	locations, err := h.services.Warehouse.FindBook(ctx, req.BookID)
	if err != nil {
		return nil, h.toStatus("FindBook", err)
	}
	shelves := make(map[string]int, len(locations))
	for _, loc := range locations {
		shelves[loc.Shelf] = loc.Count
	}
	return &FindBookResponse{Shelves: shelves}, nil
}

func (h *GRPCHandler) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, cancel := h.storeContext(ctx)
	defer cancel()

	id, err := h.services.Orders.CreateOrder(ctx, req.Order)
	if err != nil {
		return nil, h.toStatus("CreateOrder", err)
	}
	return &CreateOrderResponse{OrderID: id}, nil
}

func (h *GRPCHandler) ListOrders(ctx context.Context, _ *Empty) (*ListOrdersResponse, error) {
	ctx, cancel := h.storeContext(ctx)
	defer cancel()

	orders, err := h.services.Orders.ListOrders(ctx)
	if err != nil {
		return nil, h.toStatus("ListOrders", err)
	}
	resp := &ListOrdersResponse{Orders: make([]OrderResponse, 0, len(orders))}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, toOrderResponse(o))
	}
	return resp, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderResponse, error) {
	ctx, cancel := h.storeContext(ctx)
	defer cancel()

	order, err := h.services.Orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, h.toStatus("GetOrder", err)
	}
	resp := toOrderResponse(*order)
	return &resp, nil
}

func (h *GRPCHandler) FulfillOrder(ctx context.Context, req *FulfillOrderRequest) (*MessageResponse, error) {
	ctx, cancel := h.storeContext(ctx)
	defer cancel()

	if err := h.services.Fulfillment.FulfillOrder(ctx, req.OrderID, req.BooksFulfilled); err != nil {
		return nil, h.toStatus("FulfillOrder", err)
	}
	return &MessageResponse{Message: "Order fulfilled successfully"}, nil
}

// LoggingInterceptor logs every unary call with its status code.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		logger.Info("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}
