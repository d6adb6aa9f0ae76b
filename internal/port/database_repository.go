package port

import (
	"context"
	"time"

	"github.com/rl1809/bookstore/internal/core/domain"
)

type BookRepository interface {
	// ListBooks returns books matching at least one filter, or all books when filters is empty
	ListBooks(ctx context.Context, filters []domain.Filter) ([]domain.Book, error)

	// GetBook returns nil, nil when the book does not exist
	GetBook(ctx context.Context, id string) (*domain.Book, error)
}

type InventoryRepository interface {
	// AddStock increments the (book, shelf) entry, creating it if absent
	AddStock(ctx context.Context, bookID, shelf string, quantity int) error

	// Lookup lists every shelf holding stock of the book; unknown books yield an empty slice
	Lookup(ctx context.Context, bookID string) ([]domain.ShelfLocation, error)

	// GetEntry returns nil, nil when no stock exists for the key
	GetEntry(ctx context.Context, bookID, shelf string) (*domain.InventoryEntry, error)

	// TryDecrement atomically subtracts quantity if enough stock exists, returns false otherwise.
	// An entry driven to zero is removed by the same call.
	TryDecrement(ctx context.Context, bookID, shelf string, quantity int) (bool, error)
}

type OrderRepository interface {
	// CreateOrder persists a pending order and returns the store-assigned id
	CreateOrder(ctx context.Context, order domain.Order) (string, error)

	// GetOrder returns nil, nil when the order does not exist
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	ListOrders(ctx context.Context) ([]domain.Order, error)

	// MarkFulfilled flips a pending order to fulfilled, returns domain.ErrConflict otherwise
	MarkFulfilled(ctx context.Context, id string, at time.Time) error
}

// Pinger is implemented by stores that can report their connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
