package port

import (
	"context"

	"github.com/rl1809/bookstore/internal/core/domain"
)

type BookCache interface {
	// GetBook returns false on a cache miss
	GetBook(ctx context.Context, id string) (*domain.Book, bool, error)
	SetBook(ctx context.Context, book domain.Book) error

	// GetCatalog returns the cached unfiltered catalog, false on a miss
	GetCatalog(ctx context.Context) ([]domain.Book, bool, error)
	SetCatalog(ctx context.Context, books []domain.Book) error

	InvalidateBooks(ctx context.Context, ids ...string) error
}

type FulfillmentLocker interface {
	// TryAcquire takes the lock for key without waiting, returns false if another holder has it
	TryAcquire(ctx context.Context, key string) (release func(context.Context) error, acquired bool, err error)
}
