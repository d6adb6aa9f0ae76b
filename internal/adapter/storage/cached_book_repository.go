package storage

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/port"
)

// CachedBookRepository is a read-through cache in front of a BookRepository.
// Filtered queries are answered from the cached full catalog. Cache errors
// are logged and fall through to the store.
type CachedBookRepository struct {
	repo   port.BookRepository
	cache  port.BookCache
	logger *zap.Logger
}

func NewCachedBookRepository(repo port.BookRepository, cache port.BookCache, logger *zap.Logger) *CachedBookRepository {
	return &CachedBookRepository{repo: repo, cache: cache, logger: logger}
}

func (c *CachedBookRepository) ListBooks(ctx context.Context, filters []domain.Filter) ([]domain.Book, error) {
	books, hit, err := c.cache.GetCatalog(ctx)
	if err != nil {
		c.logger.Warn("catalog cache read failed", zap.Error(err))
	}
	if hit {
		return domain.ApplyFilters(books, filters), nil
	}

	books, err = c.repo.ListBooks(ctx, nil)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetCatalog(ctx, books); err != nil {
		c.logger.Warn("catalog cache write failed", zap.Error(err))
	}
	return domain.ApplyFilters(books, filters), nil
}

func (c *CachedBookRepository) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	book, hit, err := c.cache.GetBook(ctx, id)
	if err != nil {
		c.logger.Warn("book cache read failed", zap.String("book_id", id), zap.Error(err))
	}
	if hit {
		return book, nil
	}

	book, err = c.repo.GetBook(ctx, id)
	if err != nil || book == nil {
		return book, err
	}
	if err := c.cache.SetBook(ctx, *book); err != nil {
		c.logger.Warn("book cache write failed", zap.String("book_id", id), zap.Error(err))
	}
	return book, nil
}
