package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/port"
)

type CatalogService struct {
	books  port.BookRepository
	logger *zap.Logger
}

func NewCatalogService(books port.BookRepository, logger *zap.Logger) *CatalogService {
	return &CatalogService{books: books, logger: logger}
}

func (s *CatalogService) ListBooks(ctx context.Context, filters []domain.Filter) ([]domain.Book, error) {
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return nil, err
		}
	}

	books, err := s.books.ListBooks(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	if books == nil {
		books = []domain.Book{}
	}
	return books, nil
}

func (s *CatalogService) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: book id is required", domain.ErrInvalidRequest)
	}

	book, err := s.books.GetBook(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if book == nil {
		return nil, fmt.Errorf("%w: book %s", domain.ErrNotFound, id)
	}
	return book, nil
}

// SaveBook is part of the admin contract but has no backing implementation.
func (s *CatalogService) SaveBook(ctx context.Context, book domain.Book) (string, error) {
	s.logger.Info("rejected book create/update", zap.String("book_id", book.ID))
	return "", fmt.Errorf("%w: book create/update", domain.ErrNotImplemented)
}

func (s *CatalogService) RemoveBook(ctx context.Context, id string) error {
	s.logger.Info("rejected book removal", zap.String("book_id", id))
	return fmt.Errorf("%w: book removal", domain.ErrNotImplemented)
}
