package service

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/port"
)

type WarehouseService struct {
	inventory port.InventoryRepository
	logger    *zap.Logger
}

func NewWarehouseService(inventory port.InventoryRepository, logger *zap.Logger) *WarehouseService {
	return &WarehouseService{inventory: inventory, logger: logger}
}

// AddStock places count copies of a book on a shelf.
func (s *WarehouseService) AddStock(ctx context.Context, bookID, shelf string, count int) error {
	if err := domain.ValidateStockKey(bookID, shelf); err != nil {
		return err
	}
	if count <= 0 {
		return fmt.Errorf("%w: count must be positive, got %d", domain.ErrInvalidRequest, count)
	}

	if err := s.inventory.AddStock(ctx, bookID, shelf, count); err != nil {
		return fmt.Errorf("add stock: %w", err)
	}

	s.logger.Info("stock added",
		zap.String("book_id", bookID),
		zap.String("shelf", shelf),
		zap.Int("count", count),
	)
	return nil
}

// FindBook lists the shelves holding the book, ordered by shelf id.
func (s *WarehouseService) FindBook(ctx context.Context, bookID string) ([]domain.ShelfLocation, error) {
	if err := domain.ValidateStockKey(bookID, "-"); err != nil {
		return nil, err
	}

	locations, err := s.inventory.Lookup(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("lookup stock: %w", err)
	}
	if locations == nil {
		locations = []domain.ShelfLocation{}
	}

	sort.Slice(locations, func(i, j int) bool { return locations[i].Shelf < locations[j].Shelf })
	return locations, nil
}
