package storage

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rl1809/bookstore/internal/core/domain"
)

// LoadCatalogFile reads a JSON array of books, the format of books.json.
func LoadCatalogFile(path string) ([]domain.Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var books []domain.Book
	if err := json.Unmarshal(data, &books); err != nil {
		return nil, fmt.Errorf("decode catalog file %s: %w", path, err)
	}
	return books, nil
}
