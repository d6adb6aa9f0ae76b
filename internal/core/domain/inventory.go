package domain

import (
	"strings"
	"unicode/utf8"
)

// Key length limits shared by every store; the SQL schema sizes its columns to match.
const (
	MaxBookIDLength = 64
	MaxShelfLength  = 128
)

// InventoryEntry is the stock of one book on one shelf. Entries with
// Count <= 0 are never persisted.
type InventoryEntry struct {
	BookID string
	Shelf  string
	Count  int
}

type ShelfLocation struct {
	Shelf string `json:"shelf"`
	Count int    `json:"count"`
}

// ValidateStockKey checks the (book, shelf) identifiers used as an inventory key.
func ValidateStockKey(bookID, shelf string) error {
	if strings.TrimSpace(bookID) == "" {
		return invalidf("book id is required")
	}
	if strings.TrimSpace(shelf) == "" {
		return invalidf("shelf is required")
	}
	if n := utf8.RuneCountInString(bookID); n > MaxBookIDLength {
		return invalidf("book id is %d characters, limit is %d", n, MaxBookIDLength)
	}
	if n := utf8.RuneCountInString(shelf); n > MaxShelfLength {
		return invalidf("shelf is %d characters, limit is %d", n, MaxShelfLength)
	}
	if strings.ContainsAny(shelf, "/\x00") {
		return invalidf("shelf %q contains illegal characters", shelf)
	}
	return nil
}
