package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFulfilled OrderStatus = "fulfilled"
)

type Order struct {
	ID          string
	Books       map[string]int // book id -> requested copies
	Status      OrderStatus
	CreatedAt   time.Time
	FulfilledAt *time.Time // set only when Status is fulfilled
}

// FulfillmentLine asks for NumberOfBooks copies of Book to be picked from Shelf.
type FulfillmentLine struct {
	Book          string `json:"book"`
	Shelf         string `json:"shelf"`
	NumberOfBooks int    `json:"numberOfBooks"`
}

// CountBooks collapses a list of book ids into per-book copy counts.
func CountBooks(bookIDs []string) (map[string]int, error) {
	if len(bookIDs) == 0 {
		return nil, invalidf("order must contain at least one book")
	}
	counts := make(map[string]int, len(bookIDs))
	for i, id := range bookIDs {
		if strings.TrimSpace(id) == "" {
			return nil, invalidf("book id at position %d is empty", i)
		}
		if n := utf8.RuneCountInString(id); n > MaxBookIDLength {
			return nil, invalidf("book id at position %d is %d characters, limit is %d", i, n, MaxBookIDLength)
		}
		counts[id]++
	}
	return counts, nil
}

func (l FulfillmentLine) Validate() error {
	if err := ValidateStockKey(l.Book, l.Shelf); err != nil {
		return err
	}
	if l.NumberOfBooks <= 0 {
		return invalidf("numberOfBooks for book %s on shelf %s must be positive, got %d", l.Book, l.Shelf, l.NumberOfBooks)
	}
	return nil
}

func ValidateLines(lines []FulfillmentLine) error {
	if len(lines) == 0 {
		return invalidf("at least one fulfillment line is required")
	}
	for _, l := range lines {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MatchLines checks that the lines pick exactly the copies the order requested.
func MatchLines(order Order, lines []FulfillmentLine) error {
	picked := make(map[string]int, len(order.Books))
	for _, l := range lines {
		if _, ok := order.Books[l.Book]; !ok {
			return invalidf("book %s is not part of order %s", l.Book, order.ID)
		}
		picked[l.Book] += l.NumberOfBooks
	}
	for book, want := range order.Books {
		if got := picked[book]; got != want {
			return invalidf("order %s requests %d copies of book %s, lines pick %d", order.ID, want, book, got)
		}
	}
	return nil
}
