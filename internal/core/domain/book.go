package domain

import "strings"

type Book struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Author      string  `json:"author"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Image       string  `json:"image"`
}

// Filter is one AND-group of catalog conditions. Nil fields are not checked.
type Filter struct {
	From   *float64 `json:"from,omitempty"`
	To     *float64 `json:"to,omitempty"`
	Name   *string  `json:"name,omitempty"`
	Author *string  `json:"author,omitempty"`
}

func (f Filter) Validate() error {
	if f.From != nil && *f.From < 0 {
		return invalidf("filter lower price bound %v is negative", *f.From)
	}
	if f.To != nil && *f.To < 0 {
		return invalidf("filter upper price bound %v is negative", *f.To)
	}
	if f.From != nil && f.To != nil && *f.From > *f.To {
		return invalidf("filter lower price bound %v exceeds upper bound %v", *f.From, *f.To)
	}
	return nil
}

// Matches reports whether b satisfies every condition set on f.
func (f Filter) Matches(b Book) bool {
	if f.From != nil && b.Price < *f.From {
		return false
	}
	if f.To != nil && b.Price > *f.To {
		return false
	}
	if f.Name != nil && !containsFold(b.Name, *f.Name) {
		return false
	}
	if f.Author != nil && !containsFold(b.Author, *f.Author) {
		return false
	}
	return true
}

// MatchesAny ORs the filters together. An empty list matches every book.
func MatchesAny(filters []Filter, b Book) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.Matches(b) {
			return true
		}
	}
	return false
}

func ApplyFilters(books []Book, filters []Filter) []Book {
	out := make([]Book, 0, len(books))
	for _, b := range books {
		if MatchesAny(filters, b) {
			out = append(out, b)
		}
	}
	return out
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
