package domain

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func fptr(v float64) *float64 { return &v }
func sptr(v string) *string   { return &v }

func TestFilterValidate(t *testing.T) {
	tests := []struct {
		name    string
		filter  Filter
		wantErr bool
	}{
		{"empty", Filter{}, false},
		{"range", Filter{From: fptr(1), To: fptr(2)}, false},
		{"equal bounds", Filter{From: fptr(2), To: fptr(2)}, false},
		{"inverted", Filter{From: fptr(3), To: fptr(2)}, true},
		{"negative from", Filter{From: fptr(-1)}, true},
		{"negative to", Filter{To: fptr(-0.5)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestApplyFilters(t *testing.T) {
	books := []Book{
		{ID: "1", Name: "Go Basics", Author: "Ann", Price: 10},
		{ID: "2", Name: "Rust", Author: "X", Price: 25},
		{ID: "3", Name: "Advanced go", Author: "x-men", Price: 40},
	}

	ids := func(bs []Book) string {
		s := ""
		for _, b := range bs {
			s += b.ID
		}
		return s
	}

	tests := []struct {
		name    string
		filters []Filter
		want    string
	}{
		{"no filters", nil, "123"},
		{"price window", []Filter{{From: fptr(20), To: fptr(30)}}, "2"},
		{"inclusive bounds", []Filter{{From: fptr(10), To: fptr(25)}}, "12"},
		{"union", []Filter{{From: fptr(20), To: fptr(30)}, {Author: sptr("X")}}, "23"},
		{"name case-insensitive", []Filter{{Name: sptr("GO")}}, "13"},
		{"and within filter", []Filter{{Name: sptr("go"), From: fptr(20)}}, "3"},
		{"empty filter matches all", []Filter{{}}, "123"},
		{"no match", []Filter{{Author: sptr("zed")}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ids(ApplyFilters(books, tt.filters)); got != tt.want {
				t.Errorf("ApplyFilters() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApplyFilters_UnionOfSingles(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		genBook := rapid.Custom(func(t *rapid.T) Book {
			return Book{
				Name:   rapid.SampledFrom([]string{"alpha", "Beta", "gamma"}).Draw(t, "name"),
				Author: rapid.SampledFrom([]string{"Ann", "bob"}).Draw(t, "author"),
				Price:  float64(rapid.IntRange(0, 100).Draw(t, "price")),
			}
		})
		genFilter := rapid.Custom(func(t *rapid.T) Filter {
			var f Filter
			if rapid.Bool().Draw(t, "hasFrom") {
				f.From = fptr(float64(rapid.IntRange(0, 100).Draw(t, "from")))
			}
			if rapid.Bool().Draw(t, "hasName") {
				f.Name = sptr(rapid.SampledFrom([]string{"a", "BET", "mm"}).Draw(t, "sub"))
			}
			return f
		})

		books := rapid.SliceOfN(genBook, 0, 10).Draw(t, "books")
		filters := rapid.SliceOfN(genFilter, 1, 4).Draw(t, "filters")

		combined := len(ApplyFilters(books, filters))
		for _, b := range books {
			matched := false
			for _, f := range filters {
				if len(ApplyFilters([]Book{b}, []Filter{f})) == 1 {
					matched = true
				}
			}
			if matched != MatchesAny(filters, b) {
				t.Fatalf("book %+v: union disagrees with MatchesAny", b)
			}
		}
		if combined > len(books) {
			t.Fatalf("filtered %d books out of %d", combined, len(books))
		}
	})
}
