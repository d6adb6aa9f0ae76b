package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCountBooks(t *testing.T) {
	counts, err := CountBooks([]string{"a", "b", "a", "a"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 3, "b": 1}, counts)

	_, err = CountBooks([]string{"a", strings.Repeat("b", MaxBookIDLength+1)})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = CountBooks(nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = CountBooks([]string{"a", ""})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCountBooks_PreservesMultiset(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ids := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c", "d"}), 1, 50).Draw(t, "ids")

		counts, err := CountBooks(ids)
		if err != nil {
			t.Fatalf("CountBooks: %v", err)
		}

		total := 0
		for id, n := range counts {
			occurrences := 0
			for _, x := range ids {
				if x == id {
					occurrences++
				}
			}
			if n != occurrences {
				t.Fatalf("book %s: count %d, occurrences %d", id, n, occurrences)
			}
			total += n
		}
		if total != len(ids) {
			t.Fatalf("total %d, want %d", total, len(ids))
		}
	})
}

func TestValidateLines(t *testing.T) {
	assert.ErrorIs(t, ValidateLines(nil), ErrInvalidRequest)
	assert.NoError(t, ValidateLines([]FulfillmentLine{{Book: "a", Shelf: "s1", NumberOfBooks: 1}}))
	assert.ErrorIs(t, ValidateLines([]FulfillmentLine{{Book: "a", Shelf: "s1", NumberOfBooks: 0}}), ErrInvalidRequest)
	assert.ErrorIs(t, ValidateLines([]FulfillmentLine{{Book: "a", Shelf: "x\x00y", NumberOfBooks: 1}}), ErrInvalidRequest)
}

func TestMatchLines(t *testing.T) {
	order := Order{ID: "o1", Books: map[string]int{"a": 2, "b": 1}}

	ok := []FulfillmentLine{
		{Book: "a", Shelf: "s1", NumberOfBooks: 1},
		{Book: "a", Shelf: "s2", NumberOfBooks: 1},
		{Book: "b", Shelf: "s1", NumberOfBooks: 1},
	}
	assert.NoError(t, MatchLines(order, ok))

	missingB := ok[:2]
	assert.ErrorIs(t, MatchLines(order, missingB), ErrInvalidRequest)

	foreign := append([]FulfillmentLine{{Book: "z", Shelf: "s1", NumberOfBooks: 1}}, ok...)
	assert.ErrorIs(t, MatchLines(order, foreign), ErrInvalidRequest)
}

func TestErrorKinds(t *testing.T) {
	insufficient := &InsufficientInventoryError{Line: FulfillmentLine{Book: "a", Shelf: "s", NumberOfBooks: 5}, Available: 1}
	assert.True(t, errors.Is(insufficient, ErrInsufficientInventory))
	assert.Contains(t, insufficient.Error(), "available 1")

	race := &FulfillmentRaceError{OrderID: "o1", Line: FulfillmentLine{Book: "a", Shelf: "s", NumberOfBooks: 1}}
	assert.True(t, errors.Is(race, ErrFulfillmentRace))
	assert.False(t, errors.Is(race, ErrInsufficientInventory))
	assert.NotContains(t, race.Error(), "compensation failed")

	race.CompensationErr = errors.New("boom")
	assert.Contains(t, race.Error(), "compensation failed")
}

func TestValidateStockKey(t *testing.T) {
	assert.NoError(t, ValidateStockKey("book", "A-1"))
	assert.ErrorIs(t, ValidateStockKey(" ", "A-1"), ErrInvalidRequest)
	assert.ErrorIs(t, ValidateStockKey("book", "a/b"), ErrInvalidRequest)

	assert.NoError(t, ValidateStockKey(strings.Repeat("b", MaxBookIDLength), strings.Repeat("é", MaxShelfLength)))
	assert.ErrorIs(t, ValidateStockKey(strings.Repeat("b", MaxBookIDLength+1), "A-1"), ErrInvalidRequest)
	assert.ErrorIs(t, ValidateStockKey("book", strings.Repeat("s", MaxShelfLength+1)), ErrInvalidRequest)
}
