package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrFulfillmentRace       = errors.New("fulfillment race detected")
	ErrNotImplemented        = errors.New("not implemented")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// InsufficientInventoryError names the first line the validation pass rejected.
type InsufficientInventoryError struct {
	Line      FulfillmentLine
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for book %s on shelf %s: requested %d, available %d",
		e.Line.Book, e.Line.Shelf, e.Line.NumberOfBooks, e.Available)
}

func (e *InsufficientInventoryError) Unwrap() error { return ErrInsufficientInventory }

// FulfillmentRaceError reports a commit-pass decrement that lost to a
// concurrent writer after validation had passed.
type FulfillmentRaceError struct {
	OrderID string
	Line    FulfillmentLine
	// Compensated lists the lines whose decrements were restored.
	Compensated []FulfillmentLine
	// CompensationErr is set when restoring stock failed; inventory is then
	// left short by the lines missing from Compensated.
	CompensationErr error
}

func (e *FulfillmentRaceError) Error() string {
	msg := fmt.Sprintf("fulfillment race on order %s: book %s on shelf %s no longer holds %d copies",
		e.OrderID, e.Line.Book, e.Line.Shelf, e.Line.NumberOfBooks)
	if e.CompensationErr != nil {
		msg += fmt.Sprintf(" (compensation failed: %v)", e.CompensationErr)
	}
	return msg
}

func (e *FulfillmentRaceError) Unwrap() error { return ErrFulfillmentRace }
