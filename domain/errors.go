package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrValidation              = errors.New("validation failed")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrInvalidSaleUnit         = errors.New("invalid sale unit")
	ErrInvalidQuantity         = errors.New("quantity must be at least 1")
	ErrLineNotFound            = errors.New("bill line not found")
	ErrEmptyBill               = errors.New("bill has no lines")
	ErrCheckoutInProgress      = errors.New("checkout already in progress")
	ErrPartialCommit           = errors.New("sale commit outcome unknown")
	ErrDuplicatePhone          = errors.New("customer with this phone already exists")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrUpstreamUnavailable     = errors.New("upstream unavailable")
)

// InsufficientStockError names the item that failed stock validation.
type InsufficientStockError struct {
	ItemID    string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s (available: %s, requested: %s)", e.ItemID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// InvalidSaleUnitError is returned for sub-unit sales of non-divisible forms.
type InvalidSaleUnitError struct {
	ItemID string
	Form   Form
}

func (e *InvalidSaleUnitError) Error() string {
	return fmt.Sprintf("item %s (%s) cannot be sold by sub-unit", e.ItemID, e.Form)
}

func (e *InvalidSaleUnitError) Is(target error) bool { return target == ErrInvalidSaleUnit }

// PartialCommitError is returned when a sale may or may not have been
// persisted. The order must not be treated as committed.
type PartialCommitError struct {
	OrderID string
	Err     error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("commit of order %s did not complete: %v", e.OrderID, e.Err)
}

func (e *PartialCommitError) Is(target error) bool { return target == ErrPartialCommit }

func (e *PartialCommitError) Unwrap() error { return e.Err }

// Validationf builds an ErrValidation with a message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
