package order

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrForbidden is returned when the policy denies the requested action.
	ErrForbidden = errors.New("operation not permitted")

	// ErrNotFound is returned when an order does not exist or is not visible
	// to the actor. The two cases are deliberately indistinguishable so that
	// existence of other users' orders never leaks.
	ErrNotFound = errors.New("order not found")
)

// ValidationError reports a malformed placement or status request with
// field-level detail. It is always raised before any mutation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InsufficientStockError aborts a placement mid-transaction; the whole
// transaction rolls back and the offending product name is surfaced.
type InsufficientStockError struct {
	Product string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product: %s", e.Product)
}

// AsValidation unwraps a ValidationError if err carries one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// AsInsufficientStock unwraps an InsufficientStockError if err carries one.
func AsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var se *InsufficientStockError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
