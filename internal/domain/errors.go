package domain

import (
	"errors"
	"fmt"
)

// ErrValidation is the parent of every construction and argument error raised by the domain.
// Callers test for it with errors.Is.
var ErrValidation = errors.New("validation error")

// Validation errors
var (
	ErrInvalidAmount    = fmt.Errorf("%w: money amount must be non-negative", ErrValidation)
	ErrInvalidCurrency  = fmt.Errorf("%w: currency must be a non-empty code", ErrValidation)
	ErrCurrencyMismatch = fmt.Errorf("%w: currency mismatch", ErrValidation)
	ErrNegativeResult   = fmt.Errorf("%w: resulting money amount cannot be negative", ErrValidation)
	ErrInvalidFactor    = fmt.Errorf("%w: multiplication factor must be non-negative", ErrValidation)
	ErrEmptyList        = fmt.Errorf("%w: cannot sum an empty money list", ErrValidation)
	ErrInvalidItem      = fmt.Errorf("%w: invalid invoice item", ErrValidation)
	ErrInvalidDueDate   = fmt.Errorf("%w: invalid due date", ErrValidation)
	ErrNoItems          = fmt.Errorf("%w: invoice must have at least one item", ErrValidation)
	ErrClientRequired   = fmt.Errorf("%w: client id is required", ErrValidation)
	ErrIDRequired       = fmt.Errorf("%w: invoice id is required", ErrValidation)
	ErrLastItem         = fmt.Errorf("%w: cannot remove the last item of an invoice", ErrValidation)
	ErrInvalidStatus    = fmt.Errorf("%w: unknown invoice status", ErrValidation)
)

// State and storage errors
var (
	ErrInvalidTransition      = errors.New("invalid invoice state transition")
	ErrIndexOutOfRange        = errors.New("invoice item index out of range")
	ErrConcurrentModification = errors.New("invoice was modified concurrently")
)

func transitionError(op string, status InvoiceStatus) error {
	return fmt.Errorf("%w: cannot %s invoice in status %s", ErrInvalidTransition, op, status)
}
