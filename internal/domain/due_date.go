package domain

import (
	"fmt"
	"time"
)

// DueDate is the instant an invoice must be settled by
type DueDate struct {
	value time.Time
}

// NewDueDate rejects the zero time and instants before now
func NewDueDate(t time.Time) (DueDate, error) {
	if t.IsZero() {
		return DueDate{}, fmt.Errorf("%w: a date is required", ErrInvalidDueDate)
	}
	if t.Before(now()) {
		return DueDate{}, fmt.Errorf("%w: %s is in the past", ErrInvalidDueDate, t.Format(time.RFC3339))
	}
	return DueDate{value: t.UTC()}, nil
}

// DueDateFromStorage rebuilds a persisted due date without the past check
func DueDateFromStorage(t time.Time) DueDate {
	return DueDate{value: t.UTC()}
}

// Value returns the wrapped instant
func (d DueDate) Value() time.Time {
	return d.value
}

// IsBefore reports whether the due date falls before t
func (d DueDate) IsBefore(t time.Time) bool {
	return d.value.Before(t)
}
