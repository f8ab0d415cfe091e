package booking

import (
	"errors"
	"fmt"

	"holidaylet/internal/apperr"
	"holidaylet/internal/dates"
)

var (
	// ErrInvalidTransition is returned when the current status does not allow
	// the requested change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConcurrentModification is returned by Store.UpdateBooking when the
	// stored version no longer matches.
	ErrConcurrentModification = errors.New("booking was modified concurrently")
)

// ConflictError reports confirmed bookings that already hold some of the
// requested nights.
type ConflictError struct {
	Stay dates.Interval
	With []int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("overlaps an existing confirmed booking (%s)", e.Stay)
}

func (e *ConflictError) Unwrap() error {
	return apperr.ErrConflict
}

// IsConflict checks if err is an overlap conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsTransitionError checks if err reports a disallowed status change.
func IsTransitionError(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

func transitionError(from, to Status) error {
	return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
}
