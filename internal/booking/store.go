package booking

import (
	"context"

	"holidaylet/internal/dates"
)

// Filter narrows ListBookings. Zero fields do not filter.
type Filter struct {
	Statuses []Status
	// Overlapping keeps bookings sharing at least one night with the interval.
	Overlapping *dates.Interval
}

// Store is the record store behind the lifecycle. Implementations return
// errors wrapping apperr.ErrNotFound for missing rows and
// ErrConcurrentModification when an update's expected version is stale.
type Store interface {
	GetBooking(ctx context.Context, id int64) (*Booking, error)
	// ListBookings returns matches ordered by start date, then ID.
	ListBookings(ctx context.Context, filter Filter) ([]Booking, error)
	// InsertBooking assigns ID, Version and timestamps on b.
	InsertBooking(ctx context.Context, b *Booking) error
	// InsertBookings writes all of bs or none of them, in statements of at
	// most chunkSize rows.
	InsertBookings(ctx context.Context, bs []Booking, chunkSize int) error
	// UpdateBooking writes b if the stored version equals expectedVersion
	// and advances b.Version.
	UpdateBooking(ctx context.Context, b *Booking, expectedVersion int64) error
	DeleteBooking(ctx context.Context, id int64) error
}

// Publisher receives lifecycle events.
type Publisher interface {
	PublishJSON(eventType string, payload any) error
}
