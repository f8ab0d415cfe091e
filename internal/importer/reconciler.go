// Package importer reconciles bulk booking uploads against the confirmed
// calendar.
package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"holidaylet/internal/apperr"
	"holidaylet/internal/booking"
	"holidaylet/internal/events"
	"holidaylet/internal/metrics"
	"holidaylet/shared/access"
)

// Mode decides what a bad row does to the batch.
type Mode string

const (
	// ModeSkip records bad rows and imports the rest.
	ModeSkip Mode = "skip"
	// ModeStrict aborts the whole batch on the first bad row.
	ModeStrict Mode = "strict"
)

// ParseMode returns ModeStrict for "strict" and ModeSkip otherwise.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeStrict)) {
		return ModeStrict
	}
	return ModeSkip
}

// DefaultChunkSize bounds the rows per insert statement.
const DefaultChunkSize = 200

// Result summarises an import.
type Result struct {
	BatchID  string   `json:"batch_id"`
	Mode     Mode     `json:"mode"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// RowError ties a rejection to its 1-based row number.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("Row %d: %s", e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Reconciler imports batches of rows.
type Reconciler struct {
	store     booking.Store
	locker    booking.Locker
	events    booking.Publisher
	chunkSize int
	now       func() time.Time
	logger    zerolog.Logger
}

func NewReconciler(store booking.Store, locker booking.Locker, publisher booking.Publisher, chunkSize int, logger *zerolog.Logger) *Reconciler {
	if locker == nil {
		locker = booking.NewMutexLocker()
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Reconciler{
		store:     store,
		locker:    locker,
		events:    publisher,
		chunkSize: chunkSize,
		now:       time.Now,
		logger:    logger.With().Str("component", "importer").Logger(),
	}
}

// Import checks rows in order against the confirmed bookings in the store
// and against confirmed rows accepted earlier in the same batch, then writes
// the accepted rows. In strict mode the first rejected row aborts the import
// and nothing is written; the returned error is a *RowError.
func (r *Reconciler) Import(ctx context.Context, actor access.Actor, rows []Row, mode Mode) (*Result, error) {
	if err := access.RequireOwner(actor, "import bookings"); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.Invalid("rows", "No rows provided")
	}
	if mode != ModeStrict {
		mode = ModeSkip
	}

	res := &Result{BatchID: uuid.NewString(), Mode: mode, Errors: []string{}}
	log := r.logger.With().Str("batch_id", res.BatchID).Str("mode", string(mode)).Logger()

	unlock, err := r.locker.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire writer lock: %w", err)
	}
	defer unlock()

	confirmed, err := r.store.ListBookings(ctx, booking.Filter{Statuses: []booking.Status{booking.StatusConfirmed}})
	if err != nil {
		return nil, fmt.Errorf("load confirmed bookings: %w", err)
	}
	// rows accepted from this batch are indexed under their negated row number
	working := booking.NewIntervalSetFrom(confirmed, 0)

	now := r.now()
	accepted := make([]booking.Booking, 0, len(rows))
	for i, row := range rows {
		n := i + 1
		b, err := row.toBooking()
		if err == nil && b.Status == booking.StatusConfirmed {
			if ids := working.Conflicts(b.Interval); len(ids) > 0 {
				err = &booking.ConflictError{Stay: b.Interval, With: storedIDs(ids)}
			}
		}
		if err != nil {
			rowErr := &RowError{Row: row.number(i), Err: err}
			if mode == ModeStrict {
				metrics.AddImportRows(string(mode), "aborted", len(rows))
				log.Warn().Err(rowErr).Msg("strict import aborted")
				return nil, rowErr
			}
			res.Errors = append(res.Errors, rowErr.Error())
			res.Skipped++
			continue
		}

		if b.Status == booking.StatusConfirmed {
			working.Add(-int64(n), b.Interval)
			b.DecidedAt = &now
		}
		accepted = append(accepted, b)
	}

	if len(accepted) > 0 {
		if err := r.store.InsertBookings(ctx, accepted, r.chunkSize); err != nil {
			return nil, fmt.Errorf("insert imported bookings: %w", err)
		}
	}
	res.Imported = len(accepted)

	metrics.AddImportRows(string(mode), "imported", res.Imported)
	metrics.AddImportRows(string(mode), "skipped", res.Skipped)
	log.Info().Int("imported", res.Imported).Int("skipped", res.Skipped).Msg("bookings imported")

	if r.events != nil {
		if err := r.events.PublishJSON(events.BookingsImported, res); err != nil {
			log.Warn().Err(err).Msg("publish failed")
		}
	}
	return res, nil
}

func storedIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id > 0 {
			out = append(out, id)
		}
	}
	return out
}
