package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"holidaylet/internal/apperr"
	"holidaylet/internal/booking"
)

var _ booking.Store = (*DB)(nil)

const bookingColumns = `id, start_date, end_date, status, guest_name, guest_email, phone, contact, notes,
	guests_count, children_count, dogs_count, vehicle_reg, special_requests, price,
	decided_at, created_at, updated_at, version`

// insertColumns excludes id.
const insertColumns = `start_date, end_date, status, guest_name, guest_email, phone, contact, notes,
	guests_count, children_count, dogs_count, vehicle_reg, special_requests, price,
	decided_at, created_at, updated_at, version`

const insertPlaceholders = `(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(s rowScanner) (booking.Booking, error) {
	var (
		b                      booking.Booking
		guests, children, dogs sql.NullInt64
		price                  sql.NullFloat64
		decidedAt              sql.NullTime
	)
	err := s.Scan(&b.ID, &b.Start, &b.End, &b.Status, &b.GuestName, &b.GuestEmail, &b.Phone,
		&b.Contact, &b.Notes, &guests, &children, &dogs, &b.VehicleReg, &b.SpecialRequests,
		&price, &decidedAt, &b.CreatedAt, &b.UpdatedAt, &b.Version)
	if err != nil {
		return booking.Booking{}, err
	}
	b.GuestsCount = intPtr(guests)
	b.ChildrenCount = intPtr(children)
	b.DogsCount = intPtr(dogs)
	if price.Valid {
		b.Price = &price.Float64
	}
	if decidedAt.Valid {
		t := decidedAt.Time.UTC()
		b.DecidedAt = &t
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b, nil
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

// insertArgs matches insertColumns.
func insertArgs(b *booking.Booking) []any {
	var decided any
	if b.DecidedAt != nil {
		decided = b.DecidedAt.UTC()
	}
	return []any{b.Start, b.End, string(b.Status), b.GuestName, b.GuestEmail, b.Phone, b.Contact,
		b.Notes, nullInt(b.GuestsCount), nullInt(b.ChildrenCount), nullInt(b.DogsCount),
		b.VehicleReg, b.SpecialRequests, nullFloat(b.Price), decided, b.CreatedAt, b.UpdatedAt, b.Version}
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*booking.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("booking", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %d: %w", id, err)
	}
	return &b, nil
}

// ListBookings filters by status and by overlap with f.Overlapping using the
// half-open predicate, so touching stays are not returned.
func (db *DB) ListBookings(ctx context.Context, f booking.Filter) ([]booking.Booking, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if f.Overlapping != nil {
		where = append(where, "start_date < ? AND end_date > ?")
		args = append(args, f.Overlapping.End, f.Overlapping.Start)
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_date, id"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	out := make([]booking.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (db *DB) InsertBooking(ctx context.Context, b *booking.Booking) error {
	now := db.now()
	b.CreatedAt, b.UpdatedAt, b.Version = now, now, 1

	res, err := db.ExecContext(ctx,
		`INSERT INTO bookings (`+insertColumns+`) VALUES `+insertPlaceholders, insertArgs(b)...)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	b.ID = id
	return nil
}

// InsertBookings writes bs in a single transaction using multi-row inserts of
// at most chunkSize rows.
func (db *DB) InsertBookings(ctx context.Context, bs []booking.Booking, chunkSize int) error {
	if len(bs) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = len(bs)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := db.now()
	for start := 0; start < len(bs); start += chunkSize {
		chunk := bs[start:min(start+chunkSize, len(bs))]

		marks := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*18)
		for i := range chunk {
			b := &chunk[i]
			b.CreatedAt, b.UpdatedAt, b.Version = now, now, 1
			marks[i] = insertPlaceholders
			args = append(args, insertArgs(b)...)
		}

		query := `INSERT INTO bookings (` + insertColumns + `) VALUES ` + strings.Join(marks, ", ")
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert bookings %d-%d: %w", start+1, start+len(chunk), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

// UpdateBooking is a compare-and-write on the version column.
func (db *DB) UpdateBooking(ctx context.Context, b *booking.Booking, expectedVersion int64) error {
	now := db.now()
	var decided any
	if b.DecidedAt != nil {
		decided = b.DecidedAt.UTC()
	}

	res, err := db.ExecContext(ctx, `
		UPDATE bookings SET
			start_date = ?, end_date = ?, status = ?, guest_name = ?, guest_email = ?, phone = ?,
			contact = ?, notes = ?, guests_count = ?, children_count = ?, dogs_count = ?,
			vehicle_reg = ?, special_requests = ?, price = ?, decided_at = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		b.Start, b.End, string(b.Status), b.GuestName, b.GuestEmail, b.Phone,
		b.Contact, b.Notes, nullInt(b.GuestsCount), nullInt(b.ChildrenCount), nullInt(b.DogsCount),
		b.VehicleReg, b.SpecialRequests, nullFloat(b.Price), decided,
		now, b.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update booking %d: %w", b.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update booking %d: %w", b.ID, err)
	}
	if n == 0 {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, b.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("booking", b.ID)
		}
		if err != nil {
			return fmt.Errorf("update booking %d: %w", b.ID, err)
		}
		return booking.ErrConcurrentModification
	}

	b.UpdatedAt = now
	b.Version = expectedVersion + 1
	return nil
}

func (db *DB) DeleteBooking(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete booking %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("booking", id)
	}
	return nil
}
