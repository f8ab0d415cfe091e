package database

import (
	"context"
	"fmt"

	"holidaylet/internal/apperr"
	"holidaylet/internal/pricing"
)

var _ pricing.RuleSource = (*DB)(nil)

// ListRates returns every rate rule ordered by start date, then ID.
func (db *DB) ListRates(ctx context.Context) ([]pricing.Rule, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, start_date, end_date, price, rate_type, note, created_at
		FROM rates ORDER BY start_date, id`)
	if err != nil {
		return nil, fmt.Errorf("list rates: %w", err)
	}
	defer rows.Close()

	out := make([]pricing.Rule, 0)
	for rows.Next() {
		var r pricing.Rule
		if err := rows.Scan(&r.ID, &r.Start, &r.End, &r.Price, &r.Kind, &r.Note, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rate: %w", err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateRate stores a rule entered by the owner. Callers validate it first.
func (db *DB) CreateRate(ctx context.Context, r *pricing.Rule) error {
	now := db.now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO rates (start_date, end_date, price, rate_type, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Start, r.End, r.Price, string(r.Kind), r.Note, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert rate: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert rate: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	return nil
}

func (db *DB) DeleteRate(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM rates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rate %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("rate", id)
	}
	return nil
}
