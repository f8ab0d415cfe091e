package database

import (
	"context"
	"fmt"

	"holidaylet/internal/config"
)

// SyncRatesFromConfig applies rates.yaml to the rates table. Seeded rules are
// upserted by key and seeded rules whose key disappeared are removed. Rules
// the owner created through the API carry no key and are left alone.
func (db *DB) SyncRatesFromConfig(ctx context.Context, cfg *config.RatesConfig) error {
	if cfg == nil {
		return fmt.Errorf("rates config is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rates sync: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := db.now()
	seen := make(map[string]struct{}, len(cfg.Rates))
	for _, seed := range cfg.Rates {
		r, err := seed.Rule()
		if err != nil {
			return fmt.Errorf("sync rate %s: %w", seed.Key, err)
		}

		// Preserve created_at if the rule already exists.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rates (seed_key, start_date, end_date, price, rate_type, note, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(seed_key) DO UPDATE SET
				start_date = excluded.start_date,
				end_date = excluded.end_date,
				price = excluded.price,
				rate_type = excluded.rate_type,
				note = excluded.note,
				updated_at = excluded.updated_at`,
			seed.Key, r.Start, r.End, r.Price, string(r.Kind), r.Note, now, now,
		)
		if err != nil {
			return fmt.Errorf("sync rate %s: %w", seed.Key, err)
		}
		seen[seed.Key] = struct{}{}
	}

	rows, err := tx.QueryContext(ctx, `SELECT seed_key FROM rates WHERE seed_key IS NOT NULL`)
	if err != nil {
		return err
	}
	var stale []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return err
		}
		if _, ok := seen[key]; !ok {
			stale = append(stale, key)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, key := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM rates WHERE seed_key = ?`, key); err != nil {
			return fmt.Errorf("remove rate %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rates sync: %w", err)
	}

	db.logger.Info().Int("rates", len(cfg.Rates)).Int("removed", len(stale)).Msg("Rates synced from config")
	return nil
}
