// Package database is the SQLite record store for bookings and rate rules.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps sql.DB with the holidaylet schema.
type DB struct {
	*sql.DB
	path   string
	now    func() time.Time
	logger *zerolog.Logger
}

// NewDB opens the database at path, creating the file and its directory if
// needed, and runs migrations.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	instance := &DB{
		DB:     db,
		path:   path,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}

	if err := instance.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'provisional',
			guest_name TEXT NOT NULL DEFAULT '',
			guest_email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			contact TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			guests_count INTEGER,
			children_count INTEGER,
			dogs_count INTEGER,
			vehicle_reg TEXT NOT NULL DEFAULT '',
			special_requests TEXT NOT NULL DEFAULT '',
			price REAL,
			decided_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			version INTEGER NOT NULL DEFAULT 1,
			CHECK (end_date > start_date)
		)`,

		`CREATE TABLE IF NOT EXISTS rates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			price REAL NOT NULL,
			rate_type TEXT NOT NULL DEFAULT 'total',
			note TEXT NOT NULL DEFAULT '',
			seed_key TEXT UNIQUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CHECK (end_date > start_date)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_status_dates ON bookings(status, start_date, end_date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_start ON bookings(start_date, id)`,
		`CREATE INDEX IF NOT EXISTS idx_rates_dates ON rates(start_date, end_date)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return db.ensureNewColumns()
}

// ensureNewColumns upgrades databases created before these columns existed.
func (db *DB) ensureNewColumns() error {
	migrations := []string{
		`ALTER TABLE bookings ADD COLUMN version INTEGER NOT NULL DEFAULT 1`,
		`ALTER TABLE bookings ADD COLUMN decided_at DATETIME`,
		`ALTER TABLE bookings ADD COLUMN special_requests TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE rates ADD COLUMN seed_key TEXT`,
	}

	for _, m := range migrations {
		_, err := db.Exec(m)
		if err == nil {
			continue
		}
		if !strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
			return fmt.Errorf("exec migration %s: %w", trimSQL(m), err)
		}
	}
	_, err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_rates_seed_key ON rates(seed_key)`)
	return err
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// Path is the database file location.
func (db *DB) Path() string {
	return db.path
}

// Ping checks the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.DB.Close()
}
