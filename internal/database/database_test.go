package database

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holidaylet/internal/apperr"
	"holidaylet/internal/booking"
	"holidaylet/internal/config"
	"holidaylet/internal/dates"
	"holidaylet/internal/pricing"
	"holidaylet/internal/stay"
	"holidaylet/shared/access"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func span(start, end string) dates.Interval {
	return dates.NewInterval(dates.MustParse(start), dates.MustParse(end))
}

func TestNewDB_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "holidaylet.db")
	logger := zerolog.New(io.Discard)

	db, err := NewDB(path, &logger)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewDB(path, &logger)
	require.NoError(t, err, "migrations are idempotent")
	require.NoError(t, db.Ping(context.Background()))
	require.NoError(t, db.Close())
}

func TestBookings_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	guests, price := 4, 525.5
	decided := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	b := &booking.Booking{
		Interval:  span("2026-04-03", "2026-04-06"),
		Status:    booking.StatusConfirmed,
		Guest:     booking.Guest{GuestName: "Ann", GuestEmail: "ann@example.com", GuestsCount: &guests, VehicleReg: "AB12 CDE"},
		Price:     &price,
		DecidedAt: &decided,
	}
	require.NoError(t, db.InsertBooking(ctx, b))
	assert.NotZero(t, b.ID)
	assert.Equal(t, int64(1), b.Version)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Interval, got.Interval)
	assert.Equal(t, booking.StatusConfirmed, got.Status)
	assert.Equal(t, "Ann", got.GuestName)
	require.NotNil(t, got.GuestsCount)
	assert.Equal(t, 4, *got.GuestsCount)
	assert.Nil(t, got.DogsCount)
	require.NotNil(t, got.Price)
	assert.Equal(t, 525.5, *got.Price)
	require.NotNil(t, got.DecidedAt)
	assert.True(t, decided.Equal(*got.DecidedAt))
	assert.False(t, got.CreatedAt.IsZero())

	_, err = db.GetBooking(ctx, 999)
	assert.True(t, apperr.IsNotFound(err))
}

func TestBookings_ListFilters(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	insert := func(start, end string, st booking.Status) int64 {
		b := &booking.Booking{Interval: span(start, end), Status: st}
		require.NoError(t, db.InsertBooking(ctx, b))
		return b.ID
	}
	late := insert("2026-05-10", "2026-05-13", booking.StatusConfirmed)
	early := insert("2026-05-01", "2026-05-04", booking.StatusProvisional)
	declined := insert("2026-05-04", "2026-05-08", booking.StatusDeclined)
	touching := insert("2026-05-13", "2026-05-15", booking.StatusConfirmed)

	all, err := db.ListBookings(ctx, booking.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []int64{early, declined, late, touching}, ids(all), "ordered by start date")

	active, err := db.ListBookings(ctx, booking.Filter{Statuses: []booking.Status{booking.StatusProvisional, booking.StatusConfirmed}})
	require.NoError(t, err)
	assert.Equal(t, []int64{early, late, touching}, ids(active))

	window := span("2026-05-03", "2026-05-13")
	overlapping, err := db.ListBookings(ctx, booking.Filter{Overlapping: &window})
	require.NoError(t, err)
	assert.Equal(t, []int64{early, declined, late}, ids(overlapping), "half-open: the stay starting on 05-13 does not overlap")

	confirmed, err := db.ListBookings(ctx, booking.Filter{
		Statuses:    []booking.Status{booking.StatusConfirmed},
		Overlapping: &window,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{late}, ids(confirmed))
}

func ids(bs []booking.Booking) []int64 {
	out := make([]int64, len(bs))
	for i, b := range bs {
		out[i] = b.ID
	}
	return out
}

func TestBookings_UpdateCompareAndWrite(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	b := &booking.Booking{Interval: span("2026-06-01", "2026-06-05"), Status: booking.StatusProvisional}
	require.NoError(t, db.InsertBooking(ctx, b))

	stale := *b
	b.Status = booking.StatusConfirmed
	require.NoError(t, db.UpdateBooking(ctx, b, 1))
	assert.Equal(t, int64(2), b.Version)

	stale.Status = booking.StatusDeclined
	err := db.UpdateBooking(ctx, &stale, 1)
	assert.ErrorIs(t, err, booking.ErrConcurrentModification)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, got.Status)
	assert.Equal(t, int64(2), got.Version)

	missing := booking.Booking{ID: 404, Interval: span("2026-06-01", "2026-06-05"), Status: booking.StatusDeclined}
	assert.True(t, apperr.IsNotFound(db.UpdateBooking(ctx, &missing, 1)))
}

func TestBookings_Delete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	b := &booking.Booking{Interval: span("2026-06-01", "2026-06-05"), Status: booking.StatusProvisional}
	require.NoError(t, db.InsertBooking(ctx, b))
	require.NoError(t, db.DeleteBooking(ctx, b.ID))
	assert.True(t, apperr.IsNotFound(db.DeleteBooking(ctx, b.ID)))
}

func TestBookings_InsertBookingsChunked(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	batch := make([]booking.Booking, 0, 7)
	start := dates.MustParse("2026-01-01")
	for i := range 7 {
		s := start.AddDays(i * 7)
		batch = append(batch, booking.Booking{Interval: dates.NewInterval(s, s.AddDays(3)), Status: booking.StatusConfirmed})
	}
	require.NoError(t, db.InsertBookings(ctx, batch, 3))

	all, err := db.ListBookings(ctx, booking.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 7)
	assert.Equal(t, int64(1), all[0].Version)
}

func TestBookings_InsertBookingsIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	batch := []booking.Booking{
		{Interval: span("2026-01-01", "2026-01-04"), Status: booking.StatusConfirmed},
		{Interval: span("2026-01-10", "2026-01-14"), Status: booking.StatusConfirmed},
		// violates the end > start check in the second chunk
		{Interval: span("2026-02-10", "2026-02-10"), Status: booking.StatusConfirmed},
	}
	require.Error(t, db.InsertBookings(ctx, batch, 2))

	all, err := db.ListBookings(ctx, booking.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRates_CRUD(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	r := &pricing.Rule{Interval: span("2026-07-01", "2026-09-01"), Price: 120, Kind: pricing.KindNightly, Note: "summer"}
	require.NoError(t, db.CreateRate(ctx, r))
	assert.NotZero(t, r.ID)

	rules, err := db.ListRates(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, pricing.KindNightly, rules[0].Kind)
	assert.Equal(t, r.Interval, rules[0].Interval)

	require.NoError(t, db.DeleteRate(ctx, r.ID))
	assert.True(t, apperr.IsNotFound(db.DeleteRate(ctx, r.ID)))
}

func TestSyncRatesFromConfig(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	manual := &pricing.Rule{Interval: span("2026-02-01", "2026-02-05"), Price: 400, Kind: pricing.KindTotal}
	require.NoError(t, db.CreateRate(ctx, manual))

	cfg := &config.RatesConfig{Rates: []config.RateSeed{
		{Key: "summer", StartDate: "2026-07-01", EndDate: "2026-09-01", Price: 120, RateType: "nightly"},
		{Key: "xmas", StartDate: "2026-12-19", EndDate: "2026-12-26", Price: 900},
	}}
	require.NoError(t, db.SyncRatesFromConfig(ctx, cfg))

	rules, err := db.ListRates(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 3)

	cfg.Rates = []config.RateSeed{
		{Key: "summer", StartDate: "2026-07-01", EndDate: "2026-09-01", Price: 135, RateType: "nightly"},
	}
	require.NoError(t, db.SyncRatesFromConfig(ctx, cfg))

	rules, err = db.ListRates(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2, "removed seed is deleted, manual rule kept")
	assert.Equal(t, manual.ID, rules[0].ID)
	assert.Equal(t, 135.0, rules[1].Price)

	assert.Error(t, db.SyncRatesFromConfig(ctx, nil))
}

func TestResolverOverStore(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	logger := zerolog.New(io.Discard)

	require.NoError(t, db.CreateRate(ctx, &pricing.Rule{Interval: span("2026-03-01", "2026-04-01"), Price: 90, Kind: pricing.KindNightly}))
	require.NoError(t, db.CreateRate(ctx, &pricing.Rule{Interval: span("2026-03-06", "2026-03-13"), Price: 700, Kind: pricing.KindTotal}))

	q, err := pricing.NewResolver(db, &logger).Quote(ctx, span("2026-03-06", "2026-03-13"))
	require.NoError(t, err)
	assert.True(t, q.OK)
	assert.Equal(t, 700.0, q.Total)
}

func TestGetTableData(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.InsertBooking(ctx, &booking.Booking{Interval: span("2026-04-03", "2026-04-06"), Status: booking.StatusProvisional, Guest: booking.Guest{GuestName: "Bo"}}))

	names, err := db.GetTableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bookings", "rates"}, names)

	rows, cols, err := db.GetTableData(ctx, "bookings")
	require.NoError(t, err)
	assert.Contains(t, cols, "start_date")
	assert.Contains(t, cols, "version")
	require.Len(t, rows, 1)
	assert.Equal(t, "2026-04-03", rows[0]["start_date"])
	assert.Equal(t, "Bo", rows[0]["guest_name"])

	_, _, err = db.GetTableData(ctx, "sqlite_master")
	assert.Error(t, err)
}

func TestBackupService(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.InsertBooking(ctx, &booking.Booking{Interval: span("2026-04-03", "2026-04-06"), Status: booking.StatusConfirmed}))

	dir := filepath.Join(t.TempDir(), "backups")
	logger := zerolog.New(io.Discard)
	svc := NewBackupService(db, BackupConfig{Enabled: true, Dir: dir, Retention: time.Hour}, &logger)

	path, err := svc.PerformBackup(ctx)
	require.NoError(t, err)

	snapshot, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer snapshot.Close()
	got, err := snapshot.ListBookings(ctx, booking.Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	old := filepath.Join(dir, backupPrefix+"old.db")
	require.NoError(t, os.WriteFile(old, nil, 0o644))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	keep := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(keep, nil, 0o644))
	require.NoError(t, os.Chtimes(keep, past, past))

	svc.CleanupOldBackups()
	assert.NoFileExists(t, old)
	assert.FileExists(t, keep)
	assert.FileExists(t, path)
}

// The SQLite store keeps confirmed stays disjoint when many owners approve
// overlapping requests at once.
func TestServiceOverStore_ConcurrentApprovals(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	logger := zerolog.New(io.Discard)
	svc := booking.NewService(db, nil, stay.DefaultPolicy(), nil, &logger)

	var created []int64
	for i := range 6 {
		s := dates.MustParse("2026-08-01").AddDays(i)
		b, err := svc.Create(ctx, access.Owner, booking.Draft{Stay: dates.NewInterval(s, s.AddDays(3)), Status: booking.StatusProvisional})
		require.NoError(t, err)
		created = append(created, b.ID)
	}

	var wg sync.WaitGroup
	for _, id := range created {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Approve(ctx, access.Owner, id)
		}()
	}
	wg.Wait()

	confirmed, err := db.ListBookings(ctx, booking.Filter{Statuses: []booking.Status{booking.StatusConfirmed}})
	require.NoError(t, err)
	require.NotEmpty(t, confirmed)
	for i := range confirmed {
		for j := i + 1; j < len(confirmed); j++ {
			assert.False(t, confirmed[i].Overlaps(confirmed[j].Interval),
				"%d and %d overlap", confirmed[i].ID, confirmed[j].ID)
		}
	}
}
