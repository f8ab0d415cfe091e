package booking

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"holidaylet/internal/apperr"
	"holidaylet/internal/dates"
	"holidaylet/internal/events"
	"holidaylet/internal/stay"
	"holidaylet/shared/access"
)

func span(start, end string) dates.Interval {
	return dates.NewInterval(dates.MustParse(start), dates.MustParse(end))
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) PublishJSON(eventType string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, eventType)
	return nil
}

func newTestService(t *testing.T, store Store) (*Service, *recordingPublisher) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	pub := &recordingPublisher{}
	return NewService(store, NewMutexLocker(), stay.DefaultPolicy(), pub, &logger), pub
}

func confirmedBooking(start, end string) Booking {
	return Booking{Interval: span(start, end), Status: StatusConfirmed}
}

func provisionalBooking(start, end string) Booking {
	return Booking{Interval: span(start, end), Status: StatusProvisional}
}

func TestService_GuestCreate(t *testing.T) {
	ctx := context.Background()
	svc, pub := newTestService(t, newMemStore())
	price := 999.0

	b, err := svc.Create(ctx, access.Guest, Draft{
		Stay:  span("2026-01-02", "2026-01-05"),
		Guest: Guest{GuestName: "  Ann Example "},
		Price: &price,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusProvisional, b.Status)
	assert.Equal(t, "Ann Example", b.GuestName)
	assert.Nil(t, b.Price, "guests cannot set a price")
	assert.Nil(t, b.DecidedAt)
	assert.Equal(t, []string{events.BookingRequested}, pub.types)

	tests := []struct {
		name  string
		draft Draft
		check func(error) bool
	}{
		{"too short", Draft{Stay: span("2026-01-02", "2026-01-04")}, apperr.IsValidation},
		{"wrong pattern", Draft{Stay: span("2026-01-05", "2026-01-08")}, apperr.IsValidation},
		{"empty interval", Draft{Stay: span("2026-01-05", "2026-01-05")}, apperr.IsValidation},
		{"missing dates", Draft{}, apperr.IsValidation},
		{"declined status", Draft{Stay: span("2026-01-02", "2026-01-05"), Status: StatusDeclined}, apperr.IsValidation},
		{"confirmed status", Draft{Stay: span("2026-01-02", "2026-01-05"), Status: StatusConfirmed}, access.IsAccessDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, access.Guest, tt.draft)
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}
}

func TestService_GuestRequestsMayOverlap(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(confirmedBooking("2026-01-02", "2026-01-05"))
	svc, _ := newTestService(t, store)

	_, err := svc.Create(ctx, access.Guest, Draft{Stay: span("2026-01-02", "2026-01-05")})
	require.NoError(t, err)
	_, err = svc.Create(ctx, access.Guest, Draft{Stay: span("2026-01-02", "2026-01-05")})
	require.NoError(t, err)
}

func TestService_OwnerCreateConfirmed(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc, _ := newTestService(t, store)
	price := 450.0

	first, err := svc.Create(ctx, access.Owner, Draft{
		Stay:   span("2024-01-01", "2024-01-05"),
		Status: StatusConfirmed,
		Price:  &price,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, first.Status)
	require.NotNil(t, first.DecidedAt)
	assert.Equal(t, 450.0, *first.Price)

	// touching is allowed
	_, err = svc.Create(ctx, access.Owner, Draft{Stay: span("2024-01-05", "2024-01-10"), Status: StatusConfirmed})
	require.NoError(t, err)

	// genuine overlap is not
	_, err = svc.Create(ctx, access.Owner, Draft{Stay: span("2024-01-03", "2024-01-08"), Status: StatusConfirmed})
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Len(t, ce.With, 2)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.False(t, apperr.IsValidation(err))
	assert.Len(t, store.confirmed(), 2)

	// owner bypasses the stay policy: one night, Tuesday to Wednesday
	_, err = svc.Create(ctx, access.Owner, Draft{Stay: span("2024-01-16", "2024-01-17"), Status: StatusConfirmed})
	require.NoError(t, err)
}

func TestService_Approve(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(
		confirmedBooking("2026-01-02", "2026-01-05"),   // 1
		provisionalBooking("2026-01-03", "2026-01-10"), // 2 overlaps 1
		provisionalBooking("2026-01-05", "2026-01-09"), // 3 touches 1
	)
	svc, pub := newTestService(t, store)

	_, err := svc.Approve(ctx, access.Owner, 2)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []int64{1}, ce.With)
	still, _ := store.GetBooking(ctx, 2)
	assert.Equal(t, StatusProvisional, still.Status)

	b, err := svc.Approve(ctx, access.Owner, 3)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, b.Status)
	assert.NotNil(t, b.DecidedAt)
	assert.Equal(t, int64(2), b.Version)
	assert.Contains(t, pub.types, events.BookingApproved)

	again, err := svc.Approve(ctx, access.Owner, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Version, "approving a confirmed booking is a no-op")

	_, err = svc.Approve(ctx, access.Guest, 2)
	assert.True(t, access.IsAccessDenied(err))

	_, err = svc.Approve(ctx, access.Owner, 404)
	assert.True(t, apperr.IsNotFound(err))
}

func TestService_ApproveDeclinedIsRejected(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(provisionalBooking("2026-01-02", "2026-01-05"))
	svc, _ := newTestService(t, store)

	_, err := svc.Decline(ctx, access.Owner, 1)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, access.Owner, 1)
	assert.True(t, IsTransitionError(err))
}

func TestService_DeclineIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(provisionalBooking("2026-01-02", "2026-01-05"))
	svc, pub := newTestService(t, store)

	first, err := svc.Decline(ctx, access.Owner, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusDeclined, first.Status)

	second, err := svc.Decline(ctx, access.Owner, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusDeclined, second.Status)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, []string{events.BookingDeclined}, pub.types)
}

func TestService_DeclineConfirmedFreesSlot(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(
		confirmedBooking("2026-01-02", "2026-01-05"),
		provisionalBooking("2026-01-02", "2026-01-05"),
	)
	svc, _ := newTestService(t, store)

	_, err := svc.Approve(ctx, access.Owner, 2)
	require.True(t, IsConflict(err))

	_, err = svc.Decline(ctx, access.Owner, 1)
	require.NoError(t, err)

	b, err := svc.Approve(ctx, access.Owner, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, b.Status)
}

func TestService_Edit(t *testing.T) {
	ctx := context.Background()

	t.Run("conflicting move rejects whole edit", func(t *testing.T) {
		store := newMemStore(
			confirmedBooking("2026-01-02", "2026-01-05"),
			Booking{Interval: span("2026-01-10", "2026-01-12"), Status: StatusConfirmed, Guest: Guest{GuestName: "Bo"}},
		)
		svc, _ := newTestService(t, store)
		start, end := dates.MustParse("2026-01-04"), dates.MustParse("2026-01-06")
		changed := "Changed"

		_, err := svc.Edit(ctx, access.Owner, 2, Patch{Start: &start, End: &end, Guest: &GuestPatch{GuestName: &changed}})
		require.True(t, IsConflict(err))

		b, _ := store.GetBooking(ctx, 2)
		assert.Equal(t, span("2026-01-10", "2026-01-12"), b.Interval)
		assert.Equal(t, "Bo", b.GuestName)
	})

	t.Run("guest edits merge field by field", func(t *testing.T) {
		guests := 2
		store := newMemStore(Booking{
			Interval: span("2026-01-10", "2026-01-12"),
			Status:   StatusProvisional,
			Guest:    Guest{GuestName: "Bo", GuestsCount: &guests},
		})
		svc, _ := newTestService(t, store)
		phone, notes := " 07700 900123 ", "cot needed"

		_, err := svc.Edit(ctx, access.Owner, 1, Patch{Guest: &GuestPatch{Phone: &phone}})
		require.NoError(t, err)
		b, err := svc.Edit(ctx, access.Owner, 1, Patch{Guest: &GuestPatch{Notes: &notes}})
		require.NoError(t, err)

		assert.Equal(t, "Bo", b.GuestName)
		assert.Equal(t, "07700 900123", b.Phone)
		assert.Equal(t, "cot needed", b.Notes)
		require.NotNil(t, b.GuestsCount)
		assert.Equal(t, 2, *b.GuestsCount)

		_, err = svc.Edit(ctx, access.Owner, 1, Patch{Guest: &GuestPatch{}})
		assert.True(t, apperr.IsValidation(err), "an empty guest patch changes nothing")
	})

	t.Run("confirmed booking may be moved within its own nights", func(t *testing.T) {
		store := newMemStore(confirmedBooking("2026-01-02", "2026-01-09"))
		svc, _ := newTestService(t, store)
		end := dates.MustParse("2026-01-06")

		b, err := svc.Edit(ctx, access.Owner, 1, Patch{End: &end})
		require.NoError(t, err)
		assert.Equal(t, span("2026-01-02", "2026-01-06"), b.Interval)
	})

	t.Run("provisional to confirmed runs the gate", func(t *testing.T) {
		store := newMemStore(
			confirmedBooking("2026-01-02", "2026-01-05"),
			provisionalBooking("2026-01-04", "2026-01-08"),
		)
		svc, _ := newTestService(t, store)
		confirmed := StatusConfirmed

		_, err := svc.Edit(ctx, access.Owner, 2, Patch{Status: &confirmed})
		require.True(t, IsConflict(err))

		start := dates.MustParse("2026-01-05")
		b, err := svc.Edit(ctx, access.Owner, 2, Patch{Start: &start, Status: &confirmed})
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, b.Status)
		assert.NotNil(t, b.DecidedAt)
	})

	t.Run("provisional edits skip the gate", func(t *testing.T) {
		store := newMemStore(
			confirmedBooking("2026-01-02", "2026-01-05"),
			provisionalBooking("2026-01-10", "2026-01-12"),
		)
		svc, _ := newTestService(t, store)
		start := dates.MustParse("2026-01-03")

		b, err := svc.Edit(ctx, access.Owner, 2, Patch{Start: &start})
		require.NoError(t, err)
		assert.Equal(t, StatusProvisional, b.Status)
	})

	t.Run("invalid patches", func(t *testing.T) {
		store := newMemStore(confirmedBooking("2026-01-02", "2026-01-05"))
		svc, _ := newTestService(t, store)
		end := dates.MustParse("2026-01-02")
		provisional := StatusProvisional
		bogus := Status("maybe")

		_, err := svc.Edit(ctx, access.Owner, 1, Patch{End: &end})
		assert.True(t, apperr.IsValidation(err))

		_, err = svc.Edit(ctx, access.Owner, 1, Patch{})
		assert.True(t, apperr.IsValidation(err))

		_, err = svc.Edit(ctx, access.Owner, 1, Patch{Status: &bogus})
		assert.True(t, apperr.IsValidation(err))

		_, err = svc.Edit(ctx, access.Owner, 1, Patch{Status: &provisional})
		assert.True(t, IsTransitionError(err))

		_, err = svc.Edit(ctx, access.Guest, 1, Patch{End: &end})
		assert.True(t, access.IsAccessDenied(err))
	})
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(confirmedBooking("2026-01-02", "2026-01-05"))
	svc, _ := newTestService(t, store)

	assert.True(t, access.IsAccessDenied(svc.Delete(ctx, access.Guest, 1)))
	require.NoError(t, svc.Delete(ctx, access.Owner, 1))
	assert.True(t, apperr.IsNotFound(svc.Delete(ctx, access.Owner, 1)))

	_, err := svc.Create(ctx, access.Owner, Draft{Stay: span("2026-01-02", "2026-01-05"), Status: StatusConfirmed})
	assert.NoError(t, err)
}

func TestService_ConfirmedExclusionUnderRandomOperations(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc, _ := newTestService(t, store)
	rng := rand.New(rand.NewSource(42))
	base := dates.MustParse("2026-01-01")

	randomStay := func() dates.Interval {
		start := base.AddDays(rng.Intn(60))
		return dates.NewInterval(start, start.AddDays(1+rng.Intn(6)))
	}

	for i := 0; i < 400; i++ {
		switch rng.Intn(4) {
		case 0:
			_, _ = svc.Create(ctx, access.Owner, Draft{Stay: randomStay(), Status: StatusConfirmed})
		case 1:
			_, _ = svc.Create(ctx, access.Owner, Draft{Stay: randomStay()})
		case 2:
			_, _ = svc.Approve(ctx, access.Owner, int64(1+rng.Intn(i+1)))
		case 3:
			iv := randomStay()
			_, _ = svc.Edit(ctx, access.Owner, int64(1+rng.Intn(i+1)), Patch{Start: &iv.Start, End: &iv.End})
		}
	}

	confirmed := store.confirmed()
	require.NotEmpty(t, confirmed)
	for i := range confirmed {
		for j := i + 1; j < len(confirmed); j++ {
			assert.False(t, confirmed[i].Overlaps(confirmed[j].Interval),
				"bookings %d and %d overlap", confirmed[i].ID, confirmed[j].ID)
		}
	}
}

func TestService_ConcurrentApprovalsConfirmOnlyOne(t *testing.T) {
	ctx := context.Background()
	var seed []Booking
	for i := 0; i < 8; i++ {
		seed = append(seed, provisionalBooking("2026-01-02", "2026-01-05"))
	}
	store := newMemStore(seed...)
	svc, _ := newTestService(t, store)

	var wg sync.WaitGroup
	var mu sync.Mutex
	approved := 0
	for id := int64(1); id <= 8; id++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := svc.Approve(ctx, access.Owner, id); err == nil {
				mu.Lock()
				approved++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, approved)
	assert.Len(t, store.confirmed(), 1)
}

func TestService_Occupancy(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(
		confirmedBooking("2026-01-02", "2026-01-05"),
		provisionalBooking("2026-01-04", "2026-01-07"),
		Booking{Interval: span("2026-01-07", "2026-01-09"), Status: StatusDeclined},
	)
	svc, _ := newTestService(t, store)

	occ, err := svc.Occupancy(ctx, span("2026-01-03", "2026-01-10"))
	require.NoError(t, err)
	assert.Equal(t, []dates.Date{dates.MustParse("2026-01-03"), dates.MustParse("2026-01-04")}, occ.Confirmed)
	assert.Equal(t, []dates.Date{dates.MustParse("2026-01-05"), dates.MustParse("2026-01-06")}, occ.Provisional)

	_, err = svc.Occupancy(ctx, span("2026-01-03", "2026-01-03"))
	assert.True(t, apperr.IsValidation(err))
	_, err = svc.Occupancy(ctx, span("2026-01-01", "2030-01-01"))
	assert.True(t, apperr.IsValidation(err))
}

type mockStore struct {
	mock.Mock
	Store
}

func (m *mockStore) GetBooking(ctx context.Context, id int64) (*Booking, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*Booking)
	return b, args.Error(1)
}

func (m *mockStore) ListBookings(ctx context.Context, f Filter) ([]Booking, error) {
	args := m.Called(ctx, f)
	bs, _ := args.Get(0).([]Booking)
	return bs, args.Error(1)
}

func (m *mockStore) UpdateBooking(ctx context.Context, b *Booking, expected int64) error {
	return m.Called(ctx, b, expected).Error(0)
}

func TestService_StoreErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.New("disk I/O error")

	t.Run("gate read failure", func(t *testing.T) {
		store := new(mockStore)
		b := provisionalBooking("2026-01-02", "2026-01-05")
		b.ID, b.Version = 5, 1
		store.On("GetBooking", mock.Anything, int64(5)).Return(&b, nil)
		store.On("ListBookings", mock.Anything, mock.Anything).Return(nil, storeErr)

		svc, _ := newTestService(t, store)
		_, err := svc.Approve(ctx, access.Owner, 5)
		assert.ErrorIs(t, err, storeErr)
		assert.False(t, IsConflict(err))
		store.AssertNotCalled(t, "UpdateBooking", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("lost update", func(t *testing.T) {
		store := new(mockStore)
		b := provisionalBooking("2026-01-02", "2026-01-05")
		b.ID, b.Version = 5, 3
		store.On("GetBooking", mock.Anything, int64(5)).Return(&b, nil)
		store.On("ListBookings", mock.Anything, mock.Anything).Return([]Booking{}, nil)
		store.On("UpdateBooking", mock.Anything, mock.Anything, int64(3)).Return(ErrConcurrentModification)

		svc, _ := newTestService(t, store)
		_, err := svc.Approve(ctx, access.Owner, 5)
		assert.ErrorIs(t, err, ErrConcurrentModification)
		store.AssertExpectations(t)
	})
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusProvisional, StatusConfirmed))
	assert.True(t, CanTransition(StatusProvisional, StatusDeclined))
	assert.True(t, CanTransition(StatusConfirmed, StatusDeclined))
	assert.False(t, CanTransition(StatusConfirmed, StatusProvisional))
	assert.False(t, CanTransition(StatusDeclined, StatusConfirmed))
	assert.False(t, CanTransition(StatusDeclined, StatusProvisional))

	st, err := ParseStatus(" Confirmed ")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, st)
	_, err = ParseStatus("pending")
	assert.Error(t, err)
}
