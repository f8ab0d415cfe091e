package booking

import (
	"context"
	"slices"
	"sync"
	"time"

	"holidaylet/internal/apperr"
	"holidaylet/internal/dates"
)

// memStore is an in-memory Store for lifecycle tests.
type memStore struct {
	mu     sync.Mutex
	rows   map[int64]Booking
	nextID int64
}

func newMemStore(seed ...Booking) *memStore {
	m := &memStore{rows: make(map[int64]Booking)}
	for _, b := range seed {
		b := b
		_ = m.InsertBooking(context.Background(), &b)
	}
	return m
}

func (m *memStore) GetBooking(_ context.Context, id int64) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("booking", id)
	}
	return &b, nil
}

func (m *memStore) ListBookings(_ context.Context, f Filter) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Booking
	for _, b := range m.rows {
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, b.Status) {
			continue
		}
		if f.Overlapping != nil && !dates.Overlaps(b.Interval, *f.Overlapping) {
			continue
		}
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b Booking) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
	return out, nil
}

func (m *memStore) InsertBooking(_ context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(b)
	return nil
}

func (m *memStore) insertLocked(b *Booking) {
	m.nextID++
	b.ID = m.nextID
	b.Version = 1
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	m.rows[b.ID] = *b
}

func (m *memStore) InsertBookings(_ context.Context, bs []Booking, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range bs {
		m.insertLocked(&bs[i])
	}
	return nil
}

func (m *memStore) UpdateBooking(_ context.Context, b *Booking, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[b.ID]
	if !ok {
		return apperr.NotFound("booking", b.ID)
	}
	if cur.Version != expected {
		return ErrConcurrentModification
	}
	b.Version = expected + 1
	b.UpdatedAt = time.Now()
	m.rows[b.ID] = *b
	return nil
}

func (m *memStore) DeleteBooking(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return apperr.NotFound("booking", id)
	}
	delete(m.rows, id)
	return nil
}

func (m *memStore) confirmed() []Booking {
	out, _ := m.ListBookings(context.Background(), Filter{Statuses: []Status{StatusConfirmed}})
	return out
}
