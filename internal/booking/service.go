package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"holidaylet/internal/apperr"
	"holidaylet/internal/dates"
	"holidaylet/internal/events"
	"holidaylet/internal/metrics"
	"holidaylet/internal/stay"
	"holidaylet/shared/access"
)

// Service runs the booking lifecycle. Every write that can leave a booking
// confirmed re-reads the confirmed set under the writer lock before it is
// persisted.
type Service struct {
	store  Store
	locker Locker
	policy stay.Policy
	events Publisher
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates the lifecycle service. A nil locker selects an
// in-process MutexLocker; a nil publisher disables events.
func NewService(store Store, locker Locker, policy stay.Policy, publisher Publisher, logger *zerolog.Logger) *Service {
	if locker == nil {
		locker = NewMutexLocker()
	}
	return &Service{
		store:  store,
		locker: locker,
		policy: policy,
		events: publisher,
		now:    time.Now,
		logger: logger.With().Str("component", "booking").Logger(),
	}
}

// Policy returns the stay policy applied to guest requests.
func (s *Service) Policy() stay.Policy {
	return s.policy
}

// Create stores a new booking. Guests may only request provisional stays that
// satisfy the stay policy; the owner may create confirmed bookings over any
// valid interval. Confirmed bookings must pass the overlap gate.
func (s *Service) Create(ctx context.Context, actor access.Actor, d Draft) (*Booking, error) {
	status := d.Status
	if status == "" {
		status = StatusProvisional
	}
	switch status {
	case StatusProvisional:
	case StatusConfirmed:
		if err := access.RequireOwner(actor, "create confirmed bookings"); err != nil {
			return nil, err
		}
	default:
		return nil, apperr.Invalid("status", "new bookings must be provisional or confirmed")
	}

	if d.Stay.Start.IsZero() || d.Stay.End.IsZero() {
		return nil, apperr.InvalidMsg("start_date", dates.ErrMissingDates.Error())
	}
	if err := s.policy.Check(d.Stay, !actor.IsOwner()).Err(); err != nil {
		return nil, apperr.InvalidMsg("end_date", err.Error())
	}

	b := &Booking{
		Interval: d.Stay,
		Status:   status,
		Guest:    trimGuest(d.Guest),
	}
	if actor.IsOwner() {
		b.Price = d.Price
	}

	if status == StatusConfirmed {
		unlock, err := s.lock(ctx)
		if err != nil {
			return nil, err
		}
		defer unlock()

		if err := s.gate(ctx, b.Interval, 0, "create"); err != nil {
			return nil, err
		}
		now := s.now()
		b.DecidedAt = &now
	}

	if err := s.store.InsertBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	metrics.IncBookingCreated(string(b.Status))
	s.logger.Info().
		Int64("booking_id", b.ID).
		Str("stay", b.Interval.String()).
		Str("status", string(b.Status)).
		Str("actor", actor.String()).
		Msg("booking created")

	if b.Status == StatusProvisional {
		s.publish(events.BookingRequested, b)
	} else {
		s.publish(events.BookingCreated, b)
	}
	return b, nil
}

// Approve confirms a provisional booking if no other confirmed booking holds
// any of its nights. Approving a confirmed booking returns it unchanged.
func (s *Service) Approve(ctx context.Context, actor access.Actor, id int64) (*Booking, error) {
	if err := access.RequireOwner(actor, "approve bookings"); err != nil {
		return nil, err
	}
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if b.Status == StatusConfirmed {
		return b, nil
	}
	if !CanTransition(b.Status, StatusConfirmed) {
		return nil, transitionError(b.Status, StatusConfirmed)
	}
	if err := s.gate(ctx, b.Interval, b.ID, "approve"); err != nil {
		return nil, err
	}

	expected := b.Version
	now := s.now()
	b.Status = StatusConfirmed
	b.DecidedAt = &now
	if err := s.store.UpdateBooking(ctx, b, expected); err != nil {
		return nil, fmt.Errorf("approve booking %d: %w", id, err)
	}

	metrics.IncOwnerDecision("approve")
	s.logger.Info().Int64("booking_id", id).Str("stay", b.Interval.String()).Msg("booking approved")
	s.publish(events.BookingApproved, b)
	return b, nil
}

// Decline marks a booking declined, releasing its nights. It never fails for
// scheduling reasons and declining twice is a no-op.
func (s *Service) Decline(ctx context.Context, actor access.Actor, id int64) (*Booking, error) {
	if err := access.RequireOwner(actor, "decline bookings"); err != nil {
		return nil, err
	}
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if b.Status == StatusDeclined {
		return b, nil
	}
	if !CanTransition(b.Status, StatusDeclined) {
		return nil, transitionError(b.Status, StatusDeclined)
	}

	expected := b.Version
	now := s.now()
	b.Status = StatusDeclined
	b.DecidedAt = &now
	if err := s.store.UpdateBooking(ctx, b, expected); err != nil {
		return nil, fmt.Errorf("decline booking %d: %w", id, err)
	}

	metrics.IncOwnerDecision("decline")
	s.logger.Info().Int64("booking_id", id).Msg("booking declined")
	s.publish(events.BookingDeclined, b)
	return b, nil
}

// Edit applies an owner patch. The stay policy does not apply to owner
// edits. If the booking is confirmed after the patch, the overlap gate runs
// against every other confirmed booking and a conflict rejects the whole
// patch.
func (s *Service) Edit(ctx context.Context, actor access.Actor, id int64, p Patch) (*Booking, error) {
	if err := access.RequireOwner(actor, "edit bookings"); err != nil {
		return nil, err
	}
	if p.Empty() {
		return nil, apperr.Invalid("body", "nothing to update")
	}
	if p.Status != nil && !p.Status.Valid() {
		return nil, apperr.Invalid("status", "unknown status %q", *p.Status)
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}

	next := p.apply(*cur)
	if p.Guest != nil {
		next.Guest = trimGuest(next.Guest)
	}
	if err := next.Validate(); err != nil {
		return nil, apperr.InvalidMsg("end_date", err.Error())
	}
	if next.Status != cur.Status {
		if !CanTransition(cur.Status, next.Status) {
			return nil, transitionError(cur.Status, next.Status)
		}
		now := s.now()
		next.DecidedAt = &now
	}
	if next.Status == StatusConfirmed {
		if err := s.gate(ctx, next.Interval, cur.ID, "edit"); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateBooking(ctx, &next, cur.Version); err != nil {
		return nil, fmt.Errorf("edit booking %d: %w", id, err)
	}

	s.logger.Info().
		Int64("booking_id", id).
		Str("stay", next.Interval.String()).
		Str("status", string(next.Status)).
		Msg("booking edited")
	s.publish(events.BookingUpdated, &next)
	return &next, nil
}

// Delete removes a booking regardless of status.
func (s *Service) Delete(ctx context.Context, actor access.Actor, id int64) error {
	if err := access.RequireOwner(actor, "delete bookings"); err != nil {
		return err
	}
	if err := s.store.DeleteBooking(ctx, id); err != nil {
		return fmt.Errorf("delete booking %d: %w", id, err)
	}

	s.logger.Info().Int64("booking_id", id).Msg("booking deleted")
	s.publish(events.BookingDeleted, map[string]int64{"id": id})
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func (s *Service) List(ctx context.Context, filter Filter) ([]Booking, error) {
	bookings, err := s.store.ListBookings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// MaxOccupancyWindow bounds Occupancy queries.
const MaxOccupancyWindow = 732

// Occupancy returns the confirmed and provisional day sets inside window.
func (s *Service) Occupancy(ctx context.Context, window dates.Interval) (*Occupancy, error) {
	if err := window.Validate(); err != nil {
		return nil, apperr.InvalidMsg("to", err.Error())
	}
	if window.Nights() > MaxOccupancyWindow {
		return nil, apperr.Invalid("to", "window must not exceed %d days", MaxOccupancyWindow)
	}
	bookings, err := s.store.ListBookings(ctx, Filter{
		Statuses:    []Status{StatusProvisional, StatusConfirmed},
		Overlapping: &window,
	})
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	occ := DaySets(bookings, window)
	return &occ, nil
}

// gate rejects iv if it overlaps a confirmed booking other than excludeID.
// The store narrows candidates with the overlap predicate; the interval set
// settles the exact answer.
func (s *Service) gate(ctx context.Context, iv dates.Interval, excludeID int64, op string) error {
	candidates, err := s.store.ListBookings(ctx, Filter{
		Statuses:    []Status{StatusConfirmed},
		Overlapping: &iv,
	})
	if err != nil {
		return fmt.Errorf("load confirmed bookings: %w", err)
	}
	ids := NewIntervalSetFrom(candidates, excludeID).Conflicts(iv)
	if len(ids) == 0 {
		return nil
	}

	metrics.IncConflict(op)
	s.logger.Info().
		Str("operation", op).
		Str("stay", iv.String()).
		Ints64("conflicts_with", ids).
		Msg("overlap gate rejected write")
	return &ConflictError{Stay: iv, With: ids}
}

func (s *Service) lock(ctx context.Context) (func(), error) {
	start := time.Now()
	unlock, err := s.locker.Lock(ctx)
	metrics.ObserveLockWait(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("acquire writer lock: %w", err)
	}
	return unlock, nil
}

func (s *Service) publish(eventType string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("publish failed")
	}
}

func trimGuest(g Guest) Guest {
	g.GuestName = strings.TrimSpace(g.GuestName)
	g.GuestEmail = strings.TrimSpace(g.GuestEmail)
	g.Phone = strings.TrimSpace(g.Phone)
	g.Contact = strings.TrimSpace(g.Contact)
	g.Notes = strings.TrimSpace(g.Notes)
	g.VehicleReg = strings.TrimSpace(g.VehicleReg)
	g.SpecialRequests = strings.TrimSpace(g.SpecialRequests)
	return g
}
