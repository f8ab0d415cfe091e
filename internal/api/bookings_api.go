package api

import (
	"net/http"
	"strings"

	"holidaylet/internal/apperr"
	"holidaylet/internal/booking"
	"holidaylet/internal/dates"
	"holidaylet/shared/access"
)

// BookingRequest is the body of POST /api/bookings.
type BookingRequest struct {
	StartDate string   `json:"start_date"` // Format: YYYY-MM-DD
	EndDate   string   `json:"end_date"`   // Format: YYYY-MM-DD, checkout day
	Status    string   `json:"status,omitempty"`
	Price     *float64 `json:"price,omitempty"` // owner only
	booking.Guest
}

// BookingPatchRequest is the body of PATCH /api/bookings?id=N. Action is
// either "approve" or "decline" and cannot be combined with field edits.
type BookingPatchRequest struct {
	Action    string   `json:"action,omitempty"`
	StartDate *string  `json:"start_date,omitempty"`
	EndDate   *string  `json:"end_date,omitempty"`
	Status    *string  `json:"status,omitempty"`
	Price     *float64 `json:"price,omitempty"`
	booking.GuestPatch
}

// PublicBooking is what guests see of a booking.
type PublicBooking struct {
	ID        int64          `json:"id"`
	StartDate dates.Date     `json:"start_date"`
	EndDate   dates.Date     `json:"end_date"`
	Status    booking.Status `json:"status"`
}

// BookingsResponse is the response for GET /api/bookings.
type BookingsResponse struct {
	Bookings any `json:"bookings"`
}

// handleBookings dispatches /api/bookings by method.
func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Has("id") {
			s.getBooking(w, r)
			return
		}
		s.listBookings(w, r)
	case http.MethodPost:
		s.createBooking(w, r)
	case http.MethodPatch:
		s.patchBooking(w, r)
	case http.MethodDelete:
		s.deleteBooking(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// GET /api/bookings?id=N
func (s *HTTPServer) getBooking(w http.ResponseWriter, r *http.Request) {
	if !requireOwner(w, r) {
		return
	}
	id, err := queryID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	b, err := s.bookings.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GET /api/bookings?status=provisional,confirmed&from=YYYY-MM-DD&to=YYYY-MM-DD
// Guests always get provisional and confirmed bookings without guest details.
func (s *HTTPServer) listBookings(w http.ResponseWriter, r *http.Request) {
	actor := access.ActorFrom(r.Context())
	q := r.URL.Query()

	filter := booking.Filter{Statuses: []booking.Status{booking.StatusProvisional, booking.StatusConfirmed}}
	if raw := q.Get("status"); raw != "" && actor.IsOwner() {
		filter.Statuses = nil
		for _, part := range strings.Split(raw, ",") {
			st, err := booking.ParseStatus(part)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation", Field: "status"})
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	if q.Get("from") != "" || q.Get("to") != "" {
		window, err := dates.ParseInterval(q.Get("from"), q.Get("to"))
		if err != nil {
			s.writeServiceError(w, r, apperr.InvalidMsg("to", err.Error()))
			return
		}
		filter.Overlapping = &window
	}

	list, err := s.bookings.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if actor.IsOwner() {
		if list == nil {
			list = []booking.Booking{}
		}
		writeJSON(w, http.StatusOK, BookingsResponse{Bookings: list})
		return
	}
	public := make([]PublicBooking, 0, len(list))
	for _, b := range list {
		public = append(public, PublicBooking{ID: b.ID, StartDate: b.Start, EndDate: b.End, Status: b.Status})
	}
	writeJSON(w, http.StatusOK, BookingsResponse{Bookings: public})
}

// POST /api/bookings
// Owners create confirmed bookings unless they ask otherwise; guest requests
// are provisional, checked against the stay policy and rate limited per IP.
func (s *HTTPServer) createBooking(w http.ResponseWriter, r *http.Request) {
	actor := access.ActorFrom(r.Context())
	if !actor.IsOwner() && !s.guests.Allow(s.clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "too many booking requests; try again later")
		return
	}

	var req BookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	stayIv, err := requestInterval(req.StartDate, req.EndDate)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	status := booking.Status(strings.ToLower(strings.TrimSpace(req.Status)))
	if status == "" && actor.IsOwner() {
		status = booking.StatusConfirmed
	}

	b, err := s.bookings.Create(r.Context(), actor, booking.Draft{
		Stay:   stayIv,
		Status: status,
		Guest:  req.Guest,
		Price:  req.Price,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// PATCH /api/bookings?id=N
func (s *HTTPServer) patchBooking(w http.ResponseWriter, r *http.Request) {
	if !requireOwner(w, r) {
		return
	}
	actor := access.ActorFrom(r.Context())

	id, err := queryID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var req BookingPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Action != "" {
		if req.hasEdits() {
			s.writeServiceError(w, r, apperr.Invalid("action", "action cannot be combined with field edits"))
			return
		}
		var b *booking.Booking
		switch strings.ToLower(req.Action) {
		case "approve":
			b, err = s.bookings.Approve(r.Context(), actor, id)
		case "decline":
			b, err = s.bookings.Decline(r.Context(), actor, id)
		default:
			err = apperr.Invalid("action", "action must be approve or decline")
		}
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
		return
	}

	patch, err := buildPatch(&req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	b, err := s.bookings.Edit(r.Context(), actor, id, patch)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// DELETE /api/bookings?id=N
func (s *HTTPServer) deleteBooking(w http.ResponseWriter, r *http.Request) {
	if !requireOwner(w, r) {
		return
	}
	id, err := queryID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.bookings.Delete(r.Context(), access.ActorFrom(r.Context()), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (req *BookingPatchRequest) hasEdits() bool {
	return req.StartDate != nil || req.EndDate != nil || req.Status != nil || req.Price != nil || !req.GuestPatch.Empty()
}

// buildPatch converts the request into a booking.Patch.
func buildPatch(req *BookingPatchRequest) (booking.Patch, error) {
	var p booking.Patch
	var err error
	if req.StartDate != nil {
		if p.Start, err = optionalDate("start_date", *req.StartDate); err != nil {
			return p, err
		}
	}
	if req.EndDate != nil {
		if p.End, err = optionalDate("end_date", *req.EndDate); err != nil {
			return p, err
		}
	}
	if req.Status != nil {
		st := booking.Status(strings.ToLower(strings.TrimSpace(*req.Status)))
		p.Status = &st
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return p, apperr.Invalid("price", "price must not be negative")
		}
		p.Price = req.Price
	}

	if !req.GuestPatch.Empty() {
		g := req.GuestPatch
		p.Guest = &g
	}
	return p, nil
}

// requestInterval parses a stay given as two dates, reporting a missing date
// before a malformed one.
func requestInterval(start, end string) (dates.Interval, error) {
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return dates.Interval{}, apperr.InvalidMsg("start_date", dates.ErrMissingDates.Error())
	}
	s, err := optionalDate("start_date", strings.TrimSpace(start))
	if err != nil {
		return dates.Interval{}, err
	}
	e, err := optionalDate("end_date", strings.TrimSpace(end))
	if err != nil {
		return dates.Interval{}, err
	}
	return dates.NewInterval(*s, *e), nil
}
