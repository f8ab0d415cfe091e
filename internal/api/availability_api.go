package api

import (
	"net/http"

	"holidaylet/internal/apperr"
	"holidaylet/internal/booking"
	"holidaylet/internal/dates"
)

// DefaultAvailabilityDays is the window used when "to" is omitted.
const DefaultAvailabilityDays = 365

// AvailabilityResponse is the response for GET /api/availability.
type AvailabilityResponse struct {
	*booking.Occupancy
	MinNights int `json:"min_nights"`
	// Checkouts lists the earliest allowed checkout per pattern when an
	// arrival date was given.
	Checkouts []dates.Date `json:"checkouts,omitempty"`
}

// handleAvailability returns occupied days in a window.
// GET /api/availability?from=YYYY-MM-DD&to=YYYY-MM-DD&arrival=YYYY-MM-DD
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()

	from := s.today()
	if d, err := optionalDate("from", q.Get("from")); err != nil {
		s.writeServiceError(w, r, err)
		return
	} else if d != nil {
		from = *d
	}
	to := from.AddDays(DefaultAvailabilityDays)
	if d, err := optionalDate("to", q.Get("to")); err != nil {
		s.writeServiceError(w, r, err)
		return
	} else if d != nil {
		to = *d
	}

	occ, err := s.bookings.Occupancy(r.Context(), dates.NewInterval(from, to))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	policy := s.bookings.Policy()
	resp := AvailabilityResponse{Occupancy: occ, MinNights: policy.MinNights}
	if raw := q.Get("arrival"); raw != "" {
		arrival, err := dates.ParseDate(raw)
		if err != nil {
			s.writeServiceError(w, r, apperr.InvalidMsg("arrival", err.Error()))
			return
		}
		resp.Checkouts = policy.AllowedCheckouts(arrival)
	}
	writeJSON(w, http.StatusOK, resp)
}
