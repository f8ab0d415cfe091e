package api

import (
	"net/http"

	"holidaylet/internal/apperr"
	"holidaylet/internal/pricing"
)

// RateRequest is the body of POST /api/rates.
type RateRequest struct {
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	Price     float64 `json:"price"`
	RateType  string  `json:"rate_type,omitempty"` // "total" (default) or "nightly"
	Note      string  `json:"note,omitempty"`
}

// RatesResponse is the response for GET /api/rates.
type RatesResponse struct {
	Rates []pricing.Rule `json:"rates"`
}

// handleRates dispatches /api/rates by method. Reads are public.
func (s *HTTPServer) handleRates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rates, err := s.rates.ListRates(r.Context())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if rates == nil {
			rates = []pricing.Rule{}
		}
		writeJSON(w, http.StatusOK, RatesResponse{Rates: rates})
	case http.MethodPost:
		s.createRate(w, r)
	case http.MethodDelete:
		s.deleteRate(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// POST /api/rates
func (s *HTTPServer) createRate(w http.ResponseWriter, r *http.Request) {
	if !requireOwner(w, r) {
		return
	}
	var req RateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	iv, err := requestInterval(req.StartDate, req.EndDate)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	rule := pricing.Rule{
		Interval: iv,
		Price:    req.Price,
		Kind:     pricing.Kind(req.RateType),
		Note:     req.Note,
	}
	if err := pricing.ValidateRule(&rule); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.rates.CreateRate(r.Context(), &rule); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.log.Info().Int64("rate_id", rule.ID).Str("stay", rule.Interval.String()).Msg("rate created")
	writeJSON(w, http.StatusCreated, rule)
}

// DELETE /api/rates?id=N
func (s *HTTPServer) deleteRate(w http.ResponseWriter, r *http.Request) {
	if !requireOwner(w, r) {
		return
	}
	id, err := queryID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.rates.DeleteRate(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.log.Info().Int64("rate_id", id).Msg("rate deleted")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleQuote prices a stay.
// GET /api/quote?start_date=YYYY-MM-DD&end_date=YYYY-MM-DD
func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	iv, err := requestInterval(q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := iv.Validate(); err != nil {
		s.writeServiceError(w, r, apperr.InvalidMsg("end_date", err.Error()))
		return
	}
	quote, err := s.quotes.Quote(r.Context(), iv)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}
