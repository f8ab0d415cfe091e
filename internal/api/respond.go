package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"holidaylet/internal/apperr"
	"holidaylet/internal/booking"
	"holidaylet/internal/dates"
	"holidaylet/shared/access"
)

// ErrorResponse is the body of every non-2xx API answer.
type ErrorResponse struct {
	Error     string  `json:"error"`
	Kind      string  `json:"kind,omitempty"`
	Field     string  `json:"field,omitempty"`
	Conflicts []int64 `json:"conflicts,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeServiceError maps core errors onto status codes. Unknown errors are
// logged and reported as 500 without detail.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		valErr      *apperr.ValidationError
		conflictErr *booking.ConflictError
	)
	switch {
	case errors.As(err, &conflictErr):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Kind: "conflict", Conflicts: conflictErr.With})
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation", Field: valErr.Field})
	case apperr.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
	case access.IsAccessDenied(err):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: err.Error(), Kind: "access_denied"})
	case booking.IsTransitionError(err):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Kind: "invalid_transition"})
	case errors.Is(err, booking.ErrConcurrentModification):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Kind: "concurrent_modification"})
	case apperr.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found", Kind: "not_found"})
	case errors.Is(err, context.DeadlineExceeded):
		s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("request timed out")
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "request timed out", Kind: "timeout"})
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

// requireOwner answers 401 and returns false for guests.
func requireOwner(w http.ResponseWriter, r *http.Request) bool {
	if access.ActorFrom(r.Context()).IsOwner() {
		return true
	}
	writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "owner login required", Kind: "unauthorized"})
	return false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

const maxJSONBody = 1 << 20

func queryID(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("id")
	if raw == "" {
		return 0, apperr.Invalid("id", "id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid("id", "invalid id %q", raw)
	}
	return id, nil
}

// optionalDate parses s when it is non-empty.
func optionalDate(field, s string) (*dates.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := dates.ParseDate(s)
	if err != nil {
		return nil, apperr.InvalidMsg(field, err.Error())
	}
	return &d, nil
}
