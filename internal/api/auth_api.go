package api

import (
	"errors"
	"net/http"

	"holidaylet/shared/access"
)

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Password string `json:"password"`
}

// POST /api/login
func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}
	if s.auth == nil {
		writeError(w, http.StatusServiceUnavailable, access.ErrLoginDisabled.Error())
		return
	}
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	cookie, err := s.auth.Login(req.Password)
	switch {
	case errors.Is(err, access.ErrLoginDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case access.IsAccessDenied(err):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Kind: "unauthorized"})
		return
	case err != nil:
		s.writeServiceError(w, r, err)
		return
	}
	http.SetCookie(w, cookie)
	writeJSON(w, http.StatusOK, map[string]bool{"owner": true})
}

// POST /api/logout
func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}
	if s.auth != nil {
		http.SetCookie(w, s.auth.LogoutCookie())
	}
	writeJSON(w, http.StatusOK, map[string]bool{"owner": false})
}

// GET /api/session
func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"owner": access.ActorFrom(r.Context()).IsOwner()})
}
