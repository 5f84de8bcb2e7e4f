package server

import (
	"encoding/json"
	"net/http"

	"github.com/tonimelisma/waypoint/internal/audit"
)

// loginRequest is the POST /auth/login body.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// refreshRequest is the POST /auth/refresh body.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleLogin exchanges username+password for an access/refresh token
// pair. Bad username and bad password produce the identical response.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pair, err := s.auth.Login(req.Username, req.Password)
	s.recorder.Record(r.Context(), audit.Record{Op: "login", OK: err == nil})

	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleRefresh rotates the session: the presented refresh secret is
// one-time-use and a fresh pair comes back.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pair, err := s.auth.Refresh(req.RefreshToken)
	s.recorder.Record(r.Context(), audit.Record{Op: "refresh", OK: err == nil})

	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleLogout revokes the current session unconditionally.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear session")
		return
	}

	s.recorder.Record(r.Context(), audit.Record{Op: "logout", OK: true})

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
