package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/jnst/theshop-core/internal/model"
)

// Register handles POST /auth/register.
func (s *APIServer) Register(w http.ResponseWriter, r *http.Request) {
	var params model.RegisterParams
	if !decodeJSON(w, r, &params) {
		return
	}

	account, err := s.identity.Register(r.Context(), &params)
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusCreated, account)
}

// Login handles POST /auth/login.
func (s *APIServer) Login(w http.ResponseWriter, r *http.Request) {
	var params model.LoginParams
	if !decodeJSON(w, r, &params) {
		return
	}

	params.DeviceInfo = r.UserAgent()
	params.IPAddress = clientIP(r)

	pair, err := s.identity.Login(r.Context(), &params)
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusOK, pair)
}

// Refresh handles POST /auth/refresh. An access token in the Authorization
// header may be expired; it only names the session being replaced.
func (s *APIServer) Refresh(w http.ResponseWriter, r *http.Request) {
	var params model.RefreshParams
	if !decodeJSON(w, r, &params) {
		return
	}

	if token, ok := bearerToken(r); ok {
		if claims, err := s.tokens.ParseExpiredAccessToken(token); err == nil {
			params.PreviousJTI = claims.ID
		}
	}

	params.DeviceInfo = r.UserAgent()
	params.IPAddress = clientIP(r)

	pair, err := s.identity.Refresh(r.Context(), &params)
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusOK, pair)
}

type logoutRequest struct {
	AllDevices bool `json:"allDevices"`
}

// Logout handles POST /auth/logout. The body is optional.
func (s *APIServer) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	principal, _ := PrincipalFrom(r.Context())
	if err := s.identity.Logout(r.Context(), principal, req.AllDevices); err != nil {
		writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSessions handles GET /auth/sessions.
func (s *APIServer) ListSessions(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())

	sessions, err := s.identity.ListSessions(r.Context(), principal)
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusOK, sessions)
}

// RevokeSession handles DELETE /auth/sessions/{id}.
func (s *APIServer) RevokeSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, model.ErrSessionNotFound)

		return
	}

	principal, _ := PrincipalFrom(r.Context())
	if err := s.identity.RevokeSession(r.Context(), principal, id); err != nil {
		writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CountSessions handles GET /admin/sessions/count.
func (s *APIServer) CountSessions(w http.ResponseWriter, r *http.Request) {
	n, err := s.sessions.CountActiveSessions(r.Context())
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusOK, map[string]int{"activeSessions": n})
}
