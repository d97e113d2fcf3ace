package server

import (
	"errors"
	"net"
	"net/http"

	"github.com/stockpilot/auth-service/auth"
	"github.com/stockpilot/auth-service/users"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	AccessToken string           `json:"accessToken"`
	User        users.PublicUser `json:"user"`
}

type meResponse struct {
	User users.PublicUser `json:"user"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// RegisterHandler creates a user and starts a session: the access token goes
// in the body, the refresh token in the jid cookie.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !readJSON(w, r, &req) {
			return
		}

		result, err := s.auth.Register(r.Context(), req.Name, req.Email, req.Password)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		s.setRefreshCookie(w, result.RefreshToken)
		writeJSON(w, http.StatusOK, authResponse{AccessToken: result.AccessToken, User: result.User})
	}
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !readJSON(w, r, &req) {
			return
		}

		result, err := s.auth.Login(r.Context(), req.Email, req.Password, clientIP(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		s.setRefreshCookie(w, result.RefreshToken)
		writeJSON(w, http.StatusOK, authResponse{AccessToken: result.AccessToken, User: result.User})
	}
}

// RefreshHandler rotates the refresh token from the jid cookie. Reuse of a
// rotated-away token revokes every session for that user, so the cookie is
// cleared before the 401 goes out.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(RefreshCookieName)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "no refresh token")
			return
		}

		result, err := s.auth.Refresh(r.Context(), cookie.Value)
		if err != nil {
			if errors.Is(err, auth.ErrTokenRevoked) {
				s.clearRefreshCookie(w)
			}
			writeServiceError(w, err)
			return
		}

		s.setRefreshCookie(w, result.RefreshToken)
		writeJSON(w, http.StatusOK, authResponse{AccessToken: result.AccessToken, User: result.User})
	}
}

// LogoutHandler is best-effort: whatever the state of the presented cookie,
// it is cleared and the response is 200 {ok:true}.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(RefreshCookieName); err == nil {
			s.auth.Logout(r.Context(), cookie.Value)
		}
		s.clearRefreshCookie(w)
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	}
}

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.Me(r.Context(), bearerToken(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, meResponse{User: *user})
	}
}

// ProtectedHandler stands in for the inventory API surface; anything mounted
// behind RequireAuth behaves the same way toward the session client.
func (s *Server) ProtectedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	}
}

// PreflightHandler answers OPTIONS requests that CorsMiddleware let through
// (same-origin or disallowed-origin preflights).
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
