package server

import (
	"net/http"
	"time"
)

// RefreshCookieName is the cookie that transports the refresh token. The
// cookie is http-only, so page scripts can never read it; only the server and
// the browser's cookie jar see the value.
const RefreshCookieName = "jid"

func (s *Server) refreshCookie(value string, maxAge time.Duration) *http.Cookie {
	cookie := &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int(maxAge / time.Second),
		SameSite: http.SameSiteLaxMode,
	}
	if s.isProduction() {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteNoneMode
	}
	return cookie
}

// setRefreshCookie clears any existing cookie before setting the new value,
// so a client never accumulates two jid cookies.
func (s *Server) setRefreshCookie(w http.ResponseWriter, token string) {
	s.clearRefreshCookie(w)
	http.SetCookie(w, s.refreshCookie(token, s.config.GetRefreshTokenExpiry()))
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	cookie := s.refreshCookie("", 0)
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)
}
