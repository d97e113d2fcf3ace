package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/stockpilot/auth-service/auth"
	"github.com/stockpilot/auth-service/internal/rate"
)

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("failed to encode response body")
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// writeServiceError maps the auth error taxonomy onto HTTP statuses. Anything
// outside the taxonomy is an unexpected persistence or signing failure: it is
// logged server-side and surfaced as an opaque 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrMissingFields), errors.Is(err, auth.ErrInvalidEmail):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrEmailInUse):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenRevoked):
		writeMessage(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, rate.ErrRateLimited):
		writeMessage(w, http.StatusTooManyRequests, err.Error())
	default:
		log.Err(err).Msg("unexpected service error")
		writeMessage(w, http.StatusInternalServerError, "Server error")
	}
}
