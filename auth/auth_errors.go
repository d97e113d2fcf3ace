package auth

import "errors"

var (
	// Validation errors - the client must correct and resubmit.
	ErrMissingFields = errors.New("missing fields")
	ErrInvalidEmail  = errors.New("invalid email address")

	// Conflict errors - duplicate unique field.
	ErrEmailInUse = errors.New("email already in use")

	// Auth errors - surfaced as a generic denial, never revealing which
	// factor failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenRevoked       = errors.New("refresh token revoked")
)
