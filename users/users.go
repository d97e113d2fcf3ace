package users

import (
	"time"
)

// RoleType represents a user role
type RoleType string

const (
	RoleUser  RoleType = "user"
	RoleAdmin RoleType = "admin"
)

// RefreshTokenRecord is one outstanding link in a user's refresh-token rotation
// chain. Only a digest of the token is stored; the raw token never reaches the
// persistence layer.
type RefreshTokenRecord struct {
	TokenHash string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the record's expiry has passed at the given time.
func (r RefreshTokenRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

type User struct {
	ID            string               `json:"id,omitempty"`    // Unique identifier for the user
	Name          string               `json:"name,omitempty"`  // Display name
	Email         string               `json:"email,omitempty"` // User's email address, stored lowercase
	PasswordHash  string               `json:"-"`               // Hashed version of the user's password - never serialize
	Role          RoleType             `json:"role,omitempty"`
	RefreshTokens []RefreshTokenRecord `json:"-"` // Outstanding refresh-token records - never serialize
	CreatedAt     time.Time            `json:"created_at,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at,omitempty"`
}

// PublicUser is the view of a user returned by the API. It carries no
// credential material.
type PublicUser struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Email string   `json:"email"`
	Role  RoleType `json:"role"`
}

// Public returns the user view safe to hand to clients.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Role:  u.Role,
	}
}
