package users

import (
	"context"
	"errors"
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrDuplicateEmail    = errors.New("email already in use")
	ErrTokenHashNotFound = errors.New("refresh token record not found")
)

// UserRepo manages user records and their refresh-token lists.
//
// RotateRefreshToken must be a single atomic find-and-replace: two concurrent
// rotations presenting the same oldHash must not both succeed. Implementations
// serialize the read-modify-write per user (a critical section for the
// in-memory repo, a conditional statement for SQL).
type UserRepo interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)

	// AddRefreshToken appends a record to the user's refresh-token list.
	AddRefreshToken(ctx context.Context, userID string, record RefreshTokenRecord) error

	// RotateRefreshToken atomically removes the record matching oldHash and
	// inserts newRecord. Returns ErrTokenHashNotFound when oldHash has no
	// matching record - the reuse signal.
	RotateRefreshToken(ctx context.Context, userID string, oldHash string, newRecord RefreshTokenRecord) error

	// RemoveRefreshToken deletes the record matching tokenHash. Removing an
	// absent record is not an error.
	RemoveRefreshToken(ctx context.Context, userID string, tokenHash string) error

	// ClearRefreshTokens deletes every refresh-token record for the user,
	// revoking all of their sessions.
	ClearRefreshTokens(ctx context.Context, userID string) error
}
