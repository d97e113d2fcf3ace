package repofake

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/stockpilot/auth-service/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

// FakeUserRepo is an in-memory UserRepo used by tests and local development.
// All operations run under one lock, so token rotation is naturally serialized
// per user.
type FakeUserRepo struct {
	users    map[string]*users.User
	emailIds map[string]string // lowercase email to user id
	lock     sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:    make(map[string]*users.User),
		emailIds: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Create(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	email := strings.ToLower(user.Email)
	if _, ok := ur.emailIds[email]; ok {
		return users.ErrDuplicateEmail
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	stored := *user
	stored.Email = email
	stored.RefreshTokens = append([]users.RefreshTokenRecord(nil), user.RefreshTokens...)
	ur.users[stored.ID] = &stored
	ur.emailIds[email] = stored.ID
	return nil
}

func (ur *FakeUserRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[strings.ToLower(email)]
	if !ok {
		return nil, users.ErrNotFound
	}
	return copyUser(ur.users[id]), nil
}

func (ur *FakeUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return copyUser(user), nil
}

func (ur *FakeUserRepo) AddRefreshToken(_ context.Context, userID string, record users.RefreshTokenRecord) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[userID]
	if !ok {
		return users.ErrNotFound
	}
	user.RefreshTokens = append(user.RefreshTokens, record)
	return nil
}

func (ur *FakeUserRepo) RotateRefreshToken(_ context.Context, userID string, oldHash string, newRecord users.RefreshTokenRecord) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[userID]
	if !ok {
		return users.ErrNotFound
	}
	idx := -1
	for i, rt := range user.RefreshTokens {
		if rt.TokenHash == oldHash {
			idx = i
			break
		}
	}
	if idx < 0 {
		return users.ErrTokenHashNotFound
	}
	user.RefreshTokens = append(user.RefreshTokens[:idx], user.RefreshTokens[idx+1:]...)
	user.RefreshTokens = append(user.RefreshTokens, newRecord)
	return nil
}

func (ur *FakeUserRepo) RemoveRefreshToken(_ context.Context, userID string, tokenHash string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[userID]
	if !ok {
		return users.ErrNotFound
	}
	kept := user.RefreshTokens[:0]
	for _, rt := range user.RefreshTokens {
		if rt.TokenHash != tokenHash {
			kept = append(kept, rt)
		}
	}
	user.RefreshTokens = kept
	return nil
}

func (ur *FakeUserRepo) ClearRefreshTokens(_ context.Context, userID string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[userID]
	if !ok {
		return users.ErrNotFound
	}
	user.RefreshTokens = nil
	return nil
}

// TokenCount reports how many refresh-token records the user currently holds.
// Test helper.
func (ur *FakeUserRepo) TokenCount(userID string) int {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.users[userID]
	if !ok {
		return 0
	}
	return len(user.RefreshTokens)
}

func copyUser(u *users.User) *users.User {
	c := *u
	c.RefreshTokens = append([]users.RefreshTokenRecord(nil), u.RefreshTokens...)
	return &c
}
