package token

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stockpilot/auth-service/internal/config"
	"github.com/stockpilot/auth-service/users"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

var ErrInvalidToken = errors.New("invalid token")

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	Role users.RoleType `json:"role"`
	jwtlib.RegisteredClaims
}

// RefreshClaims are the claims carried by a refresh token.
type RefreshClaims struct {
	jwtlib.RegisteredClaims
}

// Manager signs and verifies access and refresh tokens. The two token kinds
// use separate HMAC secrets so one cannot stand in for the other.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// NewManager creates a token manager from the token configuration.
func NewManager(cfg config.TokenConfig) (*Manager, error) {
	if cfg.GetAccessTokenSecret() == "" || cfg.GetRefreshTokenSecret() == "" {
		return nil, errors.New("[NewManager] access and refresh token secrets are required")
	}
	return &Manager{
		accessSecret:  []byte(cfg.GetAccessTokenSecret()),
		refreshSecret: []byte(cfg.GetRefreshTokenSecret()),
		accessExpiry:  cfg.GetAccessTokenExpiry(),
		refreshExpiry: cfg.GetRefreshTokenExpiry(),
	}, nil
}

// SignAccessToken creates a short-lived access token asserting {subject, role}.
func (m *Manager) SignAccessToken(user *users.User) (string, error) {
	now := NowTimeFunc()
	claims := AccessClaims{
		Role: user.Role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(m.accessExpiry)),
			ID:        uuid.New().String(),
		},
	}
	return m.sign(claims, m.accessSecret)
}

// SignRefreshToken creates a long-lived refresh token asserting {subject}.
func (m *Manager) SignRefreshToken(userID string) (string, error) {
	now := NowTimeFunc()
	claims := RefreshClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(m.refreshExpiry)),
			ID:        uuid.New().String(),
		},
	}
	return m.sign(claims, m.refreshSecret)
}

// RefreshExpiry reports the configured refresh token lifetime; the service
// uses it for the persisted record's expiry.
func (m *Manager) RefreshExpiry() time.Duration {
	return m.refreshExpiry
}

// VerifyAccessToken validates signature and expiry of an access token and
// returns its claims. Any failure maps to ErrInvalidToken.
func (m *Manager) VerifyAccessToken(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.verify(raw, claims, m.accessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefreshToken validates signature and expiry of a refresh token and
// returns the embedded subject.
func (m *Manager) VerifyRefreshToken(raw string) (string, error) {
	claims := &RefreshClaims{}
	if err := m.verify(raw, claims, m.refreshSecret); err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (m *Manager) sign(claims jwtlib.Claims, secret []byte) (string, error) {
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (m *Manager) verify(raw string, claims jwtlib.Claims, secret []byte) error {
	parsed, err := jwtlib.ParseWithClaims(raw, claims,
		func(t *jwtlib.Token) (any, error) { return secret, nil },
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithTimeFunc(func() time.Time { return NowTimeFunc() }),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}
