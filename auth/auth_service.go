package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/stockpilot/auth-service/internal/rate"
	"github.com/stockpilot/auth-service/token"
	"github.com/stockpilot/auth-service/users"
	"golang.org/x/crypto/bcrypt"
)

// Result is the outcome of Register, Login, and Refresh: an access token for
// the client to hold in memory, a refresh token for the cookie, and the
// public user view.
type Result struct {
	AccessToken  string
	RefreshToken string
	User         users.PublicUser
}

// Service implements credential validation and token issuance with
// refresh-token rotation and reuse detection.
type Service struct {
	users      users.UserRepo
	tokens     *token.Manager
	limiter    *rate.Limiter // nil disables throttling
	bcryptCost int
	nowTime    func() time.Time
}

// ServiceOption modifies a Service during construction.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithLimiter enables failed-login throttling.
func WithLimiter(limiter *rate.Limiter) ServiceOption {
	return func(s *Service) {
		s.limiter = limiter
	}
}

// WithBcryptCost overrides the password hashing cost factor.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

// NewService initializes a Service with its required dependencies.
func NewService(userRepo users.UserRepo, tokenManager *token.Manager, options ...ServiceOption) (*Service, error) {
	if userRepo == nil {
		return nil, errors.New("[NewService] user repo is required")
	}
	if tokenManager == nil {
		return nil, errors.New("[NewService] token manager is required")
	}

	service := &Service{
		users:      userRepo,
		tokens:     tokenManager,
		bcryptCost: 12,
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(service)
	}
	return service, nil
}

// Register creates a user with role "user" and issues a token pair.
// Fails with ErrMissingFields when email or password is absent and
// ErrEmailInUse when the email is already registered.
func (s *Service) Register(ctx context.Context, name, email, password string) (*Result, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrMissingFields
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.nowTime().UTC()
	user := &users.User{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: string(passwordHash),
		Role:         users.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, users.ErrDuplicateEmail) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return s.issueTokens(ctx, user)
}

// Login validates credentials and issues a token pair. Unknown email and
// wrong password both fail with ErrInvalidCredentials so accounts cannot be
// enumerated. ip may be empty; it only feeds the throttle.
func (s *Service) Login(ctx context.Context, email, password, ip string) (*Result, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	if err := s.limiter.CheckLogin(ctx, email, ip); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			s.recordLoginFailure(ctx, email, ip)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.recordLoginFailure(ctx, email, ip)
		return nil, ErrInvalidCredentials
	}

	if err := s.limiter.ResetLogin(ctx, email, ip); err != nil {
		log.Warn().Err(err).Msg("failed to reset login throttle")
	}

	return s.issueTokens(ctx, user)
}

// Refresh rotates the presented refresh token. A token whose hash is no
// longer on record was already rotated away and is being replayed; that
// revokes every session for the user and fails with ErrTokenRevoked.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken string) (*Result, error) {
	if rawRefreshToken == "" {
		return nil, ErrInvalidToken
	}

	userID, err := s.tokens.VerifyRefreshToken(rawRefreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	newRefreshToken, err := s.tokens.SignRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	now := s.nowTime().UTC()
	newRecord := users.RefreshTokenRecord{
		TokenHash: token.Hash(newRefreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.tokens.RefreshExpiry()),
	}

	err = s.users.RotateRefreshToken(ctx, user.ID, token.Hash(rawRefreshToken), newRecord)
	if err != nil {
		if errors.Is(err, users.ErrTokenHashNotFound) {
			// Reuse of an already-rotated token: treat as theft and revoke
			// every outstanding session for this user.
			if clearErr := s.users.ClearRefreshTokens(ctx, user.ID); clearErr != nil {
				log.Error().Err(clearErr).Str("user_id", user.ID).Msg("failed to revoke sessions after token reuse")
			}
			log.Warn().Str("user_id", user.ID).Msg("refresh token reuse detected, all sessions revoked")
			return nil, ErrTokenRevoked
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	accessToken, err := s.tokens.SignAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	return &Result{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		User:         user.Public(),
	}, nil
}

// Logout removes the refresh-token record matching the presented token.
// Best-effort: an absent, malformed, or already-revoked token is not an
// error, so logging out twice succeeds both times.
func (s *Service) Logout(ctx context.Context, rawRefreshToken string) {
	if rawRefreshToken == "" {
		return
	}
	userID, err := s.tokens.VerifyRefreshToken(rawRefreshToken)
	if err != nil {
		return
	}
	if err := s.users.RemoveRefreshToken(ctx, userID, token.Hash(rawRefreshToken)); err != nil &&
		!errors.Is(err, users.ErrNotFound) {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to remove refresh token on logout")
	}
}

// Me resolves a bearer access token to its public user view.
func (s *Service) Me(ctx context.Context, rawAccessToken string) (*users.PublicUser, error) {
	claims, err := s.tokens.VerifyAccessToken(rawAccessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	public := user.Public()
	return &public, nil
}

// Tokens exposes the token manager for bearer-guard middleware. Access-token
// validity is purely cryptographic, so guards need no repository access.
func (s *Service) Tokens() *token.Manager {
	return s.tokens
}

// issueTokens signs a fresh access/refresh pair and persists the refresh
// record for the user.
func (s *Service) issueTokens(ctx context.Context, user *users.User) (*Result, error) {
	accessToken, err := s.tokens.SignAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, err := s.tokens.SignRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	now := s.nowTime().UTC()
	record := users.RefreshTokenRecord{
		TokenHash: token.Hash(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.tokens.RefreshExpiry()),
	}
	if err := s.users.AddRefreshToken(ctx, user.ID, record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &Result{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user.Public(),
	}, nil
}

func (s *Service) recordLoginFailure(ctx context.Context, email, ip string) {
	if err := s.limiter.RecordFailure(ctx, email, ip); err != nil {
		log.Warn().Err(err).Msg("failed to record login failure")
	}
}
