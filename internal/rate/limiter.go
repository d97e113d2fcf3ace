// Package rate enforces login attempt budgets using Redis counters.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when an identifier has exhausted its attempt budget.
var ErrRateLimited = errors.New("too many attempts, try again later")

// Config holds rate limiter tuning parameters.
type Config struct {
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

// Limiter throttles failed login attempts per email and per IP using Redis
// counters with a cooldown TTL. A nil *Limiter is a no-op, so callers can
// leave throttling unconfigured.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = 10
	}
	if cfg.LoginCooldownDuration <= 0 {
		cfg.LoginCooldownDuration = 15 * time.Minute
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckLogin reports whether the email+IP pair is still within the login
// attempt budget. Returns ErrRateLimited when exhausted.
func (l *Limiter) CheckLogin(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.checkCounter(ctx, loginUserKey(email)); err != nil {
		return err
	}
	if ip != "" {
		if err := l.checkCounter(ctx, loginIPKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

// RecordFailure counts a failed login attempt for the email+IP pair.
func (l *Limiter) RecordFailure(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.incrementWithTTL(ctx, loginUserKey(email)); err != nil {
		return err
	}
	if ip != "" {
		return l.incrementWithTTL(ctx, loginIPKey(ip))
	}
	return nil
}

// ResetLogin clears the failed-login counters after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	keys := []string{loginUserKey(email)}
	if ip != "" {
		keys = append(keys, loginIPKey(ip))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("rate reset: %w", err)
	}
	return nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("rate check: %w", err)
	}
	if count >= int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) error {
	pipe := l.redis.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.config.LoginCooldownDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rate increment: %w", err)
	}
	return nil
}

func loginUserKey(email string) string {
	return "auth:login:user:" + email
}

func loginIPKey(ip string) string {
	return "auth:login:ip:" + ip
}
