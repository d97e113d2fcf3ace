package rate_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stockpilot/auth-service/internal/rate"
	"github.com/stretchr/testify/require"
)

const (
	testEmail = "a@b.com"
	testIP    = "203.0.113.7"
)

func setupLimiter(t *testing.T, maxAttempts int, cooldown time.Duration) (*rate.Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := rate.New(client, rate.Config{
		MaxLoginAttempts:      maxAttempts,
		LoginCooldownDuration: cooldown,
	})
	return limiter, mr
}

func TestLimiterAllowsWithinBudget(t *testing.T) {
	limiter, _ := setupLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, limiter.CheckLogin(ctx, testEmail, testIP))
		require.NoError(t, limiter.RecordFailure(ctx, testEmail, testIP))
	}
	require.NoError(t, limiter.CheckLogin(ctx, testEmail, testIP))
}

func TestLimiterBlocksAfterBudgetExhausted(t *testing.T) {
	limiter, _ := setupLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.RecordFailure(ctx, testEmail, testIP))
	}
	require.ErrorIs(t, limiter.CheckLogin(ctx, testEmail, testIP), rate.ErrRateLimited)

	// Another address trying the same account is blocked too.
	require.ErrorIs(t, limiter.CheckLogin(ctx, testEmail, "198.51.100.9"), rate.ErrRateLimited)
	// The blocked address cannot probe other accounts either.
	require.ErrorIs(t, limiter.CheckLogin(ctx, "other@b.com", testIP), rate.ErrRateLimited)
	// An unrelated email+IP pair is unaffected.
	require.NoError(t, limiter.CheckLogin(ctx, "other@b.com", "198.51.100.9"))
}

func TestLimiterResetsOnSuccess(t *testing.T) {
	limiter, _ := setupLimiter(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, limiter.RecordFailure(ctx, testEmail, testIP))
	}
	require.ErrorIs(t, limiter.CheckLogin(ctx, testEmail, testIP), rate.ErrRateLimited)

	require.NoError(t, limiter.ResetLogin(ctx, testEmail, testIP))
	require.NoError(t, limiter.CheckLogin(ctx, testEmail, testIP))
}

func TestLimiterCooldownExpires(t *testing.T) {
	limiter, mr := setupLimiter(t, 1, time.Minute)
	ctx := context.Background()

	require.NoError(t, limiter.RecordFailure(ctx, testEmail, testIP))
	require.ErrorIs(t, limiter.CheckLogin(ctx, testEmail, testIP), rate.ErrRateLimited)

	mr.FastForward(time.Minute + time.Second)
	require.NoError(t, limiter.CheckLogin(ctx, testEmail, testIP))
}

func TestLimiterCooldownNotExtendedByLaterFailures(t *testing.T) {
	limiter, mr := setupLimiter(t, 2, time.Minute)
	ctx := context.Background()

	require.NoError(t, limiter.RecordFailure(ctx, testEmail, testIP))
	mr.FastForward(45 * time.Second)
	// ExpireNX keeps the original window: this failure must not restart it.
	require.NoError(t, limiter.RecordFailure(ctx, testEmail, testIP))
	require.ErrorIs(t, limiter.CheckLogin(ctx, testEmail, testIP), rate.ErrRateLimited)

	mr.FastForward(20 * time.Second)
	require.NoError(t, limiter.CheckLogin(ctx, testEmail, testIP))
}

func TestLimiterWithoutIP(t *testing.T) {
	limiter, _ := setupLimiter(t, 1, time.Minute)
	ctx := context.Background()

	require.NoError(t, limiter.RecordFailure(ctx, testEmail, ""))
	require.ErrorIs(t, limiter.CheckLogin(ctx, testEmail, ""), rate.ErrRateLimited)
}

func TestNilLimiterIsNoOp(t *testing.T) {
	var limiter *rate.Limiter
	ctx := context.Background()

	require.NoError(t, limiter.CheckLogin(ctx, testEmail, testIP))
	require.NoError(t, limiter.RecordFailure(ctx, testEmail, testIP))
	require.NoError(t, limiter.ResetLogin(ctx, testEmail, testIP))
}
