package config_test

import (
	"testing"
	"time"

	"github.com/stockpilot/auth-service/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := config.New()

	require.Equal(t, ":8080", cfg.GetPort())
	require.Equal(t, "StockPilot Auth", cfg.GetAppName())
	require.Equal(t, "DEV", cfg.GetEnv())
	require.Empty(t, cfg.GetDatabaseURL())
	require.Empty(t, cfg.GetRedisAddr())
	require.Equal(t, "http://localhost:5173", cfg.GetClientOrigin())
	require.Equal(t, 15*time.Minute, cfg.GetAccessTokenExpiry())
	require.Equal(t, 7*24*time.Hour, cfg.GetRefreshTokenExpiry())
	require.Equal(t, 12, cfg.GetBcryptCost())
	require.Equal(t, 10, cfg.GetMaxLoginAttempts())
	require.Equal(t, 15*time.Minute, cfg.GetLoginCooldown())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("JWT_ACCESS_SECRET", "s1")
	t.Setenv("JWT_REFRESH_SECRET", "s2")
	t.Setenv("ACCESS_TOKEN_EXPIRES", "5m")
	t.Setenv("BCRYPT_COST", "10")

	cfg := config.New()

	require.Equal(t, ":9090", cfg.GetPort())
	require.Equal(t, "production", cfg.GetEnv())
	require.Equal(t, "s1", cfg.GetAccessTokenSecret())
	require.Equal(t, "s2", cfg.GetRefreshTokenSecret())
	require.Equal(t, 5*time.Minute, cfg.GetAccessTokenExpiry())
	require.Equal(t, 10, cfg.GetBcryptCost())
}

func TestPortKeepsExistingColon(t *testing.T) {
	t.Setenv("PORT", ":7000")
	require.Equal(t, ":7000", config.New().GetPort())
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_EXPIRES", "not-a-duration")
	t.Setenv("BCRYPT_COST", "99") // out of bcrypt's range

	cfg := config.New()

	require.Equal(t, 15*time.Minute, cfg.GetAccessTokenExpiry())
	require.Equal(t, 12, cfg.GetBcryptCost())
}
