package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetDatabaseURL() string
	GetRedisAddr() string
}

type CorsConfig interface {
	GetClientOrigin() string
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type TokenConfig interface {
	GetAccessTokenSecret() string
	GetRefreshTokenSecret() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
}

type SecurityConfig interface {
	GetBcryptCost() int
	GetMaxLoginAttempts() int
	GetLoginCooldown() time.Duration
}

type mainConfig struct {
	v *viper.Viper
}

var _ Config = mainConfig{}

// New loads configuration from an optional .env file plus the environment.
// A missing .env is not an error; env vars always win.
func New() Config {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_NAME", "StockPilot Auth")
	v.SetDefault("ENV", "DEV")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("CLIENT_ORIGIN", "http://localhost:5173")
	v.SetDefault("JWT_ACCESS_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_EXPIRES", "15m")
	v.SetDefault("REFRESH_TOKEN_EXPIRES", "168h") // 7 days
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("MAX_LOGIN_ATTEMPTS", 10)
	v.SetDefault("LOGIN_COOLDOWN", "15m")

	return mainConfig{v: v}
}

func (c mainConfig) GetPort() string {
	port := c.v.GetString("PORT")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (c mainConfig) GetAppName() string {
	return c.v.GetString("APP_NAME")
}

func (c mainConfig) GetEnv() string {
	return c.v.GetString("ENV")
}

func (c mainConfig) GetDatabaseURL() string {
	return c.v.GetString("DATABASE_URL")
}

func (c mainConfig) GetRedisAddr() string {
	return c.v.GetString("REDIS_ADDR")
}

func (c mainConfig) GetClientOrigin() string {
	return c.v.GetString("CLIENT_ORIGIN")
}

func (c mainConfig) GetAllowedMethods() string {
	return "GET, POST, PUT, PATCH, DELETE"
}

func (c mainConfig) GetAllowedHeaders() string {
	return "Content-Type, Authorization"
}

func (c mainConfig) GetAccessTokenSecret() string {
	return c.v.GetString("JWT_ACCESS_SECRET")
}

func (c mainConfig) GetRefreshTokenSecret() string {
	return c.v.GetString("JWT_REFRESH_SECRET")
}

func (c mainConfig) GetAccessTokenExpiry() time.Duration {
	return durationOrDefault(c.v.GetString("ACCESS_TOKEN_EXPIRES"), 15*time.Minute)
}

func (c mainConfig) GetRefreshTokenExpiry() time.Duration {
	return durationOrDefault(c.v.GetString("REFRESH_TOKEN_EXPIRES"), 7*24*time.Hour)
}

func (c mainConfig) GetBcryptCost() int {
	cost := c.v.GetInt("BCRYPT_COST")
	if cost < 4 || cost > 31 {
		return 12
	}
	return cost
}

func (c mainConfig) GetMaxLoginAttempts() int {
	return c.v.GetInt("MAX_LOGIN_ATTEMPTS")
}

func (c mainConfig) GetLoginCooldown() time.Duration {
	return durationOrDefault(c.v.GetString("LOGIN_COOLDOWN"), 15*time.Minute)
}

func durationOrDefault(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
