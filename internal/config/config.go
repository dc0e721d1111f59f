package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	Env      string

	PGDSN string

	RedisAddr     string
	RedisDB       int
	RedisPassword string

	JWTSecret string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	RoleCacheTTL    time.Duration

	RefreshCookieName string
}

// Load builds Config from environment with sensible defaults. The signing
// secret has no default on purpose; an empty value fails at startup when the
// token issuer is constructed.
func Load() *Config {
	return &Config{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		Env:               getEnv("APP_ENV", "development"),
		PGDSN:             os.Getenv("PG_DSN"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		JWTSecret:         os.Getenv("AUTH_JWT_SECRET"),
		AccessTokenTTL:    time.Duration(getEnvInt("AUTH_ACCESS_TTL_MIN", 15)) * time.Minute,
		RefreshTokenTTL:   time.Duration(getEnvInt("AUTH_REFRESH_TTL_DAYS", 7)) * 24 * time.Hour,
		RoleCacheTTL:      time.Duration(getEnvInt("AUTH_ROLE_CACHE_TTL_MIN", 5)) * time.Minute,
		RefreshCookieName: getEnv("AUTH_REFRESH_COOKIE", "refreshToken"),
	}
}

// Production reports whether the service runs with production hardening
// (Secure cookies, strict origins).
func (c *Config) Production() bool {
	return c.Env == "production"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}
