package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer    string // Issuer claim stamped into access tokens (default: authcore)
	JWTSecret string // Required: shared HMAC secret for HS256 signing (min 32 bytes)

	AccessTokenTTL  time.Duration // Fallback access token lifetime when an application sets none (default: 15m)
	RefreshTokenTTL time.Duration // Fallback refresh token lifetime when an application sets none (default: 168h)

	DatabaseFile string // Path to SQLite database file (default: ./authcore.db)
	PepperFile   string // Path to the password hashing pepper file (default: ./pepper)

	CORSCacheTTL      time.Duration // How long cached origin decisions stay fresh (default: 5m)
	FailedLoginLimit  int           // Failed logins per IP before throttling; 0 disables (default: 10)
	FailedLoginWindow time.Duration // Window the failed-login counter looks back over (default: 15m)

	HousekeepingInterval time.Duration // How often expired tokens are purged (default: 1h)
	TokenRetention       time.Duration // How long expired tokens are kept for audit (default: 720h)

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		Issuer:    getEnvOrDefault("AUTHCORE_ISSUER", "authcore"),
		JWTSecret: os.Getenv("AUTHCORE_JWT_SECRET"),

		AccessTokenTTL:  getEnvDurationOrDefault("AUTHCORE_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getEnvDurationOrDefault("AUTHCORE_REFRESH_TOKEN_TTL", 7*24*time.Hour),

		DatabaseFile: getEnvOrDefault("AUTHCORE_DATABASE_FILE", "authcore.db"),
		PepperFile:   getEnvOrDefault("AUTHCORE_PEPPER_FILE", "pepper"),

		CORSCacheTTL:      getEnvDurationOrDefault("AUTHCORE_CORS_CACHE_TTL", 5*time.Minute),
		FailedLoginLimit:  getEnvIntOrDefault("AUTHCORE_FAILED_LOGIN_LIMIT", 10),
		FailedLoginWindow: getEnvDurationOrDefault("AUTHCORE_FAILED_LOGIN_WINDOW", 15*time.Minute),

		HousekeepingInterval: getEnvDurationOrDefault("AUTHCORE_HOUSEKEEPING_INTERVAL", time.Hour),
		TokenRetention:       getEnvDurationOrDefault("AUTHCORE_TOKEN_RETENTION", 30*24*time.Hour),

		Env:                 getEnvOrDefault("AUTHCORE_ENV", "dev"),
		LogLevel:            getEnvOrDefault("AUTHCORE_LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("AUTHCORE_LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("AUTHCORE_PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("AUTHCORE_SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Accept both Go duration syntax ("30m", "1h") and bare minutes.
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
