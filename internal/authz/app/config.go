package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer       string // Optional: issuer claim for session tokens (default: canopy-authz)
	DatabaseFile string // Optional: path to SQLite database file (default: ./canopy.db)

	SessionTTL      time.Duration // Session lifetime from issue or refresh (default: 8h)
	RefreshLead     time.Duration // How long before expiry the background refresh fires (default: 1m)
	GraceWindow     time.Duration // Offline grace window during backend outages (default: 5m)
	RevalidateEvery time.Duration // Minimum spacing between network revalidations (default: 10s)
	RevalidateBurst int           // Revalidation burst allowance (default: 5)

	CacheTTL        time.Duration // Decision cache entry lifetime (default: 5m)
	CacheMaxEntries int           // Decision cache LRU bound (default: 10000)

	LockoutThreshold int           // Failed attempts before lockout (default: 5)
	LockoutWindow    time.Duration // Sliding window for counting failures (default: 15m)
	LockoutDuration  time.Duration // How long a lockout lasts (default: 15m)

	SweepInterval time.Duration // Background sweep interval (default: 1m)

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // Operational HTTP port for /healthz and /metrics (default: 8081)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		Issuer:       getEnvOrDefault("CANOPY_ISSUER", "canopy-authz"),
		DatabaseFile: getEnvOrDefault("CANOPY_DATABASE_FILE", "canopy.db"),

		SessionTTL:      getEnvDurationOrDefault("CANOPY_SESSION_TTL", 8*time.Hour),
		RefreshLead:     getEnvDurationOrDefault("CANOPY_REFRESH_LEAD", time.Minute),
		GraceWindow:     getEnvDurationOrDefault("CANOPY_GRACE_WINDOW", 5*time.Minute),
		RevalidateEvery: getEnvDurationOrDefault("CANOPY_REVALIDATE_EVERY", 10*time.Second),
		RevalidateBurst: getEnvIntOrDefault("CANOPY_REVALIDATE_BURST", 5),

		CacheTTL:        getEnvDurationOrDefault("CANOPY_CACHE_TTL", 5*time.Minute),
		CacheMaxEntries: getEnvIntOrDefault("CANOPY_CACHE_MAX_ENTRIES", 10000),

		LockoutThreshold: getEnvIntOrDefault("CANOPY_LOCKOUT_THRESHOLD", 5),
		LockoutWindow:    getEnvDurationOrDefault("CANOPY_LOCKOUT_WINDOW", 15*time.Minute),
		LockoutDuration:  getEnvDurationOrDefault("CANOPY_LOCKOUT_DURATION", 15*time.Minute),

		SweepInterval: getEnvDurationOrDefault("CANOPY_SWEEP_INTERVAL", time.Minute),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8081),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
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

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are read as minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
