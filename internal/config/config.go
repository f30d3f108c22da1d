package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"chargecast-service/internal/pkg/apns"
	"chargecast-service/internal/service/provider"
)

type AppConfig struct {
	// Server
	HTTPAddr  string
	RedisAddr string
	RedisPass string

	// SessionBackend selects the store: "redis" for multi-instance
	// deployments, "memory" for a single process.
	SessionBackend string

	// RelaySecret guards the lifecycle and scheduler endpoints.
	RelaySecret string

	// Reconciliation
	StaleAfter    time.Duration
	MaxConcurrent int64

	// Channels
	APNS     apns.Config
	Provider provider.Config
}

// Load loads environment variables into AppConfig.
func Load() AppConfig {
	return AppConfig{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8000"),
		RedisAddr: getEnv("REDIS_ADDR", ""),
		RedisPass: getEnv("REDIS_PASS", ""),

		SessionBackend: strings.ToLower(getEnv("SESSION_BACKEND", "memory")),
		RelaySecret:    getEnv("RELAY_SECRET", ""),

		StaleAfter:    getEnvDuration("SESSION_STALE_AFTER", 10*time.Minute),
		MaxConcurrent: getEnvInt64("RECONCILE_MAX_CONCURRENT", 8),

		APNS: apns.Config{
			KeyPEM:  getEnv("APNS_PRIVATE_KEY", ""),
			KeyID:   getEnv("APNS_KEY_ID", ""),
			TeamID:  getEnv("APNS_TEAM_ID", ""),
			Topic:   getEnv("APNS_TOPIC", ""),
			Sandbox: strings.ToLower(getEnv("APNS_SANDBOX", "false")) == "true",
		},

		Provider: provider.Config{
			BaseURL: getEnv("PROVIDER_BASE_URL", ""),
			AppID:   getEnv("PROVIDER_APP_ID", ""),
			APIKey:  getEnv("PROVIDER_API_KEY", ""),
		},
	}
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
