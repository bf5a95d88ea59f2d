// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// LLM settings
	OpenAIAPIKey    string
	AnthropicAPIKey string
	PrimaryProvider string
	EnableFallback  bool
	CompletionModel string

	// Catalog search settings
	CatalogSearchURL string
	CatalogSearchKey string

	// Durable store settings; empty DSN selects the in-process store.
	StoreDSN string

	// NATS settings; empty URL disables the event feed.
	NATSURL   string
	NATSToken string

	// Orchestration settings
	TurnDelay     time.Duration
	FlushInterval int
	IdleThreshold time.Duration
	ReaperPeriod  time.Duration

	// Auth settings
	AuthRequired bool
	JWTSecret    string
	AdminKey     string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// LLM
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		PrimaryProvider: getEnv("AI_PROVIDER", "openai"),
		EnableFallback:  getBoolEnv("ENABLE_FALLBACK", true),
		CompletionModel: getEnv("COMPLETION_MODEL", ""),

		// Catalog search
		CatalogSearchURL: getEnv("CATALOG_SEARCH_URL", ""),
		CatalogSearchKey: getEnv("CATALOG_SEARCH_KEY", ""),

		// Store
		StoreDSN: getEnv("STORE_DSN", ""),

		// NATS
		NATSURL:   getEnv("NATS_URL", ""),
		NATSToken: getEnv("NATS_TOKEN", ""),

		// Orchestration
		TurnDelay:     getDurationEnv("TURN_DELAY", 4*time.Second),
		FlushInterval: getIntEnv("FLUSH_INTERVAL", 5),
		IdleThreshold: getDurationEnv("IDLE_THRESHOLD", 30*time.Minute),
		ReaperPeriod:  getDurationEnv("REAPER_PERIOD", 5*time.Minute),

		// Auth
		AuthRequired: getBoolEnv("AUTH_REQUIRED", false),
		JWTSecret:    getEnv("JWT_SECRET", "development-secret-change-in-production"),
		AdminKey:     getEnv("ADMIN_KEY", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
