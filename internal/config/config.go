// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Storage: Postgres when DatabaseURL is set, else SQLite when SQLitePath
	// is set, else in-memory.
	DatabaseURL string
	SQLitePath  string

	// Chain settings
	RPCURL  string
	ChainID string

	// Backend analysis API
	SafeAPIURL string
	SafeAPIKey string

	// Hypernative threat analysis (disabled when ClientID is empty)
	HypernativeAPIURL      string
	HypernativeAuthURL     string
	HypernativeTokenURL    string
	HypernativeClientID    string
	HypernativeRedirectURL string

	// Activity lookups
	ActivityRPS     float64
	ActivityWorkers int

	// Wording table override (YAML)
	DescriptionsFile string

	// Observability
	OTLPEndpoint string

	// Security
	RateLimitRPM int
	CORSOrigins  []string
}

// Mainnet defaults
const (
	DefaultRPCURL              = "https://ethereum-rpc.publicnode.com"
	DefaultChainID             = "1"
	DefaultSafeAPIURL          = "https://safe-client.safe.global"
	DefaultHypernativeAPIURL   = "https://api.hypernative.xyz"
	DefaultHypernativeAuthURL  = "https://app.hypernative.xyz/oauth/authorize"
	DefaultHypernativeTokenURL = "https://api.hypernative.xyz/oauth/token"
	DefaultPort                = "8080"
	DefaultEnv                 = "development"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "json"
	DefaultActivityRPS         = 10
	DefaultActivityWorkers     = 4
	DefaultRateLimit           = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   getEnv("PORT", DefaultPort),
		Env:                    getEnv("ENV", DefaultEnv),
		LogLevel:               getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:              getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		SQLitePath:             os.Getenv("SQLITE_PATH"),
		RPCURL:                 getEnv("RPC_URL", DefaultRPCURL),
		ChainID:                getEnv("CHAIN_ID", DefaultChainID),
		SafeAPIURL:             getEnv("SAFE_API_URL", DefaultSafeAPIURL),
		SafeAPIKey:             os.Getenv("SAFE_API_KEY"),
		HypernativeAPIURL:      getEnv("HYPERNATIVE_API_URL", DefaultHypernativeAPIURL),
		HypernativeAuthURL:     getEnv("HYPERNATIVE_AUTH_URL", DefaultHypernativeAuthURL),
		HypernativeTokenURL:    getEnv("HYPERNATIVE_TOKEN_URL", DefaultHypernativeTokenURL),
		HypernativeClientID:    os.Getenv("HYPERNATIVE_CLIENT_ID"),
		HypernativeRedirectURL: os.Getenv("HYPERNATIVE_REDIRECT_URL"),
		ActivityRPS:            getEnvFloat("ACTIVITY_RPS", DefaultActivityRPS),
		ActivityWorkers:        int(getEnvInt64("ACTIVITY_WORKERS", DefaultActivityWorkers)),
		DescriptionsFile:       os.Getenv("SHIELD_DESCRIPTIONS_FILE"),
		OTLPEndpoint:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM:           int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		CORSOrigins:            getEnvList("CORS_ORIGINS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}

	if _, err := strconv.ParseUint(c.ChainID, 10, 64); err != nil {
		return fmt.Errorf("CHAIN_ID must be a positive integer, got %q", c.ChainID)
	}

	if c.SafeAPIURL == "" {
		return fmt.Errorf("SAFE_API_URL is required")
	}
	if u, err := url.Parse(c.SafeAPIURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("SAFE_API_URL must be an absolute URL")
	}

	if c.HypernativeClientID != "" && c.HypernativeRedirectURL == "" {
		return fmt.Errorf("HYPERNATIVE_REDIRECT_URL is required when HYPERNATIVE_CLIENT_ID is set")
	}

	if c.ActivityRPS <= 0 {
		return fmt.Errorf("ACTIVITY_RPS must be greater than zero")
	}

	return nil
}

// HypernativeEnabled reports whether threat analysis is configured
func (c *Config) HypernativeEnabled() bool {
	return c.HypernativeClientID != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
