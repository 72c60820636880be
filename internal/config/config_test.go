package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if !had {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "CHAIN_ID", "")
	setEnv(t, "RPC_URL", "")
	setEnv(t, "SAFE_API_URL", "")
	setEnv(t, "HYPERNATIVE_CLIENT_ID", "")
	setEnv(t, "ACTIVITY_RPS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultRPCURL, cfg.RPCURL)
	assert.Equal(t, DefaultChainID, cfg.ChainID)
	assert.Equal(t, DefaultSafeAPIURL, cfg.SafeAPIURL)
	assert.Equal(t, float64(DefaultActivityRPS), cfg.ActivityRPS)
	assert.False(t, cfg.HypernativeEnabled())
}

func TestLoad_InvalidChainID(t *testing.T) {
	setEnv(t, "CHAIN_ID", "mainnet")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "CHAIN_ID")
}

func TestLoad_CORSOrigins(t *testing.T) {
	setEnv(t, "CHAIN_ID", "")
	setEnv(t, "CORS_ORIGINS", "https://app.safe.global, ,https://localhost:3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app.safe.global", "https://localhost:3000"}, cfg.CORSOrigins)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			RPCURL:      "https://rpc.example",
			ChainID:     "11155111",
			SafeAPIURL:  "https://safe-client.safe.global",
			ActivityRPS: 5,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing RPC URL", mutate: func(c *Config) { c.RPCURL = "" }, wantErr: "RPC_URL is required"},
		{name: "non-numeric chain", mutate: func(c *Config) { c.ChainID = "eth" }, wantErr: "CHAIN_ID"},
		{name: "missing safe api", mutate: func(c *Config) { c.SafeAPIURL = "" }, wantErr: "SAFE_API_URL is required"},
		{name: "relative safe api", mutate: func(c *Config) { c.SafeAPIURL = "/api" }, wantErr: "absolute URL"},
		{
			name:    "hypernative without redirect",
			mutate:  func(c *Config) { c.HypernativeClientID = "client" },
			wantErr: "HYPERNATIVE_REDIRECT_URL",
		},
		{name: "zero activity rps", mutate: func(c *Config) { c.ActivityRPS = 0 }, wantErr: "ACTIVITY_RPS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvNumbers(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_FLOAT", "2.5")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
	assert.Equal(t, 2.5, getEnvFloat("TEST_FLOAT", 0))
	assert.Equal(t, 1.0, getEnvFloat("TEST_INVALID", 1))
}
