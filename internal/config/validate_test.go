package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		DB:     DBConfig{Host: "localhost", Port: 5432, User: "m", Password: "secret", Name: "m"},
		Redis:  RedisConfig{Host: "localhost", Port: 6379},
		JWT:    JWTConfig{Secret: strings.Repeat("s", 32), Issuer: "medianamer"},
		Credits: CreditsConfig{
			FreeGrantAmount:  10,
			MinAccountAge:    24 * time.Hour,
			SettlementURL:    "https://settle.example.com",
			SettlementAPIKey: "key",
			MaxRetries:       3,
		},
		RateLimit: RateLimitConfig{
			SingleMax: 10, SingleWindow: 300 * time.Second,
			BulkMax: 3, BulkWindow: 600 * time.Second,
		},
		NameGen: NameGenConfig{URL: "https://names.example.com", APIKey: "key", MaxRetries: 2, DefaultSuggested: 3},
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_ShortJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.Secret = "short"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestValidate_MissingSettlement(t *testing.T) {
	cfg := validConfig()
	cfg.Credits.SettlementURL = ""
	cfg.Credits.SettlementAPIKey = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CREDITS_SETTLEMENT_URL")
	assert.Contains(t, err.Error(), "CREDITS_SETTLEMENT_API_KEY")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	cfg.Server.Port = 0
	cfg.RateLimit.SingleMax = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PASSWORD")
	assert.Contains(t, err.Error(), "SERVER_PORT")
	assert.Contains(t, err.Error(), "rate limit maximums")
}

func TestValidate_BadWindows(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.BulkWindow = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "windows must be positive")
}
