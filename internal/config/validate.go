package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	if len(c.JWT.Secret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 characters")
	}

	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Remote collaborators
	if c.Credits.SettlementURL == "" {
		errs = append(errs, "CREDITS_SETTLEMENT_URL is required")
	}
	if c.Credits.SettlementAPIKey == "" {
		errs = append(errs, "CREDITS_SETTLEMENT_API_KEY is required")
	}
	if c.NameGen.URL == "" {
		errs = append(errs, "NAMEGEN_URL is required")
	}
	if c.NameGen.APIKey == "" {
		errs = append(errs, "NAMEGEN_API_KEY is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	// Bounds that would otherwise disable whole subsystems
	if c.Credits.FreeGrantAmount < 0 {
		errs = append(errs, "CREDITS_FREE_GRANT must not be negative")
	}
	if c.Credits.MaxRetries < 1 {
		errs = append(errs, "CREDITS_SETTLEMENT_MAX_RETRIES must be at least 1")
	}
	if c.RateLimit.SingleMax < 1 || c.RateLimit.BulkMax < 1 {
		errs = append(errs, "rate limit maximums must be at least 1")
	}
	if c.RateLimit.SingleWindow <= 0 || c.RateLimit.BulkWindow <= 0 {
		errs = append(errs, "rate limit windows must be positive")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
