package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	JWT       JWTConfig
	Log       LogConfig
	Credits   CreditsConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	NameGen   NameGenConfig
	Debug     bool
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	MigrationsPath string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type LogConfig struct {
	Level  string
	Format string
}

// CreditsConfig controls the ledger and the remote settlement round trip.
type CreditsConfig struct {
	FreeGrantAmount   int
	MinAccountAge     time.Duration
	SettlementURL     string
	SettlementAPIKey  string
	SettlementTimeout time.Duration
	MaxRetries        int
}

// CacheConfig holds per-artifact-type TTLs. Enabled=false turns every
// lookup into a miss and every store into a no-op.
type CacheConfig struct {
	Enabled        bool
	ContentTTL     time.Duration
	ContextTTL     time.Duration
	SuggestionsTTL time.Duration
}

// RateLimitConfig holds fixed-window limits per operation.
type RateLimitConfig struct {
	SingleMax    int
	SingleWindow time.Duration
	BulkMax      int
	BulkWindow   time.Duration
	// ExemptAdmins skips limiting for admin tokens; honored only when
	// Config.Debug is set.
	ExemptAdmins bool
}

type NameGenConfig struct {
	URL              string
	APIKey           string
	Timeout          time.Duration
	MaxRetries       int
	DefaultSuggested int
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:           k.String("db.host"),
			Port:           k.Int("db.port"),
			User:           k.String("db.user"),
			Password:       k.String("db.password"),
			Name:           k.String("db.name"),
			SSLMode:        k.String("db.sslmode"),
			MaxConns:       int32(k.Int("db.max.conns")),
			MigrationsPath: k.String("db.migrations.path"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		JWT: JWTConfig{
			Secret: k.String("jwt.secret"),
			Issuer: k.String("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
		Credits: CreditsConfig{
			FreeGrantAmount:  k.Int("credits.free.grant"),
			SettlementURL:    k.String("credits.settlement.url"),
			SettlementAPIKey: k.String("credits.settlement.api.key"),
			MaxRetries:       k.Int("credits.settlement.max.retries"),
		},
		Cache: CacheConfig{
			Enabled: true,
		},
		RateLimit: RateLimitConfig{
			SingleMax:    k.Int("ratelimit.single.max"),
			BulkMax:      k.Int("ratelimit.bulk.max"),
			ExemptAdmins: k.Bool("ratelimit.exempt.admins"),
		},
		NameGen: NameGenConfig{
			URL:              k.String("namegen.url"),
			APIKey:           k.String("namegen.api.key"),
			MaxRetries:       k.Int("namegen.max.retries"),
			DefaultSuggested: k.Int("namegen.default.count"),
		},
		Debug: k.Bool("debug"),
	}

	if k.Exists("cache.enabled") {
		cfg.Cache.Enabled = k.Bool("cache.enabled")
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "medianamer"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "medianamer"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "medianamer"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Credits.FreeGrantAmount == 0 {
		cfg.Credits.FreeGrantAmount = 10
	}
	if cfg.Credits.MaxRetries == 0 {
		cfg.Credits.MaxRetries = 3
	}
	if cfg.RateLimit.SingleMax == 0 {
		cfg.RateLimit.SingleMax = 10
	}
	if cfg.RateLimit.BulkMax == 0 {
		cfg.RateLimit.BulkMax = 3
	}
	if cfg.NameGen.MaxRetries == 0 {
		cfg.NameGen.MaxRetries = 2
	}
	if cfg.NameGen.DefaultSuggested == 0 {
		cfg.NameGen.DefaultSuggested = 3
	}

	// Parse durations
	if cfg.Credits.MinAccountAge, err = parseDuration(k, "credits.min.account.age", "24h"); err != nil {
		return nil, err
	}
	if cfg.Credits.SettlementTimeout, err = parseDuration(k, "credits.settlement.timeout", "10s"); err != nil {
		return nil, err
	}
	if cfg.Cache.ContentTTL, err = parseDuration(k, "cache.content.ttl", "24h"); err != nil {
		return nil, err
	}
	if cfg.Cache.ContextTTL, err = parseDuration(k, "cache.context.ttl", "6h"); err != nil {
		return nil, err
	}
	if cfg.Cache.SuggestionsTTL, err = parseDuration(k, "cache.suggestions.ttl", "1h"); err != nil {
		return nil, err
	}
	if cfg.RateLimit.SingleWindow, err = parseDuration(k, "ratelimit.single.window", "300s"); err != nil {
		return nil, err
	}
	if cfg.RateLimit.BulkWindow, err = parseDuration(k, "ratelimit.bulk.window", "600s"); err != nil {
		return nil, err
	}
	if cfg.NameGen.Timeout, err = parseDuration(k, "namegen.timeout", "30s"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseDuration(k *koanf.Koanf, key, fallback string) (time.Duration, error) {
	s := k.String(key)
	if s == "" {
		s = fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}
