package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"

	"github.com/efreitasn/tradeescrow/internal/auth"
	"github.com/efreitasn/tradeescrow/internal/domain"
	"github.com/efreitasn/tradeescrow/internal/kv"
)

// Config holds all runtime configuration for the escrow service.
type Config struct {
	Port            int           `envconfig:"PORT" default:"8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"5s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	WebhookTimeout  time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"5s"`

	// Marketplace settings. Only applied the first time a ledger is opened.
	FeeRateBps    uint32 `envconfig:"MARKETPLACE_FEE_RATE" default:"25"`
	Treasury      string `envconfig:"PLATFORM_TREASURY"`
	Owner         string `envconfig:"MARKETPLACE_OWNER"`
	VLEIValidator string `envconfig:"VLEI_VALIDATOR"`

	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"memory"`
	BoltPath       string `envconfig:"BOLT_PATH" default:"data/escrow.db"`
	RedisURL       string `envconfig:"REDIS_URL"`
	RedisPrefix    string `envconfig:"REDIS_PREFIX" default:"escrow"`

	JWTSecret string        `envconfig:"JWT_SECRET"`
	JWTIssuer string        `envconfig:"JWT_ISSUER" default:"tradeescrow"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"1h"`
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. Every invalid value is reported, not just the first.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks semantic constraints envconfig cannot express.
func (c *Config) Validate() error {
	var err error

	if c.Port < 1 || c.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("invalid PORT: %d, must be between 1 and 65535", c.Port))
	}
	if !isValidLogLevel(c.LogLevel) {
		err = multierr.Append(err, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", c.LogLevel))
	}
	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"READ_TIMEOUT", c.ReadTimeout},
		{"WRITE_TIMEOUT", c.WriteTimeout},
		{"IDLE_TIMEOUT", c.IdleTimeout},
		{"SHUTDOWN_TIMEOUT", c.ShutdownTimeout},
		{"WEBHOOK_TIMEOUT", c.WebhookTimeout},
		{"JWT_TTL", c.JWTTTL},
	} {
		if d.val <= 0 {
			err = multierr.Append(err, fmt.Errorf("invalid %s: %v, must be positive", d.key, d.val))
		}
	}

	if c.FeeRateBps > domain.MaxFeeRateBps {
		err = multierr.Append(err, fmt.Errorf("invalid MARKETPLACE_FEE_RATE: %d, must be at most %d", c.FeeRateBps, domain.MaxFeeRateBps))
	}
	if c.Treasury == "" {
		err = multierr.Append(err, fmt.Errorf("PLATFORM_TREASURY is required"))
	}
	if c.Owner == "" {
		err = multierr.Append(err, fmt.Errorf("MARKETPLACE_OWNER is required"))
	}

	switch c.StorageBackend {
	case kv.BackendMemory:
	case kv.BackendBolt:
		if c.BoltPath == "" {
			err = multierr.Append(err, fmt.Errorf("BOLT_PATH is required for the bolt backend"))
		}
	case kv.BackendRedis:
		if c.RedisURL == "" {
			err = multierr.Append(err, fmt.Errorf("REDIS_URL is required for the redis backend"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("invalid STORAGE_BACKEND: %q, must be one of: memory, bolt, redis", c.StorageBackend))
	}

	if c.JWTSecret == "" {
		err = multierr.Append(err, fmt.Errorf("JWT_SECRET is required"))
	}
	return err
}

// Settings returns the marketplace settings used to bootstrap a new ledger.
func (c *Config) Settings() domain.Settings {
	return domain.Settings{
		FeeRateBps: c.FeeRateBps,
		Treasury:   domain.Identity(c.Treasury),
		Owner:      domain.Identity(c.Owner),
	}
}

// KVOptions returns the storage backend selection.
func (c *Config) KVOptions() kv.Options {
	return kv.Options{
		Backend:     c.StorageBackend,
		BoltPath:    c.BoltPath,
		RedisURL:    c.RedisURL,
		RedisPrefix: c.RedisPrefix,
	}
}

// TokenConfig returns the bearer-token parameters.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret: c.JWTSecret,
		Issuer: c.JWTIssuer,
		TTL:    c.JWTTTL,
	}
}

// SlogLevel maps LogLevel to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
