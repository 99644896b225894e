package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all runtime settings, parsed from the environment.
type Config struct {
	Env          string        `env:"ENV" envDefault:"development"`
	Port         string        `env:"PORT" envDefault:"8080"`
	Debug        bool          `env:"DEBUG"`
	DatabasePath string        `env:"DATABASE_PATH" envDefault:"tradesim.db"`
	JWTSecret    string        `env:"JWT_SECRET" envDefault:"tradesim-secret-key"`
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	StartingCash string        `env:"STARTING_CASH" envDefault:"10000.00"`

	// Quote provider. With no API URL configured the server falls back to
	// the built-in static quote table (local development).
	QuoteAPIURL   string        `env:"QUOTE_API_URL"`
	QuoteAPIKey   string        `env:"QUOTE_API_KEY"`
	QuoteCacheTTL time.Duration `env:"QUOTE_CACHE_TTL" envDefault:"5m"`

	// Optional Redis quote cache; empty address disables caching.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
}

// Load reads a .env file when present, then parses the environment.
func Load() (*Config, error) {
	// Best effort: a missing .env file is not an error
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if _, err := decimal.NewFromString(cfg.StartingCash); err != nil {
		return nil, fmt.Errorf("invalid STARTING_CASH %q: %w", cfg.StartingCash, err)
	}

	return cfg, nil
}

// StartingCashAmount returns the validated starting cash grant.
func (c *Config) StartingCashAmount() decimal.Decimal {
	return decimal.RequireFromString(c.StartingCash)
}

// Production reports whether the server runs in production mode.
func (c *Config) Production() bool {
	return c.Env == "production"
}
