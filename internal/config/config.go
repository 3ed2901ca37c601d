// Package config holds the runtime configuration for the Parley API.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is parsed from the environment once at startup and passed explicitly
// to every component that needs it.
type Config struct {
	Addr  string `env:"PARLEY_ADDR" envDefault:":8080"`
	PGDSN string `env:"PARLEY_PG_DSN"`

	AuthSecret string        `env:"PARLEY_AUTH_SECRET"`
	TokenTTL   time.Duration `env:"PARLEY_TOKEN_TTL" envDefault:"15m"`

	MaxMessageBytes int           `env:"PARLEY_MAX_MESSAGE_BYTES" envDefault:"4096"`
	WSIdleTimeout   time.Duration `env:"PARLEY_WS_IDLE_TIMEOUT" envDefault:"60s"`
	WSWriteTimeout  time.Duration `env:"PARLEY_WS_WRITE_TIMEOUT" envDefault:"10s"`

	RateBurst  int `env:"PARLEY_RATE_BURST" envDefault:"20"`
	RatePerSec int `env:"PARLEY_RATE_PER_SEC" envDefault:"10"`

	AllowedOrigins []string `env:"PARLEY_ALLOWED_ORIGINS" envSeparator:","`

	HistoryLimit int `env:"PARLEY_HISTORY_LIMIT" envDefault:"200"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	if c.AuthSecret == "" {
		return errors.New("PARLEY_AUTH_SECRET is required")
	}
	if c.TokenTTL <= 0 {
		return errors.New("token TTL must be positive")
	}
	if c.MaxMessageBytes <= 0 {
		return errors.New("max message size must be positive")
	}
	if c.WSIdleTimeout <= 0 || c.WSWriteTimeout <= 0 {
		return errors.New("websocket timeouts must be positive")
	}
	if c.RateBurst <= 0 || c.RatePerSec <= 0 {
		return errors.New("rate limits must be positive")
	}
	if c.HistoryLimit <= 0 {
		return errors.New("history limit must be positive")
	}
	return nil
}
