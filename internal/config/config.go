// Package config loads signalbus's runtime tunables from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds the engine and store tunables described in spec §4.A and
// §4.E. A zero value for any of the *Override fields means "derive from
// detected CPU count / use the spec default" — see internal/platform and
// cmd/busdemo, which applies that derivation before building the engine.
//
// Tags:
//
//	env: environment variable name
//	envDefault: default if unset
type Config struct {
	// Store capacity. Default per spec §4.A is 5000.
	StoreCapacity int `env:"BUS_STORE_CAPACITY" envDefault:"5000"`

	// Worker pool tunables, spec §4.E. 0 means derive from CPU count.
	MaxWorkersOverride     int           `env:"BUS_MAX_WORKERS"`
	MaxIdleWorkersOverride int           `env:"BUS_MAX_IDLE_WORKERS"`
	IdleCheckInterval      time.Duration `env:"BUS_IDLE_CHECK_INTERVAL" envDefault:"5s"`

	// Default per-subscription batch cap when a caller doesn't specify one.
	DefaultMaxMessages int `env:"BUS_DEFAULT_MAX_MESSAGES" envDefault:"256"`

	// Metrics / logging
	MetricsAddr string `env:"BUS_METRICS_ADDR" envDefault:":9105"`
	LogLevel    string `env:"BUS_LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"BUS_LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from an optional .env file and then the process
// environment. Priority: real env vars > .env file > struct defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration for out-of-range values.
func (c *Config) Validate() error {
	if c.StoreCapacity < 1 {
		return fmt.Errorf("BUS_STORE_CAPACITY must be > 0, got %d", c.StoreCapacity)
	}
	if c.MaxWorkersOverride < 0 {
		return fmt.Errorf("BUS_MAX_WORKERS must be >= 0, got %d", c.MaxWorkersOverride)
	}
	if c.MaxIdleWorkersOverride < 0 {
		return fmt.Errorf("BUS_MAX_IDLE_WORKERS must be >= 0, got %d", c.MaxIdleWorkersOverride)
	}
	if c.IdleCheckInterval <= 0 {
		return fmt.Errorf("BUS_IDLE_CHECK_INTERVAL must be > 0, got %s", c.IdleCheckInterval)
	}
	if c.DefaultMaxMessages < 1 {
		return fmt.Errorf("BUS_DEFAULT_MAX_MESSAGES must be > 0, got %d", c.DefaultMaxMessages)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("BUS_LOG_LEVEL must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}

	validFormats := map[string]bool{"json": true, "pretty": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("BUS_LOG_FORMAT must be one of json, pretty (got %q)", c.LogFormat)
	}

	return nil
}
