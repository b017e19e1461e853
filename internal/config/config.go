package config

import (
	"fmt"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the archive service.
// Environment variables are automatically parsed from the CHATVAULT_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// Store driver: sqlite, postgres, or auto (postgres when a DSN is
	// present, sqlite otherwise)
	StoreDriver string `envconfig:"STORE_DRIVER" default:"auto"`

	// DataDir holds the sqlite database and export files
	DataDir    string `envconfig:"DATA_DIR" default:"./data"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:""`

	// Postgres Configuration
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Log level: trace, debug, info, warn, error
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// ResolveDefaults validates StoreDriver and derives the driver and sqlite
// path when set to "auto" or empty.
func (c *Config) ResolveDefaults() error {
	if c.StoreDriver == "" || c.StoreDriver == "auto" {
		if c.PostgresDSN != "" {
			c.StoreDriver = "postgres"
		} else {
			c.StoreDriver = "sqlite"
		}
	}

	allowed := map[string]bool{"sqlite": true, "postgres": true}
	if !allowed[c.StoreDriver] {
		return fmt.Errorf("unsupported STORE_DRIVER: %s", c.StoreDriver)
	}
	if c.StoreDriver == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("STORE_DRIVER is postgres but POSTGRES_DSN is empty")
	}
	if c.StoreDriver == "sqlite" && c.SQLitePath == "" {
		c.SQLitePath = filepath.Join(c.DataDir, "chatvault.db")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("unsupported LOG_LEVEL: %s", c.LogLevel)
	}
	return nil
}

// New creates a new Config by parsing environment variables.
// Example: CHATVAULT_HTTP_PORT, CHATVAULT_POSTGRES_DSN.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("CHATVAULT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("store_driver", cfg.StoreDriver).
		Str("sqlite_path", cfg.SQLitePath).
		Bool("postgres_dsn_present", cfg.PostgresDSN != "").
		Int("port", cfg.HTTPPort).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	return &Config{
		Environment: EnvTesting,
		StoreDriver: "sqlite",
		DataDir:     ".",
		SQLitePath:  ":memory:",
		HTTPPort:    8080,
		LogLevel:    "info",
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
