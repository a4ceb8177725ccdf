// Package config loads the importer settings from the environment (which
// main populates from .env) and reads and writes finalized mapping files.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	StoreMemory    = "memory"
	StoreMongo     = "mongo"
	StoreSQLServer = "sqlserver"
)

// Config holds all configuration for the application,
// typically loaded from environment variables.
type Config struct {
	Store           string        `env:"IMPORT_STORE" envDefault:"memory"`
	SQLConnString   string        `env:"SQL_CONNECTION_STRING"`
	MongoConnString string        `env:"MONGO_CONNECTION_STRING"`
	MongoDatabase   string        `env:"MONGO_DATABASE" envDefault:"importer"`
	BatchSize       int           `env:"IMPORT_BATCH_SIZE" envDefault:"50"`
	BatchTimeout    time.Duration `env:"IMPORT_BATCH_TIMEOUT" envDefault:"30s"`
	LookupTimeout   time.Duration `env:"IMPORT_LOOKUP_TIMEOUT" envDefault:"10s"`
	RollbackMode    string        `env:"IMPORT_ROLLBACK_MODE" envDefault:"window"`
	LogFile         string        `env:"LOG_FILE" envDefault:"importer.log"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadConfig parses the environment and checks that the selected store has
// its connection string.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	switch c.Store {
	case StoreMemory:
	case StoreMongo:
		if c.MongoConnString == "" {
			return errors.New("MONGO_CONNECTION_STRING environment variable not set")
		}
	case StoreSQLServer:
		if c.SQLConnString == "" {
			return errors.New("SQL_CONNECTION_STRING environment variable not set")
		}
	default:
		return fmt.Errorf("IMPORT_STORE must be memory, mongo or sqlserver, got %q", c.Store)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("IMPORT_BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	switch c.RollbackMode {
	case "window", "tag":
	default:
		return fmt.Errorf("IMPORT_ROLLBACK_MODE must be window or tag, got %q", c.RollbackMode)
	}
	return nil
}

// Debug reports whether LOG_LEVEL asks for debug output.
func (c *Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}
