// Package config loads propenrich configuration: struct defaults, then an
// optional YAML file, then environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Driver constants
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// PathEnvVar names the environment variable that points at a config file.
const PathEnvVar = "PROPENRICH_CONFIG"

// DefaultPaths are tried in order when PathEnvVar is unset.
var DefaultPaths = []string{"propenrich.yaml", "propenrich.yml"}

// Config is the complete configuration.
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Lookup    LookupConfig    `koanf:"lookup"`
	Reconcile ReconcileConfig `koanf:"reconcile"`
	Listings  ListingsConfig  `koanf:"listings"`
	Logging   LoggingConfig   `koanf:"logging"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// DatabaseConfig selects the store. Driver is inferred from PostgresDSN when unset.
type DatabaseConfig struct {
	Driver      string `koanf:"driver"`
	SQLitePath  string `koanf:"sqlite_path"` // empty uses ~/.propenrich/propenrich.db
	PostgresDSN string `koanf:"postgres_dsn"`
	MaxConns    int32  `koanf:"max_conns"`
}

// LookupConfig configures the external owner lookup API.
type LookupConfig struct {
	Enabled         bool          `koanf:"enabled"`
	APIKey          string        `koanf:"api_key"`
	BaseURL         string        `koanf:"base_url"`
	Timeout         time.Duration `koanf:"timeout"`
	DailyCap        int           `koanf:"daily_cap"`
	BatchSize       int           `koanf:"batch_size"`
	RatePerSecond   float64       `koanf:"rate_per_second"`
	Burst           int           `koanf:"burst"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown"`
}

// ReconcileConfig tunes the batch reconciliation jobs.
type ReconcileConfig struct {
	PageSize   int           `koanf:"page_size"`
	StuckAfter time.Duration `koanf:"stuck_after"`
	Workers    int           `koanf:"workers"`
}

// ListingsConfig points at an optional listing table registry.
type ListingsConfig struct {
	RegistryPath string `koanf:"registry_path"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxConns: 4,
		},
		Lookup: LookupConfig{
			Enabled:         false,
			BaseURL:         "https://api.batchdata.com/api/v1/property/skip-trace",
			Timeout:         15 * time.Second,
			DailyCap:        50,
			BatchSize:       2,
			RatePerSecond:   1,
			Burst:           1,
			BreakerFailures: 5,
			BreakerCooldown: 2 * time.Minute,
		},
		Reconcile: ReconcileConfig{
			PageSize:   1000,
			StuckAfter: time.Hour,
			Workers:    4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// envMappings maps environment variable names (lowercased) to config keys.
var envMappings = map[string]string{
	"propenrich_db_driver":    "database.driver",
	"propenrich_sqlite_path":  "database.sqlite_path",
	"supabase_db_url":         "database.postgres_dsn",
	"database_url":            "database.postgres_dsn",
	"propenrich_db_max_conns": "database.max_conns",

	"batchdata_enabled":     "lookup.enabled",
	"batchdata_api_key":     "lookup.api_key",
	"batchdata_base_url":    "lookup.base_url",
	"batchdata_timeout":     "lookup.timeout",
	"batchdata_daily_limit": "lookup.daily_cap",
	"batchdata_batch_size":  "lookup.batch_size",
	"batchdata_rate":        "lookup.rate_per_second",

	"propenrich_page_size":   "reconcile.page_size",
	"propenrich_stuck_after": "reconcile.stuck_after",
	"propenrich_registry":    "listings.registry_path",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"propenrich_metrics_textfile": "metrics.textfile",
}

func envTransform(key string) string {
	return envMappings[strings.ToLower(key)]
}

// Load builds configuration from defaults, the config file at path (or the
// first default path found when path is empty) and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverSQLite
		if cfg.Database.PostgresDSN != "" {
			cfg.Database.Driver = DriverPostgres
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Validate checks values that would otherwise fail later and less clearly.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("database.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}

	if c.Lookup.DailyCap < 0 {
		return fmt.Errorf("lookup.daily_cap must not be negative")
	}
	if c.Lookup.BatchSize < 1 {
		return fmt.Errorf("lookup.batch_size must be at least 1")
	}
	if c.Lookup.Timeout <= 0 {
		return fmt.Errorf("lookup.timeout must be positive")
	}
	if c.Lookup.RatePerSecond <= 0 {
		return fmt.Errorf("lookup.rate_per_second must be positive")
	}
	if c.Lookup.Burst < 1 {
		return fmt.Errorf("lookup.burst must be at least 1")
	}
	if c.Reconcile.PageSize < 1 {
		return fmt.Errorf("reconcile.page_size must be at least 1")
	}
	if c.Reconcile.Workers < 1 {
		return fmt.Errorf("reconcile.workers must be at least 1")
	}
	return nil
}

// LookupReady reports whether the worker may call the external API, and why not.
func (c *Config) LookupReady() (bool, string) {
	if !c.Lookup.Enabled {
		return false, "lookup disabled"
	}
	if c.Lookup.APIKey == "" {
		return false, "lookup api key missing"
	}
	return true, ""
}
