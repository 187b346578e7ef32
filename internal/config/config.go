// Package config provides configuration management for onboardd.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Defaults.
const (
	DefaultPort               = 8090
	DefaultStorageDriver      = "sqlite"
	DefaultSQLitePath         = "onboard.db"
	DefaultMaxConns           = 4
	DefaultProvidersConfig    = "providers.yaml"
	DefaultLogLevel           = "info"
	DefaultHistoryTokenBudget = 4000
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all server settings. Values come from the environment; a
// .env file loaded by the entrypoint feeds the same variables in dev.
type Config struct {
	Port          int    // ONBOARD_PORT
	StorageDriver string // ONBOARD_STORAGE_DRIVER: sqlite or postgres
	DatabaseURL   string // ONBOARD_DATABASE_URL (postgres DSN)
	SQLitePath    string // ONBOARD_SQLITE_PATH
	MaxConns      int    // ONBOARD_MAX_CONNS

	ProvidersConfig    string // ONBOARD_PROVIDERS_CONFIG (yaml path)
	HistoryTokenBudget int    // ONBOARD_HISTORY_TOKEN_BUDGET

	LogLevel     string   // ONBOARD_LOG_LEVEL
	AllowOrigins []string // ONBOARD_ALLOW_ORIGINS (comma separated)
}

var (
	cached   *Config
	cachedMu sync.Mutex
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:               DefaultPort,
		StorageDriver:      DefaultStorageDriver,
		SQLitePath:         DefaultSQLitePath,
		MaxConns:           DefaultMaxConns,
		ProvidersConfig:    DefaultProvidersConfig,
		HistoryTokenBudget: DefaultHistoryTokenBudget,
		LogLevel:           DefaultLogLevel,
		AllowOrigins:       []string{"*"},
	}
}

// Load builds the configuration from defaults overlaid with environment
// variables. Malformed numeric values are ignored rather than fatal.
func Load() (*Config, error) {
	cfg := Default()

	if v, ok := envInt("ONBOARD_PORT"); ok {
		cfg.Port = v
	}
	if v := os.Getenv("ONBOARD_STORAGE_DRIVER"); v != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("ONBOARD_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("ONBOARD_SQLITE_PATH"); v != "" {
		cfg.SQLitePath = v
	}
	if v, ok := envInt("ONBOARD_MAX_CONNS"); ok {
		cfg.MaxConns = v
	}
	if v := os.Getenv("ONBOARD_PROVIDERS_CONFIG"); v != "" {
		cfg.ProvidersConfig = v
	}
	if v, ok := envInt("ONBOARD_HISTORY_TOKEN_BUDGET"); ok {
		cfg.HistoryTokenBudget = v
	}
	if v := os.Getenv("ONBOARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("ONBOARD_ALLOW_ORIGINS"); v != "" {
		cfg.AllowOrigins = splitTrim(v)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	switch c.StorageDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("config: sqlite driver requires ONBOARD_SQLITE_PATH")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: postgres driver requires ONBOARD_DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.StorageDriver)
	}
	return nil
}

// Get returns the cached configuration, loading it on first use. A load
// error falls back to defaults so callers always get a usable value.
func Get() *Config {
	cachedMu.Lock()
	defer cachedMu.Unlock()
	if cached == nil {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		cached = cfg
	}
	return cached
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// splitTrim splits a comma separated list, trimming whitespace and dropping
// empty entries.
func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
