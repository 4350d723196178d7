// Package config loads layered TOML configuration: base file, environment
// overlay, then OCB_* environment variable overrides.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/Rootly-AI-Labs/on-call-burnout-detector/pkg/database"
	"github.com/Rootly-AI-Labs/on-call-burnout-detector/pkg/pagination"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvOcbEnv     = "OCB_ENV"
	EnvOcbVersion = "OCB_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "OCB_DB_HOST",
	Port:            "OCB_DB_PORT",
	Name:            "OCB_DB_NAME",
	User:            "OCB_DB_USER",
	Password:        "OCB_DB_PASSWORD",
	SSLMode:         "OCB_DB_SSL_MODE",
	MaxOpenConns:    "OCB_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "OCB_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "OCB_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "OCB_DB_CONN_TIMEOUT",
}

var paginationEnv = &pagination.ConfigEnv{
	DefaultPageSize: "OCB_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "OCB_PAGINATION_MAX_PAGE_SIZE",
}

// Config is the root configuration for the identity correlation service.
type Config struct {
	Database   database.Config   `toml:"database"`
	Pagination pagination.Config `toml:"pagination"`
	Sync       SyncConfig        `toml:"sync"`
	Version    string            `toml:"version"`
}

// Env returns the OCB_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvOcbEnv); env != "" {
		return env
	}
	return "local"
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Database.Merge(&overlay.Database)
	c.Pagination.Merge(&overlay.Pagination)
	c.Sync.Merge(&overlay.Sync)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	if err := c.Sync.Finalize(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvOcbVersion); v != "" {
		c.Version = v
	}
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvOcbEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
