// Package config loads the headcount service configuration from TOML files and
// HEADCOUNT_ environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/headcount/pkg/cache"
	"github.com/JaimeStill/headcount/pkg/database"
	"github.com/JaimeStill/headcount/pkg/logging"
	"github.com/JaimeStill/headcount/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvHeadcountEnv             = "HEADCOUNT_ENV"
	EnvHeadcountShutdownTimeout = "HEADCOUNT_SHUTDOWN_TIMEOUT"
	EnvHeadcountVersion         = "HEADCOUNT_VERSION"
)

var databaseEnv = &database.Env{
	Host:             "HEADCOUNT_DB_HOST",
	Port:             "HEADCOUNT_DB_PORT",
	Name:             "HEADCOUNT_DB_NAME",
	User:             "HEADCOUNT_DB_USER",
	Password:         "HEADCOUNT_DB_PASSWORD",
	SSLMode:          "HEADCOUNT_DB_SSL_MODE",
	ApplicationName:  "HEADCOUNT_DB_APPLICATION_NAME",
	StatementTimeout: "HEADCOUNT_DB_STATEMENT_TIMEOUT",
	MaxOpenConns:     "HEADCOUNT_DB_MAX_OPEN_CONNS",
	MaxIdleConns:     "HEADCOUNT_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime:  "HEADCOUNT_DB_CONN_MAX_LIFETIME",
	ConnTimeout:      "HEADCOUNT_DB_CONN_TIMEOUT",
	ConnRetries:      "HEADCOUNT_DB_CONN_RETRIES",
	AutoMigrate:      "HEADCOUNT_DB_AUTO_MIGRATE",
}

var cacheEnv = &cache.Env{
	URL:         "HEADCOUNT_CACHE_URL",
	Password:    "HEADCOUNT_CACHE_PASSWORD",
	DialTimeout: "HEADCOUNT_CACHE_DIAL_TIMEOUT",
	OpTimeout:   "HEADCOUNT_CACHE_OP_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "HEADCOUNT_STORAGE_CONTAINER_NAME",
	ConnectionString: "HEADCOUNT_STORAGE_CONNECTION_STRING",
	AccountURL:       "HEADCOUNT_STORAGE_ACCOUNT_URL",
}

var loggingEnv = &logging.Env{
	Mode:  "HEADCOUNT_LOG_MODE",
	Level: "HEADCOUNT_LOG_LEVEL",
}

// Config is the root configuration for the headcount service.
type Config struct {
	Server          ServerConfig    `toml:"server"`
	Database        database.Config `toml:"database"`
	Cache           cache.Config    `toml:"cache"`
	Storage         storage.Config  `toml:"storage"`
	Logging         logging.Config  `toml:"logging"`
	API             APIConfig       `toml:"api"`
	Auth            AuthConfig      `toml:"auth"`
	Engine          EngineConfig    `toml:"engine"`
	History         HistoryConfig   `toml:"history"`
	Broadcast       BroadcastConfig `toml:"broadcast"`
	Detection       DetectionConfig `toml:"detection"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	Version         string          `toml:"version"`
}

// Env returns the HEADCOUNT_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvHeadcountEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	return LoadFrom(BaseConfigFile)
}

// LoadFrom is Load with an explicit base file path. The overlay is resolved
// relative to the same directory.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); err == nil {
		loaded, err := load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if overlay := overlayPath(path); overlay != "" {
		o, err := load(overlay)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", overlay, err)
		}
		cfg.Merge(o)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Cache.Merge(&overlay.Cache)
	c.Storage.Merge(&overlay.Storage)
	c.Logging.Merge(&overlay.Logging)
	c.API.Merge(&overlay.API)
	c.Auth.Merge(&overlay.Auth)
	c.Engine.Merge(&overlay.Engine)
	c.History.Merge(&overlay.History)
	c.Broadcast.Merge(&overlay.Broadcast)
	c.Detection.Merge(&overlay.Detection)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"server", c.Server.Finalize},
		{"database", func() error { return c.Database.Finalize(databaseEnv) }},
		{"cache", func() error { return c.Cache.Finalize(cacheEnv) }},
		{"storage", func() error { return c.Storage.Finalize(storageEnv) }},
		{"logging", func() error { return c.Logging.Finalize(loggingEnv) }},
		{"api", c.API.Finalize},
		{"auth", c.Auth.Finalize},
		{"engine", c.Engine.Finalize},
		{"history", c.History.Finalize},
		{"broadcast", c.Broadcast.Finalize},
		{"detection", c.Detection.Finalize},
	}

	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvHeadcountShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvHeadcountVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
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

func overlayPath(base string) string {
	env := os.Getenv(EnvHeadcountEnv)
	if env == "" {
		return ""
	}
	path := filepath.Join(filepath.Dir(base), fmt.Sprintf(OverlayConfigPattern, env))
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}
