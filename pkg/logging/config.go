package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Config holds logger output settings.
type Config struct {
	Mode  string `toml:"mode"`
	Level string `toml:"level"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Mode  string
	Level string
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Mode != "" {
		c.Mode = overlay.Mode
	}
	if overlay.Level != "" {
		c.Level = overlay.Level
	}
}

// Production reports whether the JSON encoder should be used.
func (c *Config) Production() bool {
	switch strings.ToLower(c.Mode) {
	case "prod", "production":
		return true
	}
	return false
}

func (c *Config) loadDefaults() {
	if c.Mode == "" {
		c.Mode = "development"
	}
	if c.Level == "" {
		c.Level = "info"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Mode != "" {
		if v := os.Getenv(env.Mode); v != "" {
			c.Mode = v
		}
	}
	if env.Level != "" {
		if v := os.Getenv(env.Level); v != "" {
			c.Level = v
		}
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Mode) {
	case "dev", "development", "prod", "production":
	default:
		return fmt.Errorf("invalid mode: %s", c.Mode)
	}
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid level: %w", err)
	}
	return nil
}
