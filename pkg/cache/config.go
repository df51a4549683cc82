package cache

import (
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection parameters.
type Config struct {
	URL         string `toml:"url"`
	Password    string `toml:"password"`
	DialTimeout string `toml:"dial_timeout"`
	OpTimeout   string `toml:"op_timeout"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	URL         string
	Password    string
	DialTimeout string
	OpTimeout   string
}

// DialTimeoutDuration returns DialTimeout as a time.Duration.
func (c *Config) DialTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.DialTimeout)
	return d
}

// OpTimeoutDuration returns OpTimeout as a time.Duration.
func (c *Config) OpTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.OpTimeout)
	return d
}

// Options converts the config into go-redis client options.
func (c *Config) Options() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if c.Password != "" {
		opts.Password = c.Password
	}
	opts.DialTimeout = c.DialTimeoutDuration()
	opts.ReadTimeout = c.OpTimeoutDuration()
	opts.WriteTimeout = c.OpTimeoutDuration()
	return opts, nil
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
	if overlay.URL != "" {
		c.URL = overlay.URL
	}
	if overlay.Password != "" {
		c.Password = overlay.Password
	}
	if overlay.DialTimeout != "" {
		c.DialTimeout = overlay.DialTimeout
	}
	if overlay.OpTimeout != "" {
		c.OpTimeout = overlay.OpTimeout
	}
}

func (c *Config) loadDefaults() {
	if c.URL == "" {
		c.URL = "redis://localhost:6379/0"
	}
	if c.DialTimeout == "" {
		c.DialTimeout = "5s"
	}
	if c.OpTimeout == "" {
		c.OpTimeout = "2s"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.URL != "" {
		if v := os.Getenv(env.URL); v != "" {
			c.URL = v
		}
	}
	if env.Password != "" {
		if v := os.Getenv(env.Password); v != "" {
			c.Password = v
		}
	}
	if env.DialTimeout != "" {
		if v := os.Getenv(env.DialTimeout); v != "" {
			c.DialTimeout = v
		}
	}
	if env.OpTimeout != "" {
		if v := os.Getenv(env.OpTimeout); v != "" {
			c.OpTimeout = v
		}
	}
}

func (c *Config) validate() error {
	if _, err := redis.ParseURL(c.URL); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if _, err := time.ParseDuration(c.DialTimeout); err != nil {
		return fmt.Errorf("invalid dial_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.OpTimeout); err != nil {
		return fmt.Errorf("invalid op_timeout: %w", err)
	}
	return nil
}
