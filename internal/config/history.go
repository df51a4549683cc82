package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// HistoryConfig bounds occupancy history queries.
type HistoryConfig struct {
	Window       string `toml:"window"`
	DefaultLimit int    `toml:"default_limit"`
	MaxLimit     int    `toml:"max_limit"`
}

// WindowDuration returns Window as a time.Duration.
func (c *HistoryConfig) WindowDuration() time.Duration {
	d, _ := time.ParseDuration(c.Window)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *HistoryConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *HistoryConfig) Merge(overlay *HistoryConfig) {
	if overlay.Window != "" {
		c.Window = overlay.Window
	}
	if overlay.DefaultLimit != 0 {
		c.DefaultLimit = overlay.DefaultLimit
	}
	if overlay.MaxLimit != 0 {
		c.MaxLimit = overlay.MaxLimit
	}
}

func (c *HistoryConfig) loadDefaults() {
	if c.Window == "" {
		c.Window = "24h"
	}
	if c.DefaultLimit == 0 {
		c.DefaultLimit = 100
	}
	if c.MaxLimit == 0 {
		c.MaxLimit = 100
	}
}

func (c *HistoryConfig) loadEnv() {
	if v := os.Getenv("HEADCOUNT_HISTORY_WINDOW"); v != "" {
		c.Window = v
	}
	if v := os.Getenv("HEADCOUNT_HISTORY_DEFAULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DefaultLimit = n
		}
	}
	if v := os.Getenv("HEADCOUNT_HISTORY_MAX_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxLimit = n
		}
	}
}

func (c *HistoryConfig) validate() error {
	if _, err := time.ParseDuration(c.Window); err != nil {
		return fmt.Errorf("invalid window: %w", err)
	}
	if c.DefaultLimit < 1 || c.MaxLimit < 1 {
		return fmt.Errorf("limits must be positive")
	}
	if c.DefaultLimit > c.MaxLimit {
		return fmt.Errorf("default_limit %d exceeds max_limit %d", c.DefaultLimit, c.MaxLimit)
	}
	return nil
}
