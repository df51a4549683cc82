package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

const (
	EnvEngineAnonymizationSalt = "HEADCOUNT_ENGINE_ANONYMIZATION_SALT"
	EnvEngineThreshold         = "HEADCOUNT_ENGINE_THRESHOLD"
	EnvEngineCapacity          = "HEADCOUNT_ENGINE_CAPACITY"
	EnvEngineWindow            = "HEADCOUNT_ENGINE_WINDOW"
	EnvEngineWorkers           = "HEADCOUNT_ENGINE_WORKERS"
	EnvEngineStorageTimeout    = "HEADCOUNT_ENGINE_STORAGE_TIMEOUT"
	EnvEngineDefaultZone       = "HEADCOUNT_ENGINE_DEFAULT_ZONE"
)

// ErrMissingSalt is returned when no anonymization salt is configured.
var ErrMissingSalt = errors.New("anonymization_salt is required")

// EngineConfig holds the occupancy engine parameters.
type EngineConfig struct {
	AnonymizationSalt string  `toml:"anonymization_salt"`
	Threshold         float64 `toml:"threshold"`
	Capacity          int     `toml:"capacity"`
	Window            string  `toml:"window"`
	Workers           int     `toml:"workers"`
	StorageTimeout    string  `toml:"storage_timeout"`
	DefaultZone       string  `toml:"default_zone"`
}

// WindowDuration returns Window as a time.Duration.
func (c *EngineConfig) WindowDuration() time.Duration {
	d, _ := time.ParseDuration(c.Window)
	return d
}

// StorageTimeoutDuration returns StorageTimeout as a time.Duration.
func (c *EngineConfig) StorageTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.StorageTimeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *EngineConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *EngineConfig) Merge(overlay *EngineConfig) {
	if overlay.AnonymizationSalt != "" {
		c.AnonymizationSalt = overlay.AnonymizationSalt
	}
	if overlay.Threshold != 0 {
		c.Threshold = overlay.Threshold
	}
	if overlay.Capacity != 0 {
		c.Capacity = overlay.Capacity
	}
	if overlay.Window != "" {
		c.Window = overlay.Window
	}
	if overlay.Workers != 0 {
		c.Workers = overlay.Workers
	}
	if overlay.StorageTimeout != "" {
		c.StorageTimeout = overlay.StorageTimeout
	}
	if overlay.DefaultZone != "" {
		c.DefaultZone = overlay.DefaultZone
	}
}

func (c *EngineConfig) loadDefaults() {
	if c.Threshold == 0 {
		c.Threshold = 0.6
	}
	if c.Capacity == 0 {
		c.Capacity = 1000
	}
	if c.Window == "" {
		c.Window = "30m"
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.StorageTimeout == "" {
		c.StorageTimeout = "5s"
	}
	if c.DefaultZone == "" {
		c.DefaultZone = "default"
	}
}

func (c *EngineConfig) loadEnv() {
	if v := os.Getenv(EnvEngineAnonymizationSalt); v != "" {
		c.AnonymizationSalt = v
	}
	if v := os.Getenv(EnvEngineThreshold); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			c.Threshold = t
		}
	}
	if v := os.Getenv(EnvEngineCapacity); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Capacity = n
		}
	}
	if v := os.Getenv(EnvEngineWindow); v != "" {
		c.Window = v
	}
	if v := os.Getenv(EnvEngineWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
	if v := os.Getenv(EnvEngineStorageTimeout); v != "" {
		c.StorageTimeout = v
	}
	if v := os.Getenv(EnvEngineDefaultZone); v != "" {
		c.DefaultZone = v
	}
}

func (c *EngineConfig) validate() error {
	if c.AnonymizationSalt == "" {
		return ErrMissingSalt
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be in (0, 1]: %g", c.Threshold)
	}
	if c.Capacity < 1 {
		return fmt.Errorf("capacity must be positive: %d", c.Capacity)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive: %d", c.Workers)
	}
	if d, err := time.ParseDuration(c.Window); err != nil {
		return fmt.Errorf("invalid window: %w", err)
	} else if d <= 0 {
		return fmt.Errorf("window must be positive: %s", c.Window)
	}
	if _, err := time.ParseDuration(c.StorageTimeout); err != nil {
		return fmt.Errorf("invalid storage_timeout: %w", err)
	}
	return nil
}
