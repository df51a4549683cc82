package config

import (
	"fmt"
	"os"

	"github.com/JaimeStill/headcount/pkg/formatting"
	"github.com/JaimeStill/headcount/pkg/middleware"
)

var corsEnv = &middleware.CORSEnv{
	Enabled:          "HEADCOUNT_CORS_ENABLED",
	Origins:          "HEADCOUNT_CORS_ORIGINS",
	AllowedMethods:   "HEADCOUNT_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "HEADCOUNT_CORS_ALLOWED_HEADERS",
	AllowCredentials: "HEADCOUNT_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "HEADCOUNT_CORS_MAX_AGE",
}

// APIConfig holds API routing, CORS, and frame upload settings.
type APIConfig struct {
	BasePath     string                `toml:"base_path"`
	MaxFrameSize string                `toml:"max_frame_size"`
	CORS         middleware.CORSConfig `toml:"cors"`
}

// MaxFrameSizeBytes returns MaxFrameSize as a byte count.
func (c *APIConfig) MaxFrameSizeBytes() int64 {
	size, err := formatting.ParseBytes(c.MaxFrameSize)
	if err != nil {
		return 10 * 1024 * 1024
	}
	return size
}

// Finalize applies defaults, environment variable overrides, and validation
// for the API config and its nested CORS config.
func (c *APIConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if _, err := formatting.ParseBytes(c.MaxFrameSize); err != nil {
		return fmt.Errorf("invalid max_frame_size: %w", err)
	}
	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay across nested configs.
func (c *APIConfig) Merge(overlay *APIConfig) {
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}
	if overlay.MaxFrameSize != "" {
		c.MaxFrameSize = overlay.MaxFrameSize
	}

	c.CORS.Merge(&overlay.CORS)
}

func (c *APIConfig) loadDefaults() {
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
	if c.MaxFrameSize == "" {
		c.MaxFrameSize = "10MB"
	}
}

func (c *APIConfig) loadEnv() {
	if v := os.Getenv("HEADCOUNT_API_BASE_PATH"); v != "" {
		c.BasePath = v
	}
	if v := os.Getenv("HEADCOUNT_API_MAX_FRAME_SIZE"); v != "" {
		c.MaxFrameSize = v
	}
}
