package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Detection providers.
const (
	DetectionNone   = "none"
	DetectionWorker = "worker"
	DetectionVision = "vision"
)

// DetectionConfig selects and configures the face detector.
type DetectionConfig struct {
	Provider string       `toml:"provider"`
	Worker   WorkerConfig `toml:"worker"`
	Vision   VisionConfig `toml:"vision"`
}

// WorkerConfig describes the external embedding worker processes.
type WorkerConfig struct {
	Command  string   `toml:"command"`
	Args     []string `toml:"args"`
	PoolSize int      `toml:"pool_size"`
	Timeout  string   `toml:"timeout"`
}

// VisionConfig configures the Cloud Vision face detector.
type VisionConfig struct {
	CredentialsFile string  `toml:"credentials_file"`
	Endpoint        string  `toml:"endpoint"`
	MinConfidence   float64 `toml:"min_confidence"`
	MaxResults      int     `toml:"max_results"`
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *WorkerConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *DetectionConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *DetectionConfig) Merge(overlay *DetectionConfig) {
	if overlay.Provider != "" {
		c.Provider = overlay.Provider
	}

	w, ow := &c.Worker, &overlay.Worker
	if ow.Command != "" {
		w.Command = ow.Command
	}
	if len(ow.Args) > 0 {
		w.Args = ow.Args
	}
	if ow.PoolSize != 0 {
		w.PoolSize = ow.PoolSize
	}
	if ow.Timeout != "" {
		w.Timeout = ow.Timeout
	}

	v, ov := &c.Vision, &overlay.Vision
	if ov.CredentialsFile != "" {
		v.CredentialsFile = ov.CredentialsFile
	}
	if ov.Endpoint != "" {
		v.Endpoint = ov.Endpoint
	}
	if ov.MinConfidence != 0 {
		v.MinConfidence = ov.MinConfidence
	}
	if ov.MaxResults != 0 {
		v.MaxResults = ov.MaxResults
	}
}

func (c *DetectionConfig) loadDefaults() {
	if c.Provider == "" {
		c.Provider = DetectionNone
	}
	if c.Worker.PoolSize == 0 {
		c.Worker.PoolSize = 1
	}
	if c.Worker.Timeout == "" {
		c.Worker.Timeout = "10s"
	}
	if c.Vision.MinConfidence == 0 {
		c.Vision.MinConfidence = 0.5
	}
	if c.Vision.MaxResults == 0 {
		c.Vision.MaxResults = 50
	}
}

func (c *DetectionConfig) loadEnv() {
	if v := os.Getenv("HEADCOUNT_DETECTION_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("HEADCOUNT_DETECTION_WORKER_COMMAND"); v != "" {
		c.Worker.Command = v
	}
	if v := os.Getenv("HEADCOUNT_DETECTION_WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Worker.PoolSize = n
		}
	}
	if v := os.Getenv("HEADCOUNT_DETECTION_VISION_CREDENTIALS_FILE"); v != "" {
		c.Vision.CredentialsFile = v
	}
	if v := os.Getenv("HEADCOUNT_DETECTION_VISION_ENDPOINT"); v != "" {
		c.Vision.Endpoint = v
	}
}

func (c *DetectionConfig) validate() error {
	switch c.Provider {
	case DetectionNone, DetectionVision:
	case DetectionWorker:
		if c.Worker.Command == "" {
			return fmt.Errorf("worker command is required for the worker provider")
		}
		if c.Worker.PoolSize < 1 {
			return fmt.Errorf("worker pool_size must be positive: %d", c.Worker.PoolSize)
		}
	default:
		return fmt.Errorf("unknown provider: %s", c.Provider)
	}
	if _, err := time.ParseDuration(c.Worker.Timeout); err != nil {
		return fmt.Errorf("invalid worker timeout: %w", err)
	}
	if c.Vision.MinConfidence < 0 || c.Vision.MinConfidence > 1 {
		return fmt.Errorf("vision min_confidence must be in [0, 1]: %g", c.Vision.MinConfidence)
	}
	return nil
}
