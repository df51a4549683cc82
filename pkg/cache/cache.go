// Package cache provides a Redis-backed key-value cache with lifecycle coordination.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JaimeStill/headcount/pkg/lifecycle"
)

// System manages the cache client and lifecycle coordination.
type System interface {
	// Get returns the value stored at key. Returns ErrMiss if the key is absent.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value at key. A zero ttl keeps the key until overwritten.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Ping verifies the server is reachable.
	Ping(ctx context.Context) error
	// Start registers startup and shutdown hooks with the lifecycle coordinator.
	Start(lc *lifecycle.Coordinator) error
}

type redisCache struct {
	client      *redis.Client
	logger      *slog.Logger
	dialTimeout time.Duration
}

// New creates a cache system with the given configuration.
// The client connects lazily; Start pings the server once the lifecycle begins.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, fmt.Errorf("cache options: %w", err)
	}

	return &redisCache{
		client:      redis.NewClient(opts),
		logger:      logger.With("system", "cache"),
		dialTimeout: cfg.DialTimeoutDuration(),
	}, nil
}

func (c *redisCache) Get(ctx context.Context, key string) (string, error) {
	v, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (c *redisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *redisCache) Start(lc *lifecycle.Coordinator) error {
	c.logger.Info("starting cache connection")

	lc.OnStartup(func() {
		pingCtx, cancel := context.WithTimeout(lc.Context(), c.dialTimeout)
		defer cancel()

		if err := c.Ping(pingCtx); err != nil {
			c.logger.Error("cache ping failed", "error", err)
			return
		}

		c.logger.Info("cache connection established")
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		c.logger.Info("closing cache connection")

		if err := c.client.Close(); err != nil {
			c.logger.Error("cache close failed", "error", err)
			return
		}

		c.logger.Info("cache connection closed")
	})

	return nil
}
