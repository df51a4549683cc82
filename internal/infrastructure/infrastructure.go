// Package infrastructure provides core service initialization for application startup.
// It assembles common dependencies (logging, database, cache, storage) that domain systems require.
package infrastructure

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/headcount/internal/config"
	"github.com/JaimeStill/headcount/internal/migrations"
	"github.com/JaimeStill/headcount/pkg/cache"
	"github.com/JaimeStill/headcount/pkg/database"
	"github.com/JaimeStill/headcount/pkg/lifecycle"
	"github.com/JaimeStill/headcount/pkg/logging"
	"github.com/JaimeStill/headcount/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules.
// Storage is nil when no blob endpoint is configured.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logging   logging.System
	Logger    *slog.Logger
	Database  database.System
	Cache     cache.System
	Storage   storage.System
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()

	logs, err := logging.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logging init failed: %w", err)
	}
	logger := logs.Logger()

	var migrate database.MigrateFunc
	if cfg.Database.AutoMigrate {
		migrate = migrations.Up
	}

	db, err := database.New(&cfg.Database, logger, migrate)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	c, err := cache.New(&cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("cache init failed: %w", err)
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		if !errors.Is(err, storage.ErrDisabled) {
			return nil, fmt.Errorf("storage init failed: %w", err)
		}
		logger.Info("blob storage not configured, archives disabled")
		store = nil
	}

	return &Infrastructure{
		Lifecycle: lc,
		Logging:   logs,
		Logger:    logger,
		Database:  db,
		Cache:     c,
		Storage:   store,
	}, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
// The database is registered as a readiness check.
func (i *Infrastructure) Start() error {
	if err := i.Logging.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("logging start failed: %w", err)
	}
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	i.Lifecycle.AddCheck("database", i.Database)

	if err := i.Cache.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("cache start failed: %w", err)
	}
	if i.Storage != nil {
		if err := i.Storage.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("storage start failed: %w", err)
		}
	}
	return nil
}
