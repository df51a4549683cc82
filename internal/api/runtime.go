package api

import (
	"github.com/JaimeStill/headcount/internal/config"
	"github.com/JaimeStill/headcount/internal/history"
	"github.com/JaimeStill/headcount/internal/infrastructure"
)

// Runtime extends Infrastructure with API-specific configuration.
type Runtime struct {
	*infrastructure.Infrastructure
	MaxFrameSize  int64
	HistoryLimits history.Limits
	Origins       []string
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	return &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: infra.Lifecycle,
			Logging:   infra.Logging,
			Logger:    infra.Logger.With("module", "api"),
			Database:  infra.Database,
			Cache:     infra.Cache,
			Storage:   infra.Storage,
		},
		MaxFrameSize: cfg.API.MaxFrameSizeBytes(),
		HistoryLimits: history.Limits{
			Window:       cfg.History.WindowDuration(),
			DefaultLimit: cfg.History.DefaultLimit,
			MaxLimit:     cfg.History.MaxLimit,
		},
		Origins: cfg.API.CORS.Origins,
	}
}
