// Package logging builds the service *slog.Logger on top of a zap core.
package logging

import (
	"fmt"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"

	"github.com/JaimeStill/headcount/pkg/lifecycle"
)

// System owns the process logger and flushes it on shutdown.
type System interface {
	// Logger returns the slog front end backed by zap.
	Logger() *slog.Logger
	// Start registers a shutdown hook that syncs buffered log entries.
	Start(lc *lifecycle.Coordinator) error
}

type logging struct {
	base   *zap.Logger
	logger *slog.Logger
}

// New creates a logging system. Development mode writes console output,
// production mode writes JSON.
func New(cfg *Config) (System, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse level: %w", err)
	}

	zcfg := zap.NewDevelopmentConfig()
	if cfg.Production() {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	base, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}

	return &logging{
		base:   base,
		logger: slog.New(zapslog.NewHandler(base.Core(), zapslog.WithCaller(true))),
	}, nil
}

func (l *logging) Logger() *slog.Logger {
	return l.logger
}

func (l *logging) Start(lc *lifecycle.Coordinator) error {
	lc.OnShutdown(func() {
		<-lc.Context().Done()
		// stderr sync returns EINVAL on some platforms; nothing to report
		_ = l.base.Sync()
	})
	return nil
}
