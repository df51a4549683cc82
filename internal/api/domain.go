package api

import (
	"context"
	"fmt"

	"github.com/JaimeStill/headcount/internal/broadcast"
	"github.com/JaimeStill/headcount/internal/config"
	"github.com/JaimeStill/headcount/internal/detection"
	"github.com/JaimeStill/headcount/internal/fingerprint"
	"github.com/JaimeStill/headcount/internal/history"
	"github.com/JaimeStill/headcount/internal/identities"
	"github.com/JaimeStill/headcount/internal/occupancy"
	"github.com/JaimeStill/headcount/internal/users"
	"github.com/JaimeStill/headcount/pkg/lifecycle"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Users      users.Store
	Auth       *users.Authenticator
	Aggregator *occupancy.Aggregator
	Hub        *broadcast.Hub
	Relay      *broadcast.Relay
	History    history.Recorder
	Archiver   *history.Archiver
	Detector   detection.Detector

	runtime *Runtime
	auth    *config.AuthConfig
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(ctx context.Context, cfg *config.Config, runtime *Runtime) (*Domain, error) {
	db := runtime.Database.Connection()
	logger := runtime.Logger

	extractor, err := fingerprint.New(cfg.Engine.AnonymizationSalt)
	if err != nil {
		return nil, fmt.Errorf("fingerprint extractor: %w", err)
	}

	var verifier users.IDTokenVerifier
	if cfg.Auth.OIDCEnabled() {
		verifier, err = users.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.OIDCClientID)
		if err != nil {
			return nil, err
		}
	}

	detector, err := detection.New(ctx, &cfg.Detection, logger)
	if err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}

	userStore := users.NewStore(db, logger)
	tokens := users.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenExpiryDuration())
	recorder := history.NewRecorder(db, logger)
	state := occupancy.NewState()

	hub := broadcast.NewHub(
		broadcast.HubConfig{Interval: cfg.Broadcast.IntervalDuration()},
		state.Get,
		logger,
	)

	registry := identities.NewRegistry(identities.RegistryConfig{
		Threshold: cfg.Engine.Threshold,
		Capacity:  cfg.Engine.Capacity,
		Window:    cfg.Engine.WindowDuration(),
	}, extractor, logger)

	aggregator := occupancy.NewAggregator(occupancy.Deps{
		Registry:       registry,
		Extractor:      extractor,
		State:          state,
		Live:           occupancy.NewLiveStore(runtime.Cache),
		Identities:     identities.NewStore(db, logger),
		History:        recorder,
		Publisher:      hub,
		Workers:        cfg.Engine.Workers,
		StorageTimeout: cfg.Engine.StorageTimeoutDuration(),
		DefaultZone:    cfg.Engine.DefaultZone,
		Logger:         logger,
	})

	var relay *broadcast.Relay
	if cfg.Broadcast.MQTT.Enabled() {
		relay = broadcast.NewRelay(&cfg.Broadcast.MQTT, logger)
	}

	return &Domain{
		Users:      userStore,
		Auth:       users.NewAuthenticator(userStore, tokens, verifier, logger),
		Aggregator: aggregator,
		Hub:        hub,
		Relay:      relay,
		History:    recorder,
		Archiver:   history.NewArchiver(recorder, runtime.Storage, logger),
		Detector:   detector,
		runtime:    runtime,
		auth:       &cfg.Auth,
	}, nil
}

// Start registers the hub, the MQTT relay and the detector with the lifecycle.
func (d *Domain) Start(lc *lifecycle.Coordinator) error {
	if err := d.Hub.Start(lc); err != nil {
		return fmt.Errorf("broadcast hub start failed: %w", err)
	}
	lc.AddCheck("broadcast", d.Hub)

	if d.Relay != nil {
		if err := d.Relay.Start(lc, d.Hub); err != nil {
			return fmt.Errorf("mqtt relay start failed: %w", err)
		}
	}

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		if err := d.Detector.Close(); err != nil {
			d.runtime.Logger.Error("detector close failed", "error", err)
		}
	})
	return nil
}

// Bootstrap seeds the admin account and restores the last live count. It runs
// once infrastructure startup completes; failures are logged.
func (d *Domain) Bootstrap(ctx context.Context) {
	logger := d.runtime.Logger

	if err := users.SeedAdmin(ctx, d.Users, d.auth, logger); err != nil {
		logger.Error("admin seed failed", "error", err)
	}
	if err := d.Aggregator.Hydrate(ctx); err != nil {
		logger.Warn("starting without a restored live count", "error", err)
	}
}
