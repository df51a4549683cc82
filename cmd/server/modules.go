package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/JaimeStill/headcount/internal/api"
	"github.com/JaimeStill/headcount/internal/config"
	"github.com/JaimeStill/headcount/internal/infrastructure"
	"github.com/JaimeStill/headcount/pkg/middleware"
	"github.com/JaimeStill/headcount/pkg/module"
)

// Modules holds the mounted HTTP modules and the domain behind them.
type Modules struct {
	API    *module.Module
	Domain *api.Domain
}

// NewModules builds the API domain and module from the shared infrastructure.
func NewModules(ctx context.Context, infra *infrastructure.Infrastructure, cfg *config.Config) (*Modules, error) {
	runtime := api.NewRuntime(cfg, infra)

	domain, err := api.NewDomain(ctx, cfg, runtime)
	if err != nil {
		return nil, err
	}

	return &Modules{
		API:    api.NewModule(cfg, domain),
		Domain: domain,
	}, nil
}

// Mount registers every module with the router.
func (m *Modules) Mount(router *module.Router) {
	router.Mount(m.API)
}

func buildRouter(infra *infrastructure.Infrastructure, domain *api.Domain) *module.Router {
	router := module.NewRouter()

	router.HandleNative("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]any{"status": "ok"})
	}))

	router.HandleNative("GET /readyz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !infra.Lifecycle.Ready() {
			writeStatus(w, http.StatusServiceUnavailable, map[string]any{
				"status":  "not ready",
				"pending": infra.Lifecycle.Pending(),
			})
			return
		}
		writeStatus(w, http.StatusOK, map[string]any{"status": "ready"})
	}))

	live := middleware.Chain(middleware.Recover(infra.Logger), middleware.Logger(infra.Logger))(domain.LiveCountHandler())
	router.HandleNative("GET /ws/live-count", live)

	return router
}

func writeStatus(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
