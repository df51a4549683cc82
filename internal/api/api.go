// Package api assembles the API module with all domain systems and route registration.
package api

import (
	"net/http"

	"github.com/JaimeStill/headcount/internal/config"
	"github.com/JaimeStill/headcount/pkg/middleware"
	"github.com/JaimeStill/headcount/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware.
func NewModule(cfg *config.Config, domain *Domain) *module.Module {
	runtime := domain.runtime

	mux := http.NewServeMux()
	registerRoutes(mux, domain, runtime)

	return module.New(
		cfg.API.BasePath,
		mux,
		middleware.Recover(runtime.Logger),
		middleware.CORS(&cfg.API.CORS),
		middleware.Logger(runtime.Logger),
	)
}
