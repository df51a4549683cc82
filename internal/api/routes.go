package api

import (
	"net/http"
	"time"

	"github.com/JaimeStill/headcount/internal/broadcast"
	"github.com/JaimeStill/headcount/internal/history"
	"github.com/JaimeStill/headcount/internal/occupancy"
	"github.com/JaimeStill/headcount/internal/users"
	"github.com/JaimeStill/headcount/pkg/handlers"
	"github.com/JaimeStill/headcount/pkg/routes"
)

func registerRoutes(mux *http.ServeMux, domain *Domain, runtime *Runtime) {
	admin := domain.Auth.RequireRole(users.RoleAdmin)

	occupancyHandler := occupancy.NewHandler(
		domain.Aggregator,
		domain.Detector,
		runtime.MaxFrameSize,
		admin,
		runtime.Logger,
	)
	historyHandler := history.NewHandler(
		domain.History,
		domain.Archiver,
		runtime.HistoryLimits,
		admin,
		runtime.Logger,
	)
	broadcastHandler := broadcast.NewHandler(domain.Hub, runtime.Origins, runtime.Logger)

	routes.Register(
		mux,
		healthRoutes(),
		users.NewHandler(domain.Auth, runtime.Logger).Routes(),
		routes.Group{
			Middleware: []routes.Middleware{domain.Auth.RequireAuth()},
			Children: []routes.Group{
				occupancyHandler.Routes(),
				historyHandler.Routes(),
				broadcastHandler.Routes(),
			},
		},
	)
}

func healthRoutes() routes.Group {
	return routes.Group{
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/health", Handler: health},
		},
	}
}

func health(w http.ResponseWriter, r *http.Request) {
	handlers.RespondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// LiveCountHandler serves the WebSocket stream outside the API prefix, for
// dashboards that connect to /ws/live-count.
func (d *Domain) LiveCountHandler() http.Handler {
	h := broadcast.NewHandler(d.Hub, d.runtime.Origins, d.runtime.Logger)
	return d.Auth.RequireAuth()(http.HandlerFunc(h.WebSocket))
}
