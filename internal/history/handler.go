package history

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/JaimeStill/headcount/pkg/handlers"
	"github.com/JaimeStill/headcount/pkg/routes"
)

// Handler provides HTTP endpoints for occupancy history.
type Handler struct {
	recorder Recorder
	archiver *Archiver
	limits   Limits
	admin    routes.Middleware
	logger   *slog.Logger
}

// NewHandler creates a history Handler. admin guards the archive endpoints.
func NewHandler(
	recorder Recorder,
	archiver *Archiver,
	limits Limits,
	admin routes.Middleware,
	logger *slog.Logger,
) *Handler {
	if admin == nil {
		admin = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{
		recorder: recorder,
		archiver: archiver,
		limits:   limits,
		admin:    admin,
		logger:   logger.With("handler", "history"),
	}
}

// Routes returns the route group definition for history endpoints.
func (h *Handler) Routes() routes.Group {
	admin := []routes.Middleware{h.admin}
	return routes.Group{
		Prefix: "/count/history",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "/archive", Handler: h.Archive, Middleware: admin},
			{Method: "GET", Pattern: "/archive/{key...}", Handler: h.Download, Middleware: admin},
		},
	}
}

// List returns snapshots in the requested window, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rng, err := RangeFromQuery(r.URL.Query(), h.limits, time.Now().UTC())
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	snaps, err := h.recorder.QueryRange(r.Context(), rng)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusServiceUnavailable, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, map[string]any{"history": snaps})
}

// Archive exports the requested window to blob storage.
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	rng, err := RangeFromQuery(r.URL.Query(), h.limits, time.Now().UTC())
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	archive, err := h.archiver.Archive(r.Context(), rng)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, archive)
}

// Download streams a previously exported archive.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	body, err := h.archiver.Open(r.Context(), key)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", archiveContentType)
	w.Header().Set(
		"Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", path.Base(key)),
	)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("archive download interrupted", "key", key, "error", err)
	}
}
