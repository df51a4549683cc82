package broadcast

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/JaimeStill/headcount/pkg/handlers"
	"github.com/JaimeStill/headcount/pkg/routes"
)

// Handler serves live count streams.
type Handler struct {
	hub    *Hub
	accept *websocket.AcceptOptions
	logger *slog.Logger
}

// NewHandler creates a broadcast Handler. origins are the allowed CORS origins
// applied to WebSocket upgrades.
func NewHandler(hub *Hub, origins []string, logger *slog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		accept: acceptOptions(origins),
		logger: logger.With("handler", "broadcast"),
	}
}

// Routes returns the route group definition for stream endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/count",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/live", Handler: h.WebSocket},
			{Method: "GET", Pattern: "/stream", Handler: h.Stream},
		},
	}
}

// WebSocket upgrades the connection and streams live counts until either side
// closes.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub, err := h.hub.Subscribe(&wsSink{conn: conn})
	if err != nil {
		conn.Close(websocket.StatusTryAgainLater, err.Error())
		return
	}
	defer h.release(sub)

	ctx := conn.CloseRead(r.Context())
	select {
	case <-ctx.Done():
	case <-sub.Done():
	}
}

// Stream sends live counts as server-sent events.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	sink, err := newSSESink(w, h.logger)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	sub, err := h.hub.Subscribe(sink)
	if err != nil {
		h.logger.Warn("stream rejected", "error", err)
		return
	}
	defer h.release(sub)

	select {
	case <-r.Context().Done():
	case <-sub.Done():
	}
}

// release waits for the pump so the sink is never used after the handler returns.
func (h *Handler) release(sub *Subscriber) {
	h.hub.Unsubscribe(sub)
	<-sub.Done()
}
