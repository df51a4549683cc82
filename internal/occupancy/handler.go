package occupancy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JaimeStill/headcount/internal/detection"
	"github.com/JaimeStill/headcount/pkg/handlers"
	"github.com/JaimeStill/headcount/pkg/routes"
)

// Handler provides HTTP endpoints for the live count, frame ingestion and
// manual counts.
type Handler struct {
	agg          *Aggregator
	detector     detection.Detector
	maxFrameSize int64
	admin        routes.Middleware
	logger       *slog.Logger
}

// NewHandler creates an occupancy Handler. admin guards the manual count endpoint.
func NewHandler(
	agg *Aggregator,
	detector detection.Detector,
	maxFrameSize int64,
	admin routes.Middleware,
	logger *slog.Logger,
) *Handler {
	if admin == nil {
		admin = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{
		agg:          agg,
		detector:     detector,
		maxFrameSize: maxFrameSize,
		admin:        admin,
		logger:       logger.With("handler", "occupancy"),
	}
}

// Routes returns the route group definition for occupancy endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/count/current", Handler: h.Current},
			{Method: "POST", Pattern: "/process/frame", Handler: h.ProcessFrame},
			{Method: "POST", Pattern: "/process/observations", Handler: h.ProcessObservations},
			{
				Method:     "POST",
				Pattern:    "/simulate/count",
				Handler:    h.SimulateCount,
				Middleware: []routes.Middleware{h.admin},
			},
		},
	}
}

// Current returns the live count.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	live, err := h.agg.Current(r.Context())
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, live)
}

type frameResponse struct {
	Status        string    `json:"status"`
	FacesDetected int       `json:"faces_detected"`
	Count         int       `json:"count"`
	Faces         []Face    `json:"faces"`
	Timestamp     time.Time `json:"timestamp"`
}

func newFrameResponse(res *Result) frameResponse {
	return frameResponse{
		Status:        "processed",
		FacesDetected: len(res.Faces),
		Count:         res.Snapshot.Count,
		Faces:         res.Faces,
		Timestamp:     res.Snapshot.Timestamp,
	}
}

// ProcessFrame decodes an uploaded frame, detects faces and ingests them.
func (h *Handler) ProcessFrame(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFrameSize)

	raw, err := h.readFrame(r)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	img, format, err := detection.Decode(bytes.NewReader(raw))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	observations, err := h.detector.Detect(r.Context(), img, raw)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	res, err := h.agg.Ingest(r.Context(), observations, r.URL.Query().Get("zone_id"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	h.logger.Debug("frame processed",
		"format", format,
		"bytes", len(raw),
		"detector", h.detector.Name(),
		"faces", len(res.Faces),
	)
	handlers.RespondJSON(w, http.StatusOK, newFrameResponse(res))
}

type observationsRequest struct {
	ZoneID       string                  `json:"zone_id"`
	Observations []detection.Observation `json:"observations"`
}

// ProcessObservations ingests faces whose descriptors were extracted upstream.
func (h *Handler) ProcessObservations(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFrameSize)

	var req observationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, requestError(err))
		return
	}

	res, err := h.agg.Ingest(r.Context(), req.Observations, req.ZoneID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, newFrameResponse(res))
}

type simulateRequest struct {
	Count  *int   `json:"count"`
	ZoneID string `json:"zone_id"`
}

// SimulateCount sets the current count manually.
func (h *Handler) SimulateCount(w http.ResponseWriter, r *http.Request) {
	req, err := parseSimulate(r)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	snap, err := h.agg.SetManualCount(r.Context(), *req.Count, req.ZoneID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, map[string]any{
		"message":   fmt.Sprintf("count set to %d", snap.Count),
		"count":     snap.Count,
		"timestamp": snap.Timestamp,
	})
}

func parseSimulate(r *http.Request) (simulateRequest, error) {
	var req simulateRequest
	q := r.URL.Query()

	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("%w: %q", ErrInvalidCount, v)
		}
		req.Count = &n
		req.ZoneID = q.Get("zone_id")
		return req, nil
	}

	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return req, fmt.Errorf("%w: count required", ErrInvalidRequest)
		}
		return req, requestError(err)
	}
	if req.Count == nil {
		return req, fmt.Errorf("%w: count required", ErrInvalidRequest)
	}
	return req, nil
}

// readFrame returns the encoded frame from a multipart field named frame or
// file, or from the raw body.
func (h *Handler) readFrame(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if strings.HasPrefix(mediaType, "multipart/") {
		if err := r.ParseMultipartForm(h.maxFrameSize); err != nil {
			return nil, requestError(err)
		}
		for _, field := range []string{"frame", "file"} {
			f, _, err := r.FormFile(field)
			if errors.Is(err, http.ErrMissingFile) {
				continue
			}
			if err != nil {
				return nil, requestError(err)
			}
			defer f.Close()

			data, err := io.ReadAll(f)
			if err != nil {
				return nil, requestError(err)
			}
			return data, nil
		}
		return nil, fmt.Errorf("%w: multipart field frame or file required", ErrInvalidRequest)
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, requestError(err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrInvalidRequest)
	}
	return data, nil
}

func requestError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: limit %d bytes", ErrFrameTooLarge, tooLarge.Limit)
	}
	return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
}
