package occupancy_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JaimeStill/headcount/internal/detection"
	"github.com/JaimeStill/headcount/internal/occupancy"
	"github.com/JaimeStill/headcount/pkg/routes"
)

type mockDetector struct {
	observations []detection.Observation
	err          error
}

func (m *mockDetector) Detect(context.Context, image.Image, []byte) ([]detection.Observation, error) {
	return m.observations, m.err
}

func (m *mockDetector) Name() string { return "mock" }

func (m *mockDetector) Close() error { return nil }

func pngFrame(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func newMux(f *fixture, det detection.Detector, maxFrame int64, admin routes.Middleware) *http.ServeMux {
	h := occupancy.NewHandler(f.agg, det, maxFrame, admin, discard())
	mux := http.NewServeMux()
	routes.Register(mux, h.Routes())
	return mux
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestCurrentHandler(t *testing.T) {
	f := newFixture(t)
	mux := newMux(f, detection.None{}, 1<<20, nil)
	f.agg.SetManualCount(context.Background(), 4, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/count/current", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["count"] != float64(4) {
		t.Errorf("count: got %v, want 4", body["count"])
	}
	if _, ok := body["timestamp"]; !ok {
		t.Errorf("timestamp missing: %v", body)
	}
	if _, ok := body["Version"]; ok {
		t.Errorf("version leaked into response: %v", body)
	}
}

func TestProcessFrameRawBody(t *testing.T) {
	f := newFixture(t)
	det := &mockDetector{observations: []detection.Observation{obs(1, 0), obs(0, 1)}}
	mux := newMux(f, det, 1<<20, nil)

	req := httptest.NewRequest("POST", "/process/frame", bytes.NewReader(pngFrame(t)))
	req.Header.Set("Content-Type", "image/png")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200: %s", rec.Code, rec.Body)
	}
	body := decodeBody(t, rec)
	if body["status"] != "processed" {
		t.Errorf("status field: got %v", body["status"])
	}
	if body["faces_detected"] != float64(2) || body["count"] != float64(2) {
		t.Errorf("got faces_detected %v count %v, want 2 and 2", body["faces_detected"], body["count"])
	}
	faces, _ := body["faces"].([]any)
	if len(faces) != 2 {
		t.Fatalf("faces: got %v", body["faces"])
	}
	face := faces[0].(map[string]any)
	if _, ok := face["fingerprint"]; !ok {
		t.Errorf("fingerprint missing: %v", face)
	}
	if _, ok := face["descriptor"]; ok {
		t.Errorf("descriptor leaked into response: %v", face)
	}
}

func TestProcessFrameMultipart(t *testing.T) {
	for _, field := range []string{"frame", "file"} {
		t.Run(field, func(t *testing.T) {
			f := newFixture(t)
			mux := newMux(f, detection.None{}, 1<<20, nil)

			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			part, err := mw.CreateFormFile(field, "frame.png")
			if err != nil {
				t.Fatalf("create part: %v", err)
			}
			part.Write(pngFrame(t))
			mw.Close()

			req := httptest.NewRequest("POST", "/process/frame", &buf)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status: got %d, want 200: %s", rec.Code, rec.Body)
			}
			body := decodeBody(t, rec)
			if body["faces_detected"] != float64(0) || body["count"] != float64(0) {
				t.Errorf("got %v, want zero faces", body)
			}
		})
	}
}

func TestProcessFrameErrors(t *testing.T) {
	tests := []struct {
		name        string
		body        []byte
		contentType string
		maxFrame    int64
		det         detection.Detector
		want        int
	}{
		{"undecodable", []byte("not an image"), "image/png", 1 << 20, detection.None{}, http.StatusBadRequest},
		{"empty", nil, "image/png", 1 << 20, detection.None{}, http.StatusBadRequest},
		{"too large", bytes.Repeat([]byte{0xff}, 64), "image/png", 16, detection.None{}, http.StatusRequestEntityTooLarge},
		{"missing field", []byte("--x--\r\n"), "multipart/form-data; boundary=x", 1 << 20, detection.None{}, http.StatusBadRequest},
		{"detector failure", nil, "image/png", 1 << 20, &mockDetector{err: detection.ErrDetect}, http.StatusBadGateway},
		{"worker unavailable", nil, "image/png", 1 << 20, &mockDetector{err: detection.ErrWorkerUnavailable}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			mux := newMux(f, tt.det, tt.maxFrame, nil)
			if _, err := f.agg.SetManualCount(context.Background(), 3, ""); err != nil {
				t.Fatalf("set: %v", err)
			}
			before, _ := f.agg.State().Get()

			body := tt.body
			if body == nil && tt.name != "empty" {
				body = pngFrame(t)
			}
			req := httptest.NewRequest("POST", "/process/frame", bytes.NewReader(body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status: got %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}

			after, _ := f.agg.State().Get()
			if after.Version != before.Version || after.Count != before.Count {
				t.Errorf("state changed: got %+v, want %+v", after, before)
			}
			if len(f.rec.snaps) != 1 {
				t.Errorf("snapshots: got %d, want only the setup snapshot", len(f.rec.snaps))
			}
			if len(f.pub.published) != 1 {
				t.Errorf("published: got %d, want only the setup count", len(f.pub.published))
			}
		})
	}
}

func TestProcessObservations(t *testing.T) {
	f := newFixture(t)
	mux := newMux(f, detection.None{}, 1<<20, nil)

	payload := `{"zone_id":"east","observations":[{"bbox":[1,2,3,4],"descriptor":[0.1,0.9]},{"bbox":[5,6,7,8],"descriptor":[0.9,0.1],"confidence":0.8}]}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/process/observations", strings.NewReader(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200: %s", rec.Code, rec.Body)
	}
	body := decodeBody(t, rec)
	if body["count"] != float64(2) {
		t.Errorf("count: got %v, want 2", body["count"])
	}
	if len(f.rec.snaps) != 1 || f.rec.snaps[0].ZoneID != "east" {
		t.Errorf("snapshot zone: got %+v, want east", f.rec.snaps)
	}
}

func TestProcessObservationsMalformed(t *testing.T) {
	f := newFixture(t)
	mux := newMux(f, detection.None{}, 1<<20, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/process/observations", strings.NewReader(`{"observations":[{"bbox":[1,2]}]}`)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestSimulateCount(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		body      string
		want      int
		wantCount float64
	}{
		{"query", "/simulate/count?count=3", "", http.StatusOK, 3},
		{"json", "/simulate/count", `{"count":9,"zone_id":"west"}`, http.StatusOK, 9},
		{"zero", "/simulate/count?count=0", "", http.StatusOK, 0},
		{"negative", "/simulate/count?count=-1", "", http.StatusBadRequest, 0},
		{"not a number", "/simulate/count?count=many", "", http.StatusBadRequest, 0},
		{"missing", "/simulate/count", "", http.StatusBadRequest, 0},
		{"json without count", "/simulate/count", `{"zone_id":"west"}`, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			mux := newMux(f, detection.None{}, 1<<20, nil)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("POST", tt.target, strings.NewReader(tt.body)))

			if rec.Code != tt.want {
				t.Fatalf("status: got %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
			if tt.want != http.StatusOK {
				return
			}
			body := decodeBody(t, rec)
			if body["count"] != tt.wantCount {
				t.Errorf("count: got %v, want %v", body["count"], tt.wantCount)
			}
			if _, ok := body["message"]; !ok {
				t.Errorf("message missing: %v", body)
			}
		})
	}
}

func TestSimulateCountRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
	}
	mux := newMux(f, detection.None{}, 1<<20, deny)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/simulate/count?count=3", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status: got %d, want 403", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/count/current", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("current status: got %d, want 200", rec.Code)
	}
}
