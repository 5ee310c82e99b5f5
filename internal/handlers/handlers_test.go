package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rmitchellscott/inkprep/internal/database"
	"github.com/rmitchellscott/inkprep/internal/display"
	"github.com/rmitchellscott/inkprep/internal/imageprocessing"
	"github.com/rmitchellscott/inkprep/internal/middleware"
	"github.com/rmitchellscott/inkprep/internal/offload"
	"github.com/rmitchellscott/inkprep/internal/sse"
	"github.com/rmitchellscott/inkprep/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router   *gin.Engine
	handler  *Handler
	sessions *offload.Sessions
}

func newTestServer(t *testing.T, mutate func(*Deps)) *testServer {
	t.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	events := sse.NewService()
	sessions := offload.NewSessions(imageprocessing.Prepare, 0, events)
	t.Cleanup(sessions.Close)

	deps := Deps{
		Sessions:   sessions,
		Events:     events,
		DB:         db,
		Images:     database.NewImageService(db, storage.NewFilesystemBackend(t.TempDir())),
		FeedStates: database.NewFeedStateService(db),
	}
	if mutate != nil {
		mutate(&deps)
	}
	h := New(deps)

	router := gin.New()
	h.RegisterRoutes(router.Group("/api"), middleware.NewIPRateLimiter(0, 1))
	return &testServer{router: router, handler: h, sessions: sessions}
}

func (s *testServer) do(t *testing.T, method, path string, body []byte, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if len(body) > 0 && body[0] == '{' {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %q", w.Body.String())
	}
	return body
}

func samplePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 255 / width), uint8(y * 255 / height), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestListDisplays(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodGet, "/api/displays", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Displays []display.Description `json:"displays"`
		Methods  []string              `json:"methods"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Displays) != 7 {
		t.Fatalf("got %d displays, want 7", len(resp.Displays))
	}
	if len(resp.Methods) == 0 || resp.Methods[0] != string(imageprocessing.MethodFloydSteinberg) {
		t.Errorf("methods = %v, want floyd-steinberg first", resp.Methods)
	}
	for _, d := range resp.Displays {
		if d.ID == "phat104" {
			if d.Width != 212 || d.Height != 104 || len(d.Palettes) != 3 {
				t.Errorf("phat104 = %+v", d)
			}
			if d.Palettes[0].Colors[0] != "#ffffff" {
				t.Errorf("first pHAT color = %s, want white", d.Palettes[0].Colors[0])
			}
		}
	}
}

func TestDimensions(t *testing.T) {
	s := newTestServer(t, nil)
	tests := []struct {
		name     string
		body     []byte
		wantCode int
		wantKind string
	}{
		{"png", samplePNG(t, 31, 17), http.StatusOK, ""},
		{"garbage", []byte("definitely not an image"), http.StatusUnprocessableEntity, "unrecognized_format"},
		{"truncated", samplePNG(t, 4, 4)[:12], http.StatusUnprocessableEntity, "truncated_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/utils/dimensions", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			body := decodeBody(t, w)
			if tt.wantKind != "" {
				if body["kind"] != tt.wantKind {
					t.Errorf("kind = %v, want %s", body["kind"], tt.wantKind)
				}
				return
			}
			if body["width"] != 31.0 || body["height"] != 17.0 || body["format"] != "png" {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestDither(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.MaxUploadBytes = 64 * 1024 })
	src := base64.StdEncoding.EncodeToString(samplePNG(t, 64, 48))

	t.Run("ok", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/utils/dither", mustJSON(t, gin.H{
			"image": "data:image/png;base64," + src, "display": "phat104", "palette": "yellow",
		}))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		data, err := base64.StdEncoding.DecodeString(body["image"].(string))
		if err != nil {
			t.Fatal(err)
		}
		cfg, err := png.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("response image is not a PNG: %v", err)
		}
		if cfg.Width != 212 || cfg.Height != 104 {
			t.Errorf("size = %dx%d, want 212x104", cfg.Width, cfg.Height)
		}
		if body["palette"] != "yellow" || body["method"] != "floyd-steinberg" {
			t.Errorf("body = %v", body)
		}
	})

	failures := []struct {
		name     string
		body     []byte
		wantCode int
	}{
		{"missing image", mustJSON(t, gin.H{"display": "phat104"}), http.StatusBadRequest},
		{"unknown display", mustJSON(t, gin.H{"image": src, "display": "kindle"}), http.StatusBadRequest},
		{"unsupported palette", mustJSON(t, gin.H{"image": src, "display": "spectra480", "palette": "red"}), http.StatusBadRequest},
		{"unknown method", mustJSON(t, gin.H{"image": src, "display": "phat104", "method": "halftone"}), http.StatusBadRequest},
		{"bad base64", mustJSON(t, gin.H{"image": "@@@", "display": "phat104"}), http.StatusBadRequest},
		{"not json", []byte("{"), http.StatusBadRequest},
		{"not an image", mustJSON(t, gin.H{"image": base64.StdEncoding.EncodeToString([]byte("hello world")), "display": "phat104"}), http.StatusUnprocessableEntity},
		{"too large", mustJSON(t, gin.H{"image": base64.StdEncoding.EncodeToString(make([]byte, 70*1024)), "display": "phat104"}), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/utils/dither", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if decodeBody(t, w)["error"] == "" {
				t.Error("error message missing")
			}
		})
	}
}

func TestDitherClientGone(t *testing.T) {
	s := newTestServer(t, nil)
	body := mustJSON(t, gin.H{
		"image":   base64.StdEncoding.EncodeToString(samplePNG(t, 64, 48)),
		"display": "phat104",
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/utils/dither", bytes.NewReader(body)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code == http.StatusInternalServerError || w.Body.Len() != 0 {
		t.Errorf("cancelled dither wrote %d: %s", w.Code, w.Body.String())
	}
}

func submit(t *testing.T, s *testServer, session string, body gin.H) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/sessions/"+session+"/jobs", mustJSON(t, body))
	if w.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d: %s", w.Code, w.Body.String())
	}
	return decodeBody(t, w)["job_id"].(string)
}

func TestSessionJobLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	src := base64.StdEncoding.EncodeToString(samplePNG(t, 300, 200))

	jobID := submit(t, s, "kitchen", gin.H{
		"image":   src,
		"display": "phat122",
		"crop":    gin.H{"x": 10, "y": 10, "width": 250, "height": 122},
	})

	w := s.do(t, http.MethodGet, "/api/sessions/kitchen/result?wait=10s&save=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("result status = %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Job-ID"); got != jobID {
		t.Errorf("X-Job-ID = %s, want %s", got, jobID)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %s", ct)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	if err != nil || cfg.Width != 250 || cfg.Height != 122 {
		t.Fatalf("result PNG = %+v, %v", cfg, err)
	}
	imageID := w.Header().Get("X-Image-ID")
	if imageID == "" {
		t.Fatal("save=true did not store the image")
	}

	w = s.do(t, http.MethodGet, "/api/images", nil)
	if body := decodeBody(t, w); body["total"] != 1.0 {
		t.Fatalf("list = %v", body)
	}

	w = s.do(t, http.MethodGet, "/api/images/"+imageID+"/png", nil)
	if w.Code != http.StatusOK || !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatalf("png status = %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	w = s.do(t, http.MethodGet, "/api/images/"+imageID+"/png", nil, "If-None-Match", etag)
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional GET status = %d, want 304", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/images/stats", nil)
	if body := decodeBody(t, w); body["total_images"] != 1.0 {
		t.Errorf("stats = %v", body)
	}

	if w = s.do(t, http.MethodDelete, "/api/images/"+imageID, nil); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w = s.do(t, http.MethodGet, "/api/images/"+imageID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/status", nil)
	jobs := decodeBody(t, w)["jobs"].(map[string]any)
	if jobs["submitted"] != 1.0 || jobs["completed"] != 1.0 {
		t.Errorf("jobs = %v", jobs)
	}
}

func TestSessionJobFailures(t *testing.T) {
	s := newTestServer(t, nil)
	src := samplePNG(t, 100, 100)

	tests := []struct {
		name     string
		body     gin.H
		wantKind string
	}{
		{"truncated", gin.H{"image": base64.StdEncoding.EncodeToString(src[:20]), "display": "phat104"}, "truncated_input"},
		{"crop outside", gin.H{
			"image":   base64.StdEncoding.EncodeToString(src),
			"display": "phat104",
			"crop":    gin.H{"x": 50, "y": 0, "width": 80, "height": 40},
		}, "invalid_geometry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobID := submit(t, s, "fail", tt.body)
			w := s.do(t, http.MethodGet, "/api/sessions/fail/result?wait=10s", nil)
			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d: %s", w.Code, w.Body.String())
			}
			body := decodeBody(t, w)
			if body["kind"] != tt.wantKind || body["job_id"] != jobID {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestSessionRequestValidation(t *testing.T) {
	s := newTestServer(t, nil)
	src := base64.StdEncoding.EncodeToString(samplePNG(t, 8, 8))

	tests := []struct {
		name     string
		method   string
		path     string
		body     []byte
		wantCode int
	}{
		{"bad session id", http.MethodPost, "/api/sessions/a.b/jobs", mustJSON(t, gin.H{"image": src, "display": "phat104"}), http.StatusBadRequest},
		{"negative crop", http.MethodPost, "/api/sessions/x/jobs", mustJSON(t, gin.H{"image": src, "display": "phat104", "crop": gin.H{"x": -1, "y": 0, "width": 4, "height": 4}}), http.StatusBadRequest},
		{"empty crop", http.MethodPost, "/api/sessions/x/jobs", mustJSON(t, gin.H{"image": src, "display": "phat104", "crop": gin.H{"x": 0, "y": 0, "width": 0, "height": 4}}), http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/api/sessions/nobody/result?wait=1ms", nil, http.StatusNotFound},
		{"bad wait", http.MethodGet, "/api/sessions/x/result?wait=soon", nil, http.StatusBadRequest},
		{"bad image id", http.MethodGet, "/api/images/not-a-uuid", nil, http.StatusBadRequest},
		{"no feed", http.MethodGet, "/api/feed", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}

func TestResultTimesOutWithNoContent(t *testing.T) {
	s := newTestServer(t, nil)
	s.sessions.Get("idle")

	start := time.Now()
	w := s.do(t, http.MethodGet, "/api/sessions/idle/result?wait=20ms", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("wait was not honoured")
	}
}

func TestCancelAndDeleteSession(t *testing.T) {
	s := newTestServer(t, nil)
	s.sessions.Get("gone")

	if w := s.do(t, http.MethodDelete, "/api/sessions/gone/jobs", nil); w.Code != http.StatusNoContent {
		t.Errorf("cancel status = %d", w.Code)
	}
	if w := s.do(t, http.MethodDelete, "/api/sessions/gone", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", w.Code)
	}
	if _, ok := s.sessions.Lookup("gone"); ok {
		t.Error("session still present after delete")
	}
}

func TestFeedStatus(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.FeedName = "frame" })
	w := s.do(t, http.MethodGet, "/api/feed", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := decodeBody(t, w); body["name"] != "frame" {
		t.Errorf("body = %v", body)
	}
}
