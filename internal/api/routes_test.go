package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bookscan/bookscan-server/internal/doctor"
	"github.com/bookscan/bookscan-server/internal/logging"
	"github.com/bookscan/bookscan-server/internal/pipeline"
	"github.com/bookscan/bookscan-server/internal/render"
)

type fakeConverter struct {
	t      *testing.T
	err    error
	active []pipeline.Status

	called   bool
	gotReq   pipeline.Request
	gotBody  string
	cleanups int
}

func (c *fakeConverter) Convert(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	c.called = true
	c.gotReq = req
	if req.Video != nil {
		b, _ := io.ReadAll(req.Video)
		c.gotBody = string(b)
	}
	if c.err != nil {
		return nil, c.err
	}

	path := filepath.Join(c.t.TempDir(), "out.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.3 fake"), 0o644); err != nil {
		c.t.Fatal(err)
	}
	return &pipeline.Result{
		ID:       "conv-1",
		Document: &render.Document{Path: path, Mode: render.ModeImages, Pages: 3},
		Frames:   3,
		Interval: 2,
		Mode:     render.ModeImages,
		Cleanup:  func() { c.cleanups++ },
	}, nil
}

func (c *fakeConverter) Active() []pipeline.Status {
	return c.active
}

type fakeDoctor struct {
	caps *doctor.Capabilities
	err  error
}

func (d *fakeDoctor) Get(ctx context.Context) (*doctor.Capabilities, error) {
	return d.caps, d.err
}

func testServerConfig(conv Converter) ServerConfig {
	return ServerConfig{
		MaxUploadBytes: 1 << 20,
		AllowedOrigins: testOrigins,
		Converter:      conv,
		Logger:         logging.Discard(),
		StartTime:      time.Now().Add(-90 * time.Second),
		Version:        "1.2.3",
	}
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body
}

func TestHomeHandler(t *testing.T) {
	router := NewRouter(testServerConfig(nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	if got := decodeJSONBody(t, rr)["status"]; got != "Backend Running Successfully" {
		t.Errorf("status = %v", got)
	}
}

func TestHealthHandler(t *testing.T) {
	router := NewRouter(testServerConfig(nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	body := decodeJSONBody(t, rr)
	if body["status"] != "ok" || body["version"] != "1.2.3" {
		t.Errorf("unexpected body %v", body)
	}
	if uptime, _ := body["uptime_s"].(float64); uptime < 90 {
		t.Errorf("uptime_s = %v, want >= 90", body["uptime_s"])
	}
}

func TestStatusHandler_NilDoctor(t *testing.T) {
	cfg := testServerConfig(&fakeConverter{t: t})

	rr := httptest.NewRecorder()
	statusHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decodeJSONBody(t, rr)
	if _, ok := body["capabilities"]; ok {
		t.Fatal("capabilities should be omitted when doctor is nil")
	}
	if body["state"] != "idle" {
		t.Errorf("state = %v, want idle", body["state"])
	}
	if active, ok := body["active"].([]interface{}); !ok || len(active) != 0 {
		t.Errorf("active = %v, want empty list", body["active"])
	}
}

func TestStatusHandler_WithCapabilities(t *testing.T) {
	cfg := testServerConfig(&fakeConverter{t: t, active: []pipeline.Status{
		{ID: "abc", Stage: pipeline.StageSampling, Mode: render.ModeText},
	}})
	cfg.Doctor = &fakeDoctor{caps: &doctor.Capabilities{
		Executables: map[string]doctor.DepInfo{"ffmpeg": {Available: true, Version: "6.1"}},
		Modes:       doctor.ModesInfo{Text: true, Images: true},
		ProbedAt:    time.Now(),
	}}

	rr := httptest.NewRecorder()
	statusHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	body := decodeJSONBody(t, rr)
	if body["state"] != "converting" {
		t.Errorf("state = %v, want converting", body["state"])
	}
	caps, ok := body["capabilities"].(map[string]interface{})
	if !ok {
		t.Fatal("capabilities missing from response")
	}
	modes, _ := caps["modes"].(map[string]interface{})
	if modes["text"] != true || modes["images"] != true {
		t.Errorf("modes = %v", modes)
	}
	active, _ := body["active"].([]interface{})
	if len(active) != 1 {
		t.Fatalf("active = %v, want one conversion", body["active"])
	}
	if stage := active[0].(map[string]interface{})["stage"]; stage != "sampling" {
		t.Errorf("stage = %v, want sampling", stage)
	}
}

func TestStatusHandler_ToolsMissing(t *testing.T) {
	cfg := testServerConfig(&fakeConverter{t: t})
	cfg.Doctor = &fakeDoctor{caps: &doctor.Capabilities{}}

	rr := httptest.NewRecorder()
	statusHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	if body := decodeJSONBody(t, rr); body["state"] != "unavailable" {
		t.Errorf("state = %v, want unavailable", body["state"])
	}
}

func TestStatusHandler_ProbeError(t *testing.T) {
	cfg := testServerConfig(&fakeConverter{t: t})
	cfg.Doctor = &fakeDoctor{err: errors.New("probe timed out")}

	rr := httptest.NewRecorder()
	statusHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	body := decodeJSONBody(t, rr)
	if body["probe_error"] != "probe timed out" {
		t.Errorf("probe_error = %v", body["probe_error"])
	}
	if _, ok := body["capabilities"]; ok {
		t.Error("capabilities present despite probe error")
	}
}

func TestMetricsRoute(t *testing.T) {
	router := NewRouter(testServerConfig(nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), "bookscan_in_flight_conversions") {
		t.Error("metrics output lacks the bookscan collectors")
	}
}

func TestNotFound(t *testing.T) {
	router := NewRouter(testServerConfig(nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sources", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusNotFound)
	}
	if body := decodeJSONBody(t, rr); body["code"] != CodeNotFound {
		t.Errorf("code = %v", body["code"])
	}
}

func TestRouter_PreflightNeverReachesUpload(t *testing.T) {
	conv := &fakeConverter{t: t}
	router := NewRouter(testServerConfig(conv))

	req := httptest.NewRequest(http.MethodOptions, "/upload", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	if conv.called {
		t.Error("preflight reached the converter")
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q", got)
	}
}

// multipartBody builds an upload form. An empty filename sends the video
// part without a filename.
func multipartBody(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if content != "" || filename != "" {
		var (
			part io.Writer
			err  error
		)
		if filename == "" {
			part, err = mw.CreateFormField("video")
		} else {
			part, err = mw.CreateFormFile("video", filename)
		}
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(part, content)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}
