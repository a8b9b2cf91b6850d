package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/skypro1111/pcm-caption-service/internal/caption"
	"github.com/skypro1111/pcm-caption-service/internal/config"
	"github.com/skypro1111/pcm-caption-service/internal/metrics"
	"github.com/skypro1111/pcm-caption-service/internal/session"
	"github.com/skypro1111/pcm-caption-service/internal/transcription"
)

type stubEngine struct{}

func (stubEngine) Transcribe(ctx context.Context, req transcription.Request) (*transcription.Result, error) {
	return &transcription.Result{
		Chunks: []caption.Chunk{{Text: "stub", Start: 0, End: 1}},
	}, nil
}

var (
	testMetricsOnce sync.Once
	testMetrics     *metrics.Metrics
)

// sharedMetrics returns a process-wide Metrics instance; promauto registers
// collectors globally, so it must be built once per test binary.
func sharedMetrics() *metrics.Metrics {
	testMetricsOnce.Do(func() {
		testMetrics = metrics.NewMetrics()
	})
	return testMetrics
}

func testConfig() *config.Config {
	return &config.Config{
		HTTP: config.HTTPConfig{
			Port:           8080,
			Address:        "127.0.0.1",
			ReadTimeout:    10,
			WriteTimeout:   10,
			MaxRequestBody: 1 << 20,
		},
		Session: config.SessionConfig{
			TargetBufferSeconds: 3.0,
			LoudnessThreshold:   100,
		},
		VAD: config.VADConfig{
			Sensitivity:        3,
			MinSpeechDuration:  0.25,
			MinSilenceDuration: 0.5,
			PaddingDuration:    0.4,
		},
		Transcription: config.TranscriptionConfig{
			Endpoint:      "http://localhost:9000/transcribe",
			Timeout:       30,
			MaxRetries:    3,
			MaxConcurrent: 10,
		},
		Logging: config.LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

func newTestServer(t *testing.T) *HTTPServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr, err := session.NewManager(logger, stubEngine{}, session.Config{})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(mgr.Stop)

	return NewHTTPServer(testConfig().HTTP, logger, testConfig(), mgr, nil, sharedMetrics())
}

func do(t *testing.T, h *HTTPServer, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", body["status"])
	}
}

func TestAppendAudioBuffering(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/v1/sessions/s1/audio", make([]byte, 32000))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result session.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if result.Status != session.StatusBuffering {
		t.Errorf("Expected buffering, got %s", result.Status)
	}
}

func TestAppendAudioBadFormat(t *testing.T) {
	h := newTestServer(t)

	// Odd byte count cannot be int16 PCM.
	rec := do(t, h, http.MethodPost, "/v1/sessions/s2/audio", make([]byte, 1001))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed audio, got %d", rec.Code)
	}
}

func TestClearSession(t *testing.T) {
	h := newTestServer(t)

	do(t, h, http.MethodPost, "/v1/sessions/s3/audio", make([]byte, 32000))

	rec := do(t, h, http.MethodDelete, "/v1/sessions/s3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var result session.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if result.Status != session.StatusCacheCleared {
		t.Errorf("Expected cache_cleared, got %s", result.Status)
	}

	if rec := do(t, h, http.MethodGet, "/v1/sessions/s3", nil); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after clear, got %d", rec.Code)
	}
}

func TestFinalizeUnknownSession(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/v1/sessions/ghost/finalize", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var result session.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if result.Status != session.StatusCompleted || !result.IsFinal {
		t.Errorf("Expected final completed result, got %+v", result)
	}
}

func TestListSessions(t *testing.T) {
	h := newTestServer(t)

	do(t, h, http.MethodPost, "/v1/sessions/a/audio", make([]byte, 32000))
	do(t, h, http.MethodPost, "/v1/sessions/b/audio", make([]byte, 32000))

	rec := do(t, h, http.MethodGet, "/v1/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body struct {
		TotalSessions int `json:"total_sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body.TotalSessions != 2 {
		t.Errorf("Expected 2 sessions, got %d", body.TotalSessions)
	}
}

func TestTranscribeEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/v1/transcribe", make([]byte, 32000))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Status  string `json:"status"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body.Status != "completed" {
		t.Errorf("Expected completed, got %s", body.Status)
	}
	if body.Content == "" {
		t.Error("Expected transcribed content")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(t)

	if rec := do(t, h, http.MethodPut, "/health", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/transcribe", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestErrorStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"format error", &session.FormatError{Reason: "bad"}, http.StatusBadRequest},
		{"session error", &session.SessionError{Reason: "bad"}, http.StatusBadRequest},
		{"engine error", &session.EngineError{Err: errors.New("down")}, http.StatusBadGateway},
		{"unknown error", errors.New("mystery"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorStatusCode(tt.err); got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}
