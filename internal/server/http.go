// Package server exposes the session pipeline over an HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/pcm-caption-service/internal/audio"
	"github.com/skypro1111/pcm-caption-service/internal/config"
	"github.com/skypro1111/pcm-caption-service/internal/metrics"
	"github.com/skypro1111/pcm-caption-service/internal/session"
	"github.com/skypro1111/pcm-caption-service/internal/transcription"
)

// HTTPServer provides the caption API plus monitoring endpoints
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	sessionMgr *session.Manager
	engine     *transcription.Client // nil when a custom engine is injected
	metrics    *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, sessionMgr *session.Manager, engine *transcription.Client, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		sessionMgr: sessionMgr,
		engine:     engine,
		metrics:    m,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Session-based streaming API
	mux.HandleFunc("/v1/sessions", h.withMetrics("/v1/sessions", h.handleSessions))
	mux.HandleFunc("/v1/sessions/", h.withMetrics("/v1/sessions/{id}", h.handleSessionDetail))

	// Single-shot transcription
	mux.HandleFunc("/v1/transcribe", h.withMetrics("/v1/transcribe", h.handleTranscribe))

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleSessions implements the /v1/sessions endpoint (list all sessions)
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos := h.sessionMgr.GetAllSessions()

	response := map[string]interface{}{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleSessionDetail dispatches /v1/sessions/{id} and its sub-resources.
//
//	POST   /v1/sessions/{id}/audio     append raw PCM, run a round when ready
//	POST   /v1/sessions/{id}/finalize  flush and render everything pending
//	GET    /v1/sessions/{id}           session snapshot
//	GET    /v1/sessions/{id}/srt       rendered captions only
//	DELETE /v1/sessions/{id}           clear the session cache
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	sessionID, action, _ := strings.Cut(rest, "/")
	if sessionID == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	switch {
	case r.Method == http.MethodPost && action == "audio":
		h.handleAppendAudio(w, r, sessionID)
	case r.Method == http.MethodPost && action == "finalize":
		h.handleFinalize(w, r, sessionID)
	case r.Method == http.MethodGet && action == "":
		h.handleSessionInfo(w, r, sessionID)
	case r.Method == http.MethodGet && action == "srt":
		h.handleSessionSRT(w, r, sessionID)
	case r.Method == http.MethodDelete && action == "":
		h.handleClearSession(w, r, sessionID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAppendAudio implements POST /v1/sessions/{id}/audio. The body is raw
// PCM in the layout declared by query parameters.
func (h *HTTPServer) handleAppendAudio(w http.ResponseWriter, r *http.Request, sessionID string) {
	req, ok := h.buildRequest(w, r, sessionID)
	if !ok {
		return
	}

	result, err := h.sessionMgr.Process(r.Context(), req)
	h.writeResult(w, result, err)
}

// handleFinalize implements POST /v1/sessions/{id}/finalize. An optional body
// carries trailing audio.
func (h *HTTPServer) handleFinalize(w http.ResponseWriter, r *http.Request, sessionID string) {
	req, ok := h.buildRequest(w, r, sessionID)
	if !ok {
		return
	}
	req.Finalize = true

	result, err := h.sessionMgr.Process(r.Context(), req)
	h.writeResult(w, result, err)
}

// handleClearSession implements DELETE /v1/sessions/{id}
func (h *HTTPServer) handleClearSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	result, err := h.sessionMgr.Process(r.Context(), session.Request{
		SessionID:  sessionID,
		ClearCache: true,
	})
	h.writeResult(w, result, err)
}

// handleSessionInfo implements GET /v1/sessions/{id}
func (h *HTTPServer) handleSessionInfo(w http.ResponseWriter, r *http.Request, sessionID string) {
	info, exists := h.sessionMgr.GetSessionInfo(sessionID)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

// handleSessionSRT implements GET /v1/sessions/{id}/srt, returning the
// rendered captions as plain text.
func (h *HTTPServer) handleSessionSRT(w http.ResponseWriter, r *http.Request, sessionID string) {
	info, exists := h.sessionMgr.GetSessionInfo(sessionID)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, info.Content)
}

// handleTranscribe implements POST /v1/transcribe: one whole buffer in, one
// timestamped transcript out, no session state. A body with Content-Type
// audio/wav is decoded; any other body is raw PCM described by query
// parameters.
func (h *HTTPServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.HTTP.MaxRequestBody))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusRequestEntityTooLarge)
		return
	}

	opts := session.OnceOptions{
		Language:   r.URL.Query().Get("language"),
		Format:     audio.PCMFormat(r.URL.Query().Get("format")),
		SampleRate: queryInt(r, "sample_rate", 0),
		Channels:   queryInt(r, "channels", 0),
		TimeOffset: queryFloat(r, "time_offset", 0),
	}

	raw := body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "audio/wav") {
		samples, rate, err := audio.DecodeWAV(body)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid WAV payload: %v", err), http.StatusBadRequest)
			return
		}
		raw = audio.EncodeInt16(samples)
		opts.Format = audio.FormatInt16
		opts.SampleRate = rate
		opts.Channels = 1
	}

	content, err := h.sessionMgr.TranscribeOnce(r.Context(), raw, opts)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "completed",
		"content": content,
	})
}

// buildRequest assembles a session.Request from the HTTP request. Returns
// false after writing an error response.
func (h *HTTPServer) buildRequest(w http.ResponseWriter, r *http.Request, sessionID string) (session.Request, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.HTTP.MaxRequestBody))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusRequestEntityTooLarge)
		return session.Request{}, false
	}

	return session.Request{
		SessionID:           sessionID,
		Audio:               body,
		Format:              audio.PCMFormat(r.URL.Query().Get("format")),
		SampleRate:          queryInt(r, "sample_rate", 0),
		Channels:            queryInt(r, "channels", 0),
		Language:            r.URL.Query().Get("language"),
		TimeOffset:          queryFloat(r, "time_offset", 0),
		TargetBufferSeconds: queryFloat(r, "target_buffer", 0),
	}, true
}

// writeResult maps a manager result and error to an HTTP response. Error
// statuses keep the structured body so clients always get JSON.
func (h *HTTPServer) writeResult(w http.ResponseWriter, result *session.Result, err error) {
	status := http.StatusOK
	if err != nil {
		status = errorStatusCode(err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}

// writeError maps a taxonomy error to a plain JSON error response.
func (h *HTTPServer) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errorStatusCode(err))
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "error",
		"message": err.Error(),
	})
}

// errorStatusCode maps the error taxonomy to HTTP status codes. Format and
// session errors are the caller's fault; engine errors are upstream failures.
func errorStatusCode(err error) int {
	var formatErr *session.FormatError
	var sessionErr *session.SessionError
	var engineErr *session.EngineError

	switch {
	case errors.As(err, &formatErr):
		return http.StatusBadRequest
	case errors.As(err, &sessionErr):
		return http.StatusBadRequest
	case errors.As(err, &engineErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)

	components := map[string]interface{}{
		"session_manager": map[string]interface{}{
			"status":          "running",
			"active_sessions": h.sessionMgr.ActiveSessionCount(),
		},
	}
	if h.engine != nil {
		engineStats := h.engine.GetStats()
		components["transcription"] = map[string]interface{}{
			"status":          "running",
			"total_requests":  engineStats.TotalRequests,
			"success_rate":    engineStats.SuccessRate,
			"active_requests": engineStats.ActiveRequests,
		}
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "pcm-caption-service",
			"version": "1.0.0",
		},
		"components": components,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"http": map[string]interface{}{
			"port":             h.config.HTTP.Port,
			"address":          h.config.HTTP.Address,
			"read_timeout":     h.config.HTTP.ReadTimeout,
			"write_timeout":    h.config.HTTP.WriteTimeout,
			"max_request_body": h.config.HTTP.MaxRequestBody,
		},
		"session": map[string]interface{}{
			"target_buffer_seconds": h.config.Session.TargetBufferSeconds,
			"loudness_threshold":    h.config.Session.LoudnessThreshold,
			"default_language":      h.config.Session.DefaultLanguage,
			"idle_timeout":          h.config.Session.IdleTimeout,
		},
		"vad": map[string]interface{}{
			"sensitivity":          h.config.VAD.Sensitivity,
			"min_speech_duration":  h.config.VAD.MinSpeechDuration,
			"min_silence_duration": h.config.VAD.MinSilenceDuration,
			"padding_duration":     h.config.VAD.PaddingDuration,
		},
		"transcription": map[string]interface{}{
			"endpoint":       h.config.Transcription.Endpoint,
			"timeout":        h.config.Transcription.Timeout,
			"max_retries":    h.config.Transcription.MaxRetries,
			"max_concurrent": h.config.Transcription.MaxConcurrent,
			// Note: API key is intentionally omitted for security
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"sessions": map[string]interface{}{
			"active_count": h.sessionMgr.ActiveSessionCount(),
		},
	}
	if h.engine != nil {
		stats["transcription"] = h.engine.GetStats()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "PCM Caption Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                               "API documentation",
			"POST /v1/sessions/{id}/audio":        "Append raw PCM audio to a session",
			"POST /v1/sessions/{id}/finalize":     "Flush a session and render all captions",
			"GET /v1/sessions":                    "List all active sessions",
			"GET /v1/sessions/{id}":               "Get detailed session information",
			"GET /v1/sessions/{id}/srt":           "Get rendered captions as plain text",
			"DELETE /v1/sessions/{id}":            "Clear session state",
			"POST /v1/transcribe":                 "Single-shot transcription of a whole buffer",
			"GET /health":                         "Service health check",
			"GET /config":                         "Get service configuration",
			"GET /stats":                          "Get service statistics",
			"GET /metrics":                        "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}

// queryInt parses an integer query parameter, falling back on absence or
// garbage.
func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func queryFloat(r *http.Request, key string, fallback float64) float64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
