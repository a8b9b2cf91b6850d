// Package metrics exposes Prometheus instrumentation for the caption service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the PCM caption service.
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsCleared prometheus.Counter
	SessionsEvicted prometheus.Counter

	// Round metrics
	Rounds          *prometheus.CounterVec // by resulting status
	RoundDuration   prometheus.Histogram
	BufferedSeconds prometheus.Histogram
	GateRejections  prometheus.Counter

	// VAD metrics
	SegmentsEmitted  prometheus.Counter
	SegmentsWithheld prometheus.Counter
	SegmentDuration  prometheus.Histogram

	// Transcription engine metrics
	EngineRequests  prometheus.Counter
	EngineSuccesses prometheus.Counter
	EngineFailures  prometheus.Counter
	EngineDuration  prometheus.Histogram
	CommittedAudio  prometheus.Counter // seconds of audio durably committed

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics on the default
// registerer. Call at most once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "caption_active_sessions",
			Help: "Current number of live transcription sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caption_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsCleared: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caption_sessions_cleared_total",
			Help: "Total number of sessions removed by explicit cache clear",
		}),
		SessionsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caption_sessions_evicted_total",
			Help: "Total number of idle sessions evicted",
		}),

		Rounds: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "caption_rounds_total",
			Help: "Total number of processing rounds by resulting status",
		}, []string{"status"}),
		RoundDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "caption_round_duration_seconds",
			Help:    "Wall-clock duration of processing rounds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),
		BufferedSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "caption_round_buffered_audio_seconds",
			Help:    "Seconds of audio entering each processing round",
			Buckets: prometheus.LinearBuckets(0.5, 0.5, 12), // 0.5s to 6s
		}),
		GateRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caption_energy_gate_rejections_total",
			Help: "Total number of buffers rejected by the energy gate as near-silence",
		}),

		SegmentsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caption_segments_emitted_total",
			Help: "Total number of speech segments emitted by the segmenter",
		}),
		SegmentsWithheld: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caption_segments_withheld_total",
			Help: "Total number of trailing segments carried into the next round",
		}),
		SegmentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "caption_segment_duration_seconds",
			Help:    "Duration of speech segments submitted for transcription",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to ~1 minute
		}),

		EngineRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caption_engine_requests_total",
			Help: "Total number of transcription engine calls",
		}),
		EngineSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caption_engine_successes_total",
			Help: "Total number of successful engine calls",
		}),
		EngineFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caption_engine_failures_total",
			Help: "Total number of failed engine calls",
		}),
		EngineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "caption_engine_call_duration_seconds",
			Help:    "Duration of transcription engine calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		CommittedAudio: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caption_committed_audio_seconds_total",
			Help: "Total seconds of session audio durably committed",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "caption_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "caption_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "caption_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordRound records the outcome of one processing round.
func (m *Metrics) RecordRound(status string, durationSeconds, bufferedSeconds float64) {
	m.Rounds.WithLabelValues(status).Inc()
	m.RoundDuration.Observe(durationSeconds)
	if bufferedSeconds > 0 {
		m.BufferedSeconds.Observe(bufferedSeconds)
	}
}

// RecordGateRejection increments the energy gate rejection counter.
func (m *Metrics) RecordGateRejection() {
	m.GateRejections.Inc()
}

// RecordSegmentation records segmenter output for one round.
func (m *Metrics) RecordSegmentation(emitted, withheld int) {
	m.SegmentsEmitted.Add(float64(emitted))
	m.SegmentsWithheld.Add(float64(withheld))
}

// RecordEngineCall records one transcription engine call.
func (m *Metrics) RecordEngineCall(success bool, durationSeconds float64) {
	m.EngineRequests.Inc()
	if success {
		m.EngineSuccesses.Inc()
	} else {
		m.EngineFailures.Inc()
	}
	m.EngineDuration.Observe(durationSeconds)
}

// RecordCommittedAudio adds durably committed audio seconds.
func (m *Metrics) RecordCommittedAudio(seconds float64) {
	if seconds > 0 {
		m.CommittedAudio.Add(seconds)
	}
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error.
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
