package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skypro1111/pcm-caption-service/internal/audio"
	"github.com/skypro1111/pcm-caption-service/internal/caption"
	"github.com/skypro1111/pcm-caption-service/internal/metrics"
	"github.com/skypro1111/pcm-caption-service/internal/transcription"
	"github.com/skypro1111/pcm-caption-service/internal/vad"
)

// Status identifies the outcome of one call into the manager. Buffering is an
// explicit pending status, distinct from both success and failure; no status
// is process-fatal.
type Status string

const (
	StatusBuffering    Status = "buffering"
	StatusProcessing   Status = "processing"
	StatusNoSpeech     Status = "no_speech_detected"
	StatusCompleted    Status = "completed"
	StatusCacheCleared Status = "cache_cleared"
	StatusError        Status = "error"
)

// Request carries one call's input into the manager. Audio bytes are raw PCM
// in the declared format; calls on the same session id must be serialized by
// the caller, calls on distinct ids are fully independent.
type Request struct {
	SessionID string
	Audio     []byte

	SampleRate int             // 0 defaults to audio.TargetSampleRate
	Format     audio.PCMFormat // "" defaults to int16
	Channels   int             // 0 defaults to 1; streaming sessions are mono
	Language   string

	// TimeOffset shifts all absolute timestamps produced for this session.
	TimeOffset float64

	// TargetBufferSeconds overrides the configured readiness threshold for
	// this call; 0 keeps the configured default.
	TargetBufferSeconds float64

	// Finalize forces processing of whatever remains, submitting every
	// segment with no withholding. The session stays warm afterwards.
	Finalize bool

	// ClearCache deletes the session outright. Irreversible; the id may be
	// reused to start fresh.
	ClearCache bool
}

// Result is the structured outcome of one call.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`

	// Content is the full rendered caption block, not just this round's
	// delta, on any round that produced chunks and on finalize.
	Content string `json:"content,omitempty"`

	BufferedSeconds  float64 `json:"buffered_seconds,omitempty"`
	ProcessedSeconds float64 `json:"processed_seconds,omitempty"`
	TotalProcessed   float64 `json:"total_processed,omitempty"`
	CurrentChunks    int     `json:"current_chunks,omitempty"`
	TotalChunks      int     `json:"total_chunks,omitempty"`
	IsFinal          bool    `json:"is_final"`
}

// Config contains manager configuration.
type Config struct {
	// TargetBufferSeconds is how much audio a session accumulates before a
	// round runs. Defaults to 3.0.
	TargetBufferSeconds float64

	// LoudnessThreshold is the energy gate cutoff on mean absolute int16
	// amplitude. Defaults to audio.DefaultLoudnessThreshold; <= 0 disables
	// the gate.
	LoudnessThreshold float64

	// DefaultLanguage is used when a request does not declare one.
	DefaultLanguage string

	// VAD is the segmenter configuration template. FrameSize and SampleRate
	// are derived per session from its declared sample rate.
	VAD vad.Config

	// IdleTimeout evicts sessions untouched for longer than this. Zero
	// disables eviction, preserving sessions until an explicit clear.
	IdleTimeout time.Duration
}

// Manager owns all session state and runs the per-round pipeline: readiness
// gating, overlap stitching, energy gate, segmentation, engine calls,
// timestamp reconciliation, and rendering.
type Manager struct {
	config     Config
	engine     transcription.Engine
	classifier vad.FrameClassifier // nil uses the built-in energy classifier
	resampler  audio.ResampleFunc
	store      *store
	logger     *slog.Logger
	metrics    *metrics.Metrics // optional

	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClassifier injects an external per-frame VAD primitive.
func WithClassifier(c vad.FrameClassifier) Option {
	return func(m *Manager) { m.classifier = c }
}

// WithResampler injects an external resampling primitive.
func WithResampler(r audio.ResampleFunc) Option {
	return func(m *Manager) { m.resampler = r }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// NewManager creates a session manager. The engine is the external
// transcription collaborator and must not be nil.
func NewManager(logger *slog.Logger, engine transcription.Engine, config Config, opts ...Option) (*Manager, error) {
	if engine == nil {
		return nil, fmt.Errorf("transcription engine cannot be nil")
	}
	if config.TargetBufferSeconds <= 0 {
		config.TargetBufferSeconds = 3.0
	}
	if config.LoudnessThreshold == 0 {
		config.LoudnessThreshold = audio.DefaultLoudnessThreshold
	}
	if config.VAD.SampleRate == 0 {
		config.VAD = vad.DefaultConfig(audio.TargetSampleRate)
	}
	if err := config.VAD.Validate(); err != nil {
		return nil, fmt.Errorf("invalid VAD config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:  config,
		engine:  engine,
		store:   newStore(),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		cleanup: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	if config.IdleTimeout > 0 {
		go m.evictionLoop()
	} else {
		close(m.cleanup)
	}

	return m, nil
}

// Process handles one call on a session: cache clear, finalize, or append
// plus a round when the buffer is ready. Every call path returns a structured
// Result; the error return carries the taxonomy type for transport mapping.
func (m *Manager) Process(ctx context.Context, req Request) (*Result, error) {
	if req.SessionID == "" {
		err := &SessionError{Reason: "session id is required"}
		return &Result{Status: StatusError, Message: err.Error()}, err
	}

	if req.ClearCache {
		return m.clearCache(req.SessionID), nil
	}

	applyRequestDefaults(&req, m.config)

	if len(req.Audio) > 0 {
		if err := validateAudio(&req); err != nil {
			return &Result{Status: StatusError, Message: err.Error()}, err
		}
	}

	if req.Finalize {
		return m.finalize(ctx, req)
	}

	if len(req.Audio) == 0 {
		// An empty append on a live session is the original's end-of-stream
		// signal: process whatever remains.
		if _, ok := m.store.get(req.SessionID); ok {
			return m.finalize(ctx, req)
		}
		err := &SessionError{Reason: "first call for a session must provide audio data"}
		return &Result{Status: StatusError, Message: err.Error()}, err
	}

	state, created := m.store.getOrCreate(req.SessionID, func() *State {
		now := time.Now()
		return &State{
			id:           req.SessionID,
			sampleRate:   req.SampleRate,
			format:       req.Format,
			language:     req.Language,
			createdAt:    now,
			lastActivity: now,
		}
	})
	if created {
		if m.metrics != nil {
			m.metrics.SessionsCreated.Inc()
			m.metrics.ActiveSessions.Set(float64(m.store.count()))
		}
		m.logger.Info("Session created",
			slog.String("session_id", req.SessionID),
			slog.Int("sample_rate", req.SampleRate),
			slog.String("format", string(req.Format)),
		)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if req.SampleRate != state.sampleRate || req.Format != state.format {
		err := formatErrorf("audio layout changed mid-session: session is %s@%d, request is %s@%d",
			state.format, state.sampleRate, req.Format, req.SampleRate)
		return &Result{Status: StatusError, Message: err.Error()}, err
	}

	state.lastActivity = time.Now()
	if state.language == "" {
		state.language = req.Language
	}

	state.pending = append(state.pending, req.Audio...)
	buffered := audio.Duration(len(state.pending), state.format, state.sampleRate)

	if buffered < req.TargetBufferSeconds {
		m.logger.Debug("Buffer accumulating",
			slog.String("session_id", req.SessionID),
			slog.Float64("buffered_seconds", buffered),
			slog.Float64("target_seconds", req.TargetBufferSeconds),
		)
		return &Result{
			Status:          StatusBuffering,
			BufferedSeconds: buffered,
			Message: fmt.Sprintf("audio buffer accumulating (%.2fs / %.2fs)",
				buffered, req.TargetBufferSeconds),
		}, nil
	}

	return m.runRound(ctx, state, req, false)
}

// clearCache deletes session state outright. Clearing an unknown id is a
// successful no-op.
func (m *Manager) clearCache(sessionID string) *Result {
	existed := m.store.delete(sessionID)
	if m.metrics != nil {
		if existed {
			m.metrics.SessionsCleared.Inc()
		}
		m.metrics.ActiveSessions.Set(float64(m.store.count()))
	}
	m.logger.Info("Session cache cleared",
		slog.String("session_id", sessionID),
		slog.Bool("existed", existed),
	)
	return &Result{Status: StatusCacheCleared, Message: "cache cleared"}
}

// finalize forces a round over overlap plus any remainder, submitting every
// segment. The session becomes quiescent but is not deleted.
func (m *Manager) finalize(ctx context.Context, req Request) (*Result, error) {
	state, ok := m.store.get(req.SessionID)
	if !ok {
		// Nothing buffered, nothing accumulated: completed with empty content.
		return &Result{Status: StatusCompleted, Content: "", IsFinal: true,
			Message: "session processing completed, no transcription results"}, nil
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	state.lastActivity = time.Now()
	if len(req.Audio) > 0 {
		state.pending = append(state.pending, req.Audio...)
	}

	return m.runRound(ctx, state, req, true)
}

// runRound executes one processing round over overlap ++ pending. The caller
// holds the state lock.
func (m *Manager) runRound(ctx context.Context, state *State, req Request, finalize bool) (*Result, error) {
	roundStart := time.Now()
	state.rounds++

	// Combined buffer: withheld tail first, then newly pended audio. Both are
	// consumed now; under normal flow each byte enters a round exactly once.
	combined := make([]byte, 0, len(state.overlap)+len(state.pending))
	combined = append(combined, state.overlap...)
	combined = append(combined, state.pending...)
	state.overlap = nil
	state.pending = nil

	combinedDur := audio.Duration(len(combined), state.format, state.sampleRate)
	processedBefore := state.processedDuration

	if len(combined) == 0 {
		if finalize {
			return m.finishRound(state, StatusCompleted, state.transcript.Render(), 0, combinedDur, roundStart), nil
		}
		return m.finishRound(state, StatusNoSpeech, "", 0, combinedDur, roundStart), nil
	}

	samples := audio.Int16View(combined, state.format)

	// Energy gate: a near-silent buffer never reaches frame classification.
	// The whole combined buffer is treated as one non-speech pass.
	if !audio.IsLoudEnough(samples, m.config.LoudnessThreshold) {
		if m.metrics != nil {
			m.metrics.RecordGateRejection()
			m.metrics.RecordCommittedAudio(combinedDur)
		}
		state.processedDuration += combinedDur
		m.logger.Debug("Energy gate rejected buffer",
			slog.String("session_id", state.id),
			slog.Float64("duration", combinedDur),
		)
		if finalize {
			return m.finishRound(state, StatusCompleted, state.transcript.Render(), 0, combinedDur, roundStart), nil
		}
		res := m.finishRound(state, StatusNoSpeech, "", 0, combinedDur, roundStart)
		res.ProcessedSeconds = combinedDur
		return res, nil
	}

	segmenter, err := m.segmenterFor(state.sampleRate)
	if err != nil {
		return &Result{Status: StatusError, Message: err.Error()}, err
	}
	segments := segmenter.Segment(samples)

	// Retention policy: a segment touching the buffer's end cannot be proven
	// complete, so outside of finalize the last segment is withheld. Its raw
	// bytes become the next round's overlap and its start marks how much of
	// this round is durably committed.
	effective := combinedDur
	withheld := 0
	if !finalize && len(segments) > 0 {
		last := segments[len(segments)-1]
		startByte := last.StartSample * state.format.SampleWidth()
		if startByte < len(combined) {
			state.overlap = append([]byte(nil), combined[startByte:]...)
		}
		segments = segments[:len(segments)-1]
		effective = last.Start
		withheld = 1
		m.logger.Debug("Withholding trailing segment",
			slog.String("session_id", state.id),
			slog.Float64("segment_start", last.Start),
			slog.Int("overlap_bytes", len(state.overlap)),
		)
	}
	if m.metrics != nil {
		m.metrics.RecordSegmentation(len(segments), withheld)
	}

	current, err := m.transcribeSegments(ctx, state, req, segments, processedBefore)
	if err != nil {
		engErr := &EngineError{Err: err}
		res := m.finishRound(state, StatusError, "", effective, combinedDur, roundStart)
		res.Message = engErr.Error()
		return res, engErr
	}

	state.processedDuration += effective
	state.segmentsCommitted += uint64(len(segments))
	if m.metrics != nil {
		m.metrics.RecordCommittedAudio(effective)
	}

	if len(current) > 0 {
		state.transcript.Append(current...)
	}

	status := StatusNoSpeech
	content := ""
	if finalize {
		status = StatusCompleted
		content = state.transcript.Render()
	} else if len(current) > 0 {
		status = StatusProcessing
		content = state.transcript.Render()
	}

	res := m.finishRound(state, status, content, effective, combinedDur, roundStart)
	res.CurrentChunks = len(current)
	if status == StatusNoSpeech {
		res.ProcessedSeconds = combinedDur
	}
	return res, nil
}

// transcribeSegments runs each committed segment through the engine and
// rebases the resulting chunks into session-absolute time.
func (m *Manager) transcribeSegments(ctx context.Context, state *State, req Request,
	segments []vad.Segment, processedBefore float64) ([]caption.Chunk, error) {

	var current []caption.Chunk
	for _, seg := range segments {
		engSamples := seg.Samples
		if state.sampleRate != audio.TargetSampleRate {
			resample := m.resampler
			if resample == nil {
				resample = audio.LinearResample
			}
			engSamples = resample(engSamples, state.sampleRate, audio.TargetSampleRate)
		}
		if len(engSamples) == 0 {
			continue
		}

		if m.metrics != nil {
			m.metrics.SegmentDuration.Observe(seg.End - seg.Start)
		}

		callStart := time.Now()
		state.engineCalls++
		result, err := m.engine.Transcribe(ctx, transcription.Request{
			Samples:    engSamples,
			SampleRate: audio.TargetSampleRate,
			Language:   state.language,
		})
		if m.metrics != nil {
			m.metrics.RecordEngineCall(err == nil, time.Since(callStart).Seconds())
		}
		if err != nil {
			state.engineFailures++
			m.logger.Error("Transcription engine call failed",
				slog.String("session_id", state.id),
				slog.Float64("segment_start", seg.Start),
				slog.Float64("segment_end", seg.End),
				slog.String("error", err.Error()),
			)
			return nil, err
		}

		base := processedBefore + req.TimeOffset + seg.Start
		current = append(current, caption.Rebase(result.Chunks, base)...)

		m.logger.Debug("Segment transcribed",
			slog.String("session_id", state.id),
			slog.Float64("abs_start", base),
			slog.Float64("abs_end", processedBefore+req.TimeOffset+seg.End),
			slog.Int("chunks", len(result.Chunks)),
		)
	}
	return current, nil
}

// finishRound assembles the common Result fields and records round metrics.
func (m *Manager) finishRound(state *State, status Status, content string,
	effective, combinedDur float64, roundStart time.Time) *Result {

	if m.metrics != nil {
		m.metrics.RecordRound(string(status), time.Since(roundStart).Seconds(), combinedDur)
	}

	return &Result{
		Status:         status,
		Content:        content,
		TotalProcessed: state.processedDuration,
		TotalChunks:    state.transcript.Len(),
		IsFinal:        status == StatusCompleted,
	}
}

// segmenterFor builds a segmenter for the session's sample rate, deriving the
// frame size from the configured frame duration.
func (m *Manager) segmenterFor(sampleRate int) (*vad.Segmenter, error) {
	cfg := m.config.VAD
	cfg.SampleRate = sampleRate
	cfg.FrameSize = sampleRate * vad.FrameDurationMS / 1000
	return vad.NewSegmenter(cfg, m.classifier)
}

// OnceOptions configures a single-shot transcription.
type OnceOptions struct {
	Format     audio.PCMFormat
	SampleRate int
	Channels   int
	Language   string
	TimeOffset float64
	Resampler  audio.ResampleFunc
}

// TranscribeOnce transcribes a whole buffer in one call, without VAD or
// session state. Backward jumps in the engine's internal clock are folded
// into an accumulating offset so the output timeline stays monotonic. Output
// is one "[start, end] text" line per chunk.
func (m *Manager) TranscribeOnce(ctx context.Context, raw []byte, opts OnceOptions) (string, error) {
	if opts.Format == "" {
		opts.Format = audio.FormatInt16
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = audio.TargetSampleRate
	}
	resampler := opts.Resampler
	if resampler == nil {
		resampler = m.resampler
	}

	samples, err := audio.Normalize(raw, audio.NormalizeOptions{
		Format:     opts.Format,
		SampleRate: opts.SampleRate,
		Channels:   opts.Channels,
		Resampler:  resampler,
	})
	if err != nil {
		return "", &FormatError{Reason: err.Error()}
	}
	if len(samples) == 0 {
		return "", &FormatError{Reason: "no audio data provided"}
	}

	language := opts.Language
	if language == "" {
		language = m.config.DefaultLanguage
	}

	result, err := m.engine.Transcribe(ctx, transcription.Request{
		Samples:    samples,
		SampleRate: audio.TargetSampleRate,
		Language:   language,
	})
	if err != nil {
		return "", &EngineError{Err: err}
	}

	aligned := caption.AlignContinuous(result.Chunks, opts.TimeOffset)

	var b strings.Builder
	for _, chunk := range aligned {
		fmt.Fprintf(&b, "[%.2f, %.2f] %s\n", chunk.Start, chunk.End, strings.TrimSpace(chunk.Text))
	}
	return b.String(), nil
}

// GetSessionInfo returns a snapshot of one session.
func (m *Manager) GetSessionInfo(sessionID string) (Info, bool) {
	state, ok := m.store.get(sessionID)
	if !ok {
		return Info{}, false
	}
	return state.snapshot(), true
}

// GetAllSessions returns snapshots of every live session.
func (m *Manager) GetAllSessions() []Info {
	infos := make([]Info, 0, m.store.count())
	m.store.forEach(func(id string, state *State) {
		infos = append(infos, state.snapshot())
	})
	return infos
}

// ActiveSessionCount returns the number of live sessions.
func (m *Manager) ActiveSessionCount() int {
	return m.store.count()
}

// Stop shuts down background routines. Session state is left in place.
func (m *Manager) Stop() {
	m.cancel()
	<-m.cleanup
	m.logger.Info("Session manager stopped",
		slog.Int("remaining_sessions", m.store.count()),
	)
}

// evictionLoop periodically removes sessions idle beyond the configured
// timeout. Without it, sessions live until an explicit clear.
func (m *Manager) evictionLoop() {
	defer close(m.cleanup)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	m.logger.Info("Session eviction routine started",
		slog.Duration("idle_timeout", m.config.IdleTimeout),
	)

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.evictIdleSessions()
		}
	}
}

func (m *Manager) evictIdleSessions() {
	now := time.Now()
	var expired []string
	m.store.forEach(func(id string, state *State) {
		if state.idle(now) > m.config.IdleTimeout {
			expired = append(expired, id)
		}
	})

	for _, id := range expired {
		if m.store.delete(id) {
			if m.metrics != nil {
				m.metrics.SessionsEvicted.Inc()
			}
			m.logger.Info("Evicted idle session", slog.String("session_id", id))
		}
	}
	if m.metrics != nil {
		m.metrics.ActiveSessions.Set(float64(m.store.count()))
	}
}

// applyRequestDefaults fills unset request fields from manager configuration.
func applyRequestDefaults(req *Request, cfg Config) {
	if req.SampleRate == 0 {
		req.SampleRate = audio.TargetSampleRate
	}
	if req.Format == "" {
		req.Format = audio.FormatInt16
	}
	if req.Channels == 0 {
		req.Channels = 1
	}
	if req.Language == "" {
		req.Language = cfg.DefaultLanguage
	}
	if req.TargetBufferSeconds <= 0 {
		req.TargetBufferSeconds = cfg.TargetBufferSeconds
	}
}

// validateAudio checks the declared layout of a streaming append. Failures
// leave session state untouched.
func validateAudio(req *Request) error {
	if !req.Format.Valid() {
		return formatErrorf("unsupported PCM format %q", req.Format)
	}
	if req.SampleRate <= 0 {
		return formatErrorf("sample rate must be positive, got %d", req.SampleRate)
	}
	if req.Channels != 1 {
		return formatErrorf("streaming sessions require mono audio, got %d channels", req.Channels)
	}
	width := req.Format.SampleWidth()
	if len(req.Audio)%width != 0 {
		return formatErrorf("byte length %d is not a multiple of the %d-byte sample width",
			len(req.Audio), width)
	}
	return nil
}
