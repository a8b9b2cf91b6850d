package session

import (
	"sync"
	"time"

	"github.com/skypro1111/pcm-caption-service/internal/audio"
	"github.com/skypro1111/pcm-caption-service/internal/caption"
)

// State holds everything the service remembers about one session between
// calls. It is created lazily on the first append for a session id, mutated
// by every subsequent call on that id, and destroyed only by an explicit
// cache clear. A finalize leaves the state in place so later appends re-open
// the session implicitly.
//
// All fields are guarded by mu; the manager holds the lock for the whole of
// each round, which gives per-session exclusivity while distinct sessions
// proceed in parallel.
type State struct {
	mu sync.Mutex

	id         string
	sampleRate int
	format     audio.PCMFormat
	language   string

	// pending holds appended audio not yet pulled into a round. overlap holds
	// the raw bytes of the withheld trailing segment from the previous round;
	// when non-empty it is always prefixed onto the next round's input.
	pending []byte
	overlap []byte

	// processedDuration is the session-absolute cut point in seconds. Audio
	// before it is durably committed; it never decreases.
	processedDuration float64

	transcript caption.Accumulator

	createdAt    time.Time
	lastActivity time.Time

	// Statistics
	rounds            uint64
	segmentsCommitted uint64
	engineCalls       uint64
	engineFailures    uint64
}

// Info is a point-in-time snapshot of a session for monitoring APIs.
type Info struct {
	ID                string  `json:"session_id"`
	SampleRate        int     `json:"sample_rate"`
	Format            string  `json:"format"`
	Language          string  `json:"language,omitempty"`
	BufferedSeconds   float64 `json:"buffered_seconds"`
	OverlapSeconds    float64 `json:"overlap_seconds"`
	ProcessedSeconds  float64 `json:"processed_seconds"`
	TotalChunks       int     `json:"total_chunks"`
	Rounds            uint64  `json:"rounds"`
	SegmentsCommitted uint64  `json:"segments_committed"`
	EngineCalls       uint64  `json:"engine_calls"`
	EngineFailures    uint64  `json:"engine_failures"`
	CreatedAt         time.Time `json:"created_at"`
	LastActivity      time.Time `json:"last_activity"`

	// Content is the full rendered caption block accumulated so far.
	Content string `json:"content,omitempty"`
}

// snapshot builds an Info while holding the state lock.
func (s *State) snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Info{
		ID:                s.id,
		SampleRate:        s.sampleRate,
		Format:            string(s.format),
		Language:          s.language,
		BufferedSeconds:   audio.Duration(len(s.pending), s.format, s.sampleRate),
		OverlapSeconds:    audio.Duration(len(s.overlap), s.format, s.sampleRate),
		ProcessedSeconds:  s.processedDuration,
		TotalChunks:       s.transcript.Len(),
		Rounds:            s.rounds,
		SegmentsCommitted: s.segmentsCommitted,
		EngineCalls:       s.engineCalls,
		EngineFailures:    s.engineFailures,
		CreatedAt:         s.createdAt,
		LastActivity:      s.lastActivity,
		Content:           s.transcript.Render(),
	}
}

// idle returns how long ago the session was last touched.
func (s *State) idle(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}
