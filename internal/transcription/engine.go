package transcription

import (
	"context"

	"github.com/skypro1111/pcm-caption-service/internal/caption"
)

// Request describes one segment of audio to transcribe. Samples must be
// non-empty mono float32 at 16kHz.
type Request struct {
	Samples    []float32
	SampleRate int
	Language   string
}

// Result is the engine's output for one request. Chunk timestamps are
// relative to 0.0 at the segment's own start; the caller rebases them into
// session-absolute time.
type Result struct {
	Chunks []caption.Chunk
}

// Engine is the external speech-to-text collaborator. Transcribe blocks until
// the engine responds; callers provide timeouts through the context.
type Engine interface {
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
