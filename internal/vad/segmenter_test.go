package vad

import (
	"errors"
	"math"
	"testing"
)

// speechFrame fills one 30ms frame with a 440Hz tone loud enough to pass the
// aggressive energy classifier.
func speechFrame(frameSize, sampleRate int) []int16 {
	frame := make([]int16, frameSize)
	for i := range frame {
		frame[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	return frame
}

// buildBuffer concatenates frames according to the pattern: 's' is a speech
// frame, '.' is a silent frame.
func buildBuffer(t *testing.T, pattern string, cfg Config) []int16 {
	t.Helper()
	speech := speechFrame(cfg.FrameSize, cfg.SampleRate)
	var buf []int16
	for _, c := range pattern {
		switch c {
		case 's':
			buf = append(buf, speech...)
		case '.':
			buf = append(buf, make([]int16, cfg.FrameSize)...)
		default:
			t.Fatalf("unknown pattern char %q", c)
		}
	}
	return buf
}

func repeat(c byte, n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = c
	}
	return string(out)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(16000)
	if cfg.FrameSize != 480 {
		t.Errorf("Expected frame size 480 at 16kHz, got %d", cfg.FrameSize)
	}
	if cfg.MinSpeechFrames != 8 {
		t.Errorf("Expected 8 min speech frames (250ms), got %d", cfg.MinSpeechFrames)
	}
	if cfg.MinSilenceFrames != 16 {
		t.Errorf("Expected 16 min silence frames (500ms), got %d", cfg.MinSilenceFrames)
	}
	if cfg.PaddingFrames != 13 {
		t.Errorf("Expected 13 padding frames (400ms), got %d", cfg.PaddingFrames)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"zero frame size", func(c *Config) { c.FrameSize = 0 }},
		{"sensitivity too high", func(c *Config) { c.Sensitivity = 4 }},
		{"zero min speech", func(c *Config) { c.MinSpeechFrames = 0 }},
		{"zero min silence", func(c *Config) { c.MinSilenceFrames = 0 }},
		{"negative padding", func(c *Config) { c.PaddingFrames = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(16000)
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestSegmentSingleUtterance(t *testing.T) {
	cfg := DefaultConfig(16000)
	seg, err := NewSegmenter(cfg, nil)
	if err != nil {
		t.Fatalf("NewSegmenter failed: %v", err)
	}

	// 20 silent frames, 20 speech frames, 20 silent frames.
	pattern := repeat('.', 20) + repeat('s', 20) + repeat('.', 20)
	samples := buildBuffer(t, pattern, cfg)

	segments := seg.Segment(samples)
	if len(segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(segments))
	}

	s := segments[0]
	if s.Fallback {
		t.Error("Detected segment should not be marked fallback")
	}

	// Speech starts at frame 20; padding pulls the start back 13 frames.
	wantStart := float64(20-13) * cfg.FrameDuration()
	if math.Abs(s.Start-wantStart) > 1e-9 {
		t.Errorf("Expected start %f, got %f", wantStart, s.Start)
	}

	// The segment ends at the last speech frame, excluding trailing silence.
	wantEnd := float64(40) * cfg.FrameDuration()
	if math.Abs(s.End-wantEnd) > 1e-9 {
		t.Errorf("Expected end %f, got %f", wantEnd, s.End)
	}

	if s.StartSample != (20-13)*cfg.FrameSize {
		t.Errorf("Expected start sample %d, got %d", (20-13)*cfg.FrameSize, s.StartSample)
	}
	if len(s.Samples) != s.EndSample-s.StartSample {
		t.Errorf("Sample slice length %d does not match span %d",
			len(s.Samples), s.EndSample-s.StartSample)
	}
}

func TestSegmentOrderingInvariants(t *testing.T) {
	cfg := DefaultConfig(16000)
	seg, err := NewSegmenter(cfg, nil)
	if err != nil {
		t.Fatalf("NewSegmenter failed: %v", err)
	}

	// Two utterances, the second running to the end of the buffer.
	pattern := repeat('.', 20) + repeat('s', 20) + repeat('.', 20) + repeat('s', 20)
	samples := buildBuffer(t, pattern, cfg)

	segments := seg.Segment(samples)
	if len(segments) != 2 {
		t.Fatalf("Expected 2 segments, got %d", len(segments))
	}

	for i, s := range segments {
		if s.Start >= s.End {
			t.Errorf("Segment %d: start %f not before end %f", i, s.Start, s.End)
		}
		if i > 0 && s.Start < segments[i-1].End {
			t.Errorf("Segment %d overlaps previous: start %f < previous end %f",
				i, s.Start, segments[i-1].End)
		}
	}

	// The trailing utterance ends exactly at the buffer end.
	last := segments[len(segments)-1]
	wantEnd := float64(80) * cfg.FrameDuration()
	if math.Abs(last.End-wantEnd) > 1e-9 {
		t.Errorf("Expected trailing segment to end at %f, got %f", wantEnd, last.End)
	}
}

func TestSegmentDiscardsShortBursts(t *testing.T) {
	cfg := DefaultConfig(16000)
	seg, err := NewSegmenter(cfg, nil)
	if err != nil {
		t.Fatalf("NewSegmenter failed: %v", err)
	}

	// A 5-frame burst (150ms) is below the 8-frame minimum.
	pattern := repeat('.', 20) + repeat('s', 5) + repeat('.', 30)
	samples := buildBuffer(t, pattern, cfg)

	segments := seg.Segment(samples)
	if len(segments) != 1 {
		t.Fatalf("Expected 1 fallback segment, got %d", len(segments))
	}
	if !segments[0].Fallback {
		t.Error("Expected the whole-buffer fallback segment")
	}
	if segments[0].StartSample != 0 || segments[0].EndSample != len(samples) {
		t.Errorf("Fallback segment should span the whole buffer, got [%d, %d) of %d",
			segments[0].StartSample, segments[0].EndSample, len(samples))
	}
}

func TestSegmentFallbackOnSilence(t *testing.T) {
	cfg := DefaultConfig(16000)
	seg, err := NewSegmenter(cfg, nil)
	if err != nil {
		t.Fatalf("NewSegmenter failed: %v", err)
	}

	samples := make([]int16, 48000)
	segments := seg.Segment(samples)

	if len(segments) != 1 {
		t.Fatalf("Expected 1 fallback segment, got %d", len(segments))
	}
	if !segments[0].Fallback {
		t.Error("Expected fallback flag on all-silence buffer")
	}
	if math.Abs(segments[0].End-3.0) > 1e-9 {
		t.Errorf("Expected fallback to cover 3.0s, got %f", segments[0].End)
	}
}

func TestSegmentEmptyBuffer(t *testing.T) {
	cfg := DefaultConfig(16000)
	seg, err := NewSegmenter(cfg, nil)
	if err != nil {
		t.Fatalf("NewSegmenter failed: %v", err)
	}

	if segments := seg.Segment(nil); len(segments) != 0 {
		t.Errorf("Expected no segments for empty buffer, got %d", len(segments))
	}
}

// failingClassifier always errors; the segmenter must treat every frame as
// non-speech instead of aborting.
type failingClassifier struct{}

func (failingClassifier) IsSpeech(frame []int16, sampleRate int) (bool, error) {
	return true, errors.New("classifier backend unavailable")
}

func TestSegmentClassifierFailureIsFailSafe(t *testing.T) {
	cfg := DefaultConfig(16000)
	seg, err := NewSegmenter(cfg, failingClassifier{})
	if err != nil {
		t.Fatalf("NewSegmenter failed: %v", err)
	}

	// Loud audio, but every classification errors: no detected segments,
	// just the whole-buffer fallback.
	samples := buildBuffer(t, repeat('s', 60), cfg)
	segments := seg.Segment(samples)

	if len(segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(segments))
	}
	if !segments[0].Fallback {
		t.Error("Failing classifier should degrade to the fallback segment")
	}
}

func TestSegmentPaddingClampedAtBufferStart(t *testing.T) {
	cfg := DefaultConfig(16000)
	seg, err := NewSegmenter(cfg, nil)
	if err != nil {
		t.Fatalf("NewSegmenter failed: %v", err)
	}

	// Speech from frame 2: padding would reach before the buffer start.
	pattern := repeat('.', 2) + repeat('s', 20) + repeat('.', 20)
	samples := buildBuffer(t, pattern, cfg)

	segments := seg.Segment(samples)
	if len(segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(segments))
	}
	if segments[0].Start != 0 {
		t.Errorf("Expected padded start clamped to 0, got %f", segments[0].Start)
	}
}

func TestEnergyClassifier(t *testing.T) {
	c := NewEnergyClassifier(3)

	speech := speechFrame(480, 16000)
	isSpeech, err := c.IsSpeech(speech, 16000)
	if err != nil {
		t.Fatalf("IsSpeech failed: %v", err)
	}
	if !isSpeech {
		t.Error("Loud tonal frame should classify as speech")
	}

	silence := make([]int16, 480)
	isSpeech, err = c.IsSpeech(silence, 16000)
	if err != nil {
		t.Fatalf("IsSpeech failed: %v", err)
	}
	if isSpeech {
		t.Error("Silent frame should classify as non-speech")
	}
}

func TestEnergyClassifierErrors(t *testing.T) {
	c := NewEnergyClassifier(3)

	if _, err := c.IsSpeech(nil, 16000); err == nil {
		t.Error("Expected error for empty frame")
	}
	if _, err := c.IsSpeech([]int16{1, 2, 3}, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}
