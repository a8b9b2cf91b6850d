package vad

import (
	"fmt"
)

// FrameDurationMS is the duration of one classification frame in milliseconds.
const FrameDurationMS = 30

// DefaultFrameSize is the frame size in samples for 16kHz audio (30ms).
const DefaultFrameSize = 480

// Config contains segmenter parameters. A Config is immutable once handed to
// a Segmenter.
type Config struct {
	SampleRate       int
	FrameSize        int // samples per classification frame
	Sensitivity      int // 0 (permissive) to 3 (aggressive)
	MinSpeechFrames  int // minimum speech frames for a segment to be kept
	MinSilenceFrames int // silence run that closes a segment
	PaddingFrames    int // pre-roll frames prepended to a segment start
}

// DefaultConfig returns the segmenter configuration for 16kHz mono audio:
// 30ms frames, 250ms minimum speech, 500ms minimum silence, 400ms pre-roll.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:       sampleRate,
		FrameSize:        sampleRate * FrameDurationMS / 1000,
		Sensitivity:      3,
		MinSpeechFrames:  250 / FrameDurationMS,
		MinSilenceFrames: 500 / FrameDurationMS,
		PaddingFrames:    400 / FrameDurationMS,
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("frame size must be positive, got %d", c.FrameSize)
	}
	if c.Sensitivity < 0 || c.Sensitivity > 3 {
		return fmt.Errorf("sensitivity must be between 0 and 3, got %d", c.Sensitivity)
	}
	if c.MinSpeechFrames < 1 {
		return fmt.Errorf("min speech frames must be at least 1, got %d", c.MinSpeechFrames)
	}
	if c.MinSilenceFrames < 1 {
		return fmt.Errorf("min silence frames must be at least 1, got %d", c.MinSilenceFrames)
	}
	if c.PaddingFrames < 0 {
		return fmt.Errorf("padding frames cannot be negative, got %d", c.PaddingFrames)
	}
	return nil
}

// FrameDuration returns the duration of one frame in seconds.
func (c Config) FrameDuration() float64 {
	return float64(c.FrameSize) / float64(c.SampleRate)
}

// FrameClassifier labels a single fixed-size frame as speech or non-speech.
//
// A classifier failure must never abort segmentation: the segmenter treats any
// error as "non-speech". This fail-safe default is deliberate; a crashing or
// confused classifier degrades to silence detection instead of dropping audio.
type FrameClassifier interface {
	IsSpeech(frame []int16, sampleRate int) (bool, error)
}

// Segment is a contiguous span of audio judged to contain one utterance.
// Times are in seconds relative to the start of the segmented buffer.
type Segment struct {
	Samples     []float32 // mono samples in [-1, 1]
	Start       float64
	End         float64
	StartSample int // offset of the segment in the source buffer, in samples
	EndSample   int
	Fallback    bool // true for the whole-buffer segment emitted when no speech was found
}

// Segmenter partitions int16 PCM buffers into speech segments.
type Segmenter struct {
	config     Config
	classifier FrameClassifier
}

// NewSegmenter creates a segmenter with the given configuration and frame
// classifier. A nil classifier uses the built-in energy classifier.
func NewSegmenter(config Config, classifier FrameClassifier) (*Segmenter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid segmenter config: %w", err)
	}
	if classifier == nil {
		classifier = NewEnergyClassifier(config.Sensitivity)
	}
	return &Segmenter{config: config, classifier: classifier}, nil
}

// Config returns the segmenter configuration.
func (s *Segmenter) Config() Config {
	return s.config
}

// Segment splits a contiguous int16 mono buffer into ordered, non-overlapping
// speech segments. A trailing partial frame shorter than the frame size is
// excluded from classification but still covered by the fallback segment.
// If no segment is detected, a single segment spanning the entire buffer is
// returned so that no audio is silently dropped.
func (s *Segmenter) Segment(samples []int16) []Segment {
	frameSize := s.config.FrameSize
	frameCount := len(samples) / frameSize

	speech := make([]bool, frameCount)
	for i := 0; i < frameCount; i++ {
		frame := samples[i*frameSize : (i+1)*frameSize]
		isSpeech, err := s.classifier.IsSpeech(frame, s.config.SampleRate)
		if err != nil {
			// Fail-safe default: an unclassifiable frame is non-speech.
			isSpeech = false
		}
		speech[i] = isSpeech
	}

	type span struct{ start, end int } // frame indices, end exclusive of silence tail
	var spans []span

	inSpeech := false
	startFrame := 0
	speechFrames := 0
	silenceFrames := 0

	for i := 0; i < frameCount; i++ {
		if !inSpeech {
			if speech[i] {
				inSpeech = true
				startFrame = i - s.config.PaddingFrames
				if startFrame < 0 {
					startFrame = 0
				}
				speechFrames = 1
				silenceFrames = 0
			}
			continue
		}

		if speech[i] {
			speechFrames++
			silenceFrames = 0
			continue
		}

		silenceFrames++
		if silenceFrames >= s.config.MinSilenceFrames {
			// End at the last confirmed speech frame, excluding trailing silence.
			if speechFrames >= s.config.MinSpeechFrames {
				spans = append(spans, span{startFrame, i - silenceFrames + 1})
			}
			inSpeech = false
			speechFrames = 0
			silenceFrames = 0
		}
	}

	// Buffer ended mid-speech: keep the run if long enough, no trailing padding.
	if inSpeech && speechFrames >= s.config.MinSpeechFrames {
		spans = append(spans, span{startFrame, frameCount})
	}

	segments := make([]Segment, 0, len(spans))
	frameDur := s.config.FrameDuration()
	for _, sp := range spans {
		startSample := sp.start * frameSize
		endSample := sp.end * frameSize
		if endSample > len(samples) {
			endSample = len(samples)
		}
		segments = append(segments, Segment{
			Samples:     toFloat32(samples[startSample:endSample]),
			Start:       float64(sp.start) * frameDur,
			End:         float64(sp.end) * frameDur,
			StartSample: startSample,
			EndSample:   endSample,
		})
	}

	if len(segments) == 0 && len(samples) > 0 {
		segments = append(segments, Segment{
			Samples:     toFloat32(samples),
			Start:       0,
			End:         float64(len(samples)) / float64(s.config.SampleRate),
			StartSample: 0,
			EndSample:   len(samples),
			Fallback:    true,
		})
	}

	return segments
}

func toFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, v := range samples {
		out[i] = float32(v) / 32768.0
	}
	return out
}
