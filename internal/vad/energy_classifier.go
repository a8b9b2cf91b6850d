package vad

import (
	"fmt"
	"math"
)

// EnergyClassifier is the built-in frame classifier based on RMS energy and
// zero-crossing rate. It stands in for an external per-frame VAD primitive
// when none is injected; the sensitivity scale (0..3) mirrors the aggressive
// modes of WebRTC-style detectors, higher being more likely to reject noise.
type EnergyClassifier struct {
	rmsThreshold float64
	zcrCeiling   float64
}

// sensitivity -> RMS threshold on int16 scale. Tuned so that ordinary room
// noise passes mode 0 but only clear voicing passes mode 3.
var rmsThresholds = [4]float64{150, 250, 400, 600}

// NewEnergyClassifier creates a classifier for the given sensitivity (0..3).
// Out-of-range values are clamped.
func NewEnergyClassifier(sensitivity int) *EnergyClassifier {
	if sensitivity < 0 {
		sensitivity = 0
	}
	if sensitivity > 3 {
		sensitivity = 3
	}
	return &EnergyClassifier{
		rmsThreshold: rmsThresholds[sensitivity],
		zcrCeiling:   0.35,
	}
}

// IsSpeech classifies one frame. The frame must be non-empty; malformed input
// returns an error, which callers treat as non-speech.
func (c *EnergyClassifier) IsSpeech(frame []int16, sampleRate int) (bool, error) {
	if len(frame) == 0 {
		return false, fmt.Errorf("empty frame")
	}
	if sampleRate <= 0 {
		return false, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	var energy float64
	crossings := 0
	for i, s := range frame {
		energy += float64(s) * float64(s)
		if i > 0 && (s >= 0) != (frame[i-1] >= 0) {
			crossings++
		}
	}
	rms := math.Sqrt(energy / float64(len(frame)))
	zcr := float64(crossings) / float64(len(frame))

	// Voiced speech carries energy at a moderate zero-crossing rate; high ZCR
	// at low energy is broadband noise.
	if rms < c.rmsThreshold {
		return false, nil
	}
	return zcr <= c.zcrCeiling, nil
}
