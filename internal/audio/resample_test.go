package audio

import (
	"math"
	"testing"
)

func TestLinearResample(t *testing.T) {
	samples := make([]float32, 8000)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * 100 * float64(i) / 8000))
	}

	out := LinearResample(samples, 8000, 16000)
	if len(out) != 16000 {
		t.Errorf("Expected 16000 samples upsampling 8k to 16k, got %d", len(out))
	}

	down := LinearResample(samples, 8000, 4000)
	if len(down) != 4000 {
		t.Errorf("Expected 4000 samples downsampling 8k to 4k, got %d", len(down))
	}
}

func TestLinearResampleIdentity(t *testing.T) {
	samples := []float32{0.1, 0.2, 0.3}
	out := LinearResample(samples, 16000, 16000)
	if len(out) != len(samples) {
		t.Fatalf("Expected same length, got %d", len(out))
	}
	for i := range samples {
		if out[i] != samples[i] {
			t.Errorf("Sample %d changed: expected %f, got %f", i, samples[i], out[i])
		}
	}
}

func TestLinearResampleEmpty(t *testing.T) {
	if out := LinearResample(nil, 8000, 16000); len(out) != 0 {
		t.Errorf("Expected empty output for empty input, got %d samples", len(out))
	}
}
