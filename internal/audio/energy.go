package audio

// DefaultLoudnessThreshold is the default mean-amplitude cutoff below which a
// buffer is treated as near-silence. Running segmentation and transcription on
// such audio reliably produces hallucinated text from the engine, so callers
// short-circuit the round instead.
const DefaultLoudnessThreshold = 100

// MeanAbsAmplitude returns the mean absolute amplitude of int16 PCM samples.
func MeanAbsAmplitude(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return sum / float64(len(samples))
}

// IsLoudEnough reports whether the buffer's mean absolute amplitude exceeds
// the threshold. A threshold <= 0 disables the gate.
func IsLoudEnough(samples []int16, threshold float64) bool {
	if threshold <= 0 {
		return true
	}
	return MeanAbsAmplitude(samples) > threshold
}
