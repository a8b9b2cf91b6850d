package audio

// ResampleFunc converts mono float32 samples from one sample rate to another.
// Implementations must be pure functions: no shared state, no side effects.
// Deployments that need higher fidelity inject a DSP-backed implementation
// through NormalizeOptions; LinearResample is the standalone default.
type ResampleFunc func(samples []float32, fromRate, toRate int) []float32

// LinearResample resamples mono float32 audio by linear interpolation.
func LinearResample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	outLen := int(float64(len(samples)) / ratio)
	if outLen == 0 {
		outLen = 1
	}

	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}
