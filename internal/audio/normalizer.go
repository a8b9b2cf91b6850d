package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// TargetSampleRate is the sample rate expected by the transcription engine.
const TargetSampleRate = 16000

// PCMFormat identifies the sample encoding of a raw PCM byte buffer.
type PCMFormat string

const (
	FormatInt16   PCMFormat = "int16"
	FormatFloat32 PCMFormat = "float32"
)

// SampleWidth returns the number of bytes per sample for the format.
func (f PCMFormat) SampleWidth() int {
	if f == FormatFloat32 {
		return 4
	}
	return 2
}

// Valid reports whether the format is one of the supported encodings.
func (f PCMFormat) Valid() bool {
	return f == FormatInt16 || f == FormatFloat32
}

// NormalizeOptions describes the declared layout of a raw PCM buffer.
type NormalizeOptions struct {
	Format     PCMFormat
	SampleRate int
	Channels   int
	Resampler  ResampleFunc // nil uses the package default
}

// Normalize canonicalizes raw PCM bytes to mono float32 samples at
// TargetSampleRate. Multi-channel input is averaged to mono; rate mismatches
// are resolved by the configured resampler. The byte length must be a
// multiple of the sample width times the channel count.
func Normalize(raw []byte, opts NormalizeOptions) ([]float32, error) {
	if !opts.Format.Valid() {
		return nil, fmt.Errorf("unsupported PCM format %q", opts.Format)
	}
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", opts.SampleRate)
	}
	channels := opts.Channels
	if channels == 0 {
		channels = 1
	}
	if channels < 1 {
		return nil, fmt.Errorf("channel count must be at least 1, got %d", channels)
	}

	width := opts.Format.SampleWidth()
	stride := width * channels
	if len(raw)%stride != 0 {
		return nil, fmt.Errorf("byte length %d is not a multiple of %d (sample width %d x %d channels)",
			len(raw), stride, width, channels)
	}

	var samples []float32
	switch opts.Format {
	case FormatInt16:
		samples = Int16ToFloat32(DecodeInt16(raw))
	case FormatFloat32:
		samples = DecodeFloat32(raw)
	}

	if channels > 1 {
		samples = downmix(samples, channels)
	}

	if opts.SampleRate != TargetSampleRate {
		resample := opts.Resampler
		if resample == nil {
			resample = LinearResample
		}
		samples = resample(samples, opts.SampleRate, TargetSampleRate)
	}

	return samples, nil
}

// DecodeInt16 interprets raw bytes as little-endian int16 PCM samples.
// The byte length must already be validated as even.
func DecodeInt16(raw []byte) []int16 {
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return samples
}

// EncodeInt16 serializes int16 PCM samples as little-endian bytes.
func EncodeInt16(samples []int16) []byte {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
	}
	return raw
}

// DecodeFloat32 interprets raw bytes as little-endian float32 PCM samples.
func DecodeFloat32(raw []byte) []float32 {
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples
}

// Int16ToFloat32 converts int16 PCM to float32 in [-1, 1).
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Float32ToInt16 converts float32 PCM in [-1, 1] to int16, clamping overflow.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

// Duration returns the duration in seconds of a raw PCM byte buffer.
func Duration(byteLen int, format PCMFormat, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(byteLen/format.SampleWidth()) / float64(sampleRate)
}

// Int16View decodes a raw buffer of the given format to int16 samples for
// frame classification. Float32 input is converted with clamping.
func Int16View(raw []byte, format PCMFormat) []int16 {
	if format == FormatFloat32 {
		return Float32ToInt16(DecodeFloat32(raw))
	}
	return DecodeInt16(raw)
}

// downmix averages interleaved multi-channel samples to mono.
func downmix(samples []float32, channels int) []float32 {
	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
