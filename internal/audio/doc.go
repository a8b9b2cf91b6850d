// Package audio handles PCM format normalization, energy gating, and WAV encoding.
// It canonicalizes raw byte buffers of declared format, rate, and channel count
// into mono float32 samples at the engine's target rate, and provides the cheap
// amplitude pre-check used to skip segmentation of near-silent audio.
package audio
