// Package transcription defines the speech-to-text engine collaborator and an
// HTTP client implementation for deployments backed by a remote whisper
// server. The client handles multipart uploads of WAV-encoded segments,
// retries with exponential backoff, and concurrent-request limiting.
package transcription
