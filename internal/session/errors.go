package session

import "fmt"

// FormatError reports malformed audio input: byte lengths that are not a
// multiple of the sample width, or an unsupported format or channel layout.
// The failing call leaves session state untouched, so a corrected retry is
// always safe.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "format error: " + e.Reason
}

// formatErrorf builds a FormatError from a format string.
func formatErrorf(format string, args ...interface{}) *FormatError {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// SessionError reports caller-input mistakes at the session level, such as a
// missing session id. Fatal only for the single call that raised it.
type SessionError struct {
	Reason string
}

func (e *SessionError) Error() string {
	return "session error: " + e.Reason
}

// EngineError wraps a failure from the external transcription engine. Audio
// bytes already pulled into the failed round are not restored to the pending
// buffer; the design favors throughput over perfect retry semantics.
type EngineError struct {
	Err error
}

func (e *EngineError) Error() string {
	return "engine error: " + e.Err.Error()
}

func (e *EngineError) Unwrap() error {
	return e.Err
}
