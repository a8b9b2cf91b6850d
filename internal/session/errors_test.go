package session

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	fe := formatErrorf("byte length %d is odd", 1001)
	if !strings.Contains(fe.Error(), "format error") || !strings.Contains(fe.Error(), "1001") {
		t.Errorf("Unexpected format error message: %q", fe.Error())
	}

	se := &SessionError{Reason: "session id is required"}
	if !strings.Contains(se.Error(), "session error") {
		t.Errorf("Unexpected session error message: %q", se.Error())
	}
}

func TestEngineErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	ee := &EngineError{Err: cause}

	if !errors.Is(ee, cause) {
		t.Error("EngineError must unwrap to its cause")
	}
	if !strings.Contains(ee.Error(), "connection refused") {
		t.Errorf("Unexpected engine error message: %q", ee.Error())
	}
}
