package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:           8080,
			Address:        "0.0.0.0",
			ReadTimeout:    30,
			WriteTimeout:   30,
			MaxRequestBody: 33554432,
		},
		Session: SessionConfig{
			TargetBufferSeconds: 3.0,
			LoudnessThreshold:   100,
			IdleTimeout:         0,
		},
		VAD: VADConfig{
			Sensitivity:        3,
			MinSpeechDuration:  0.25,
			MinSilenceDuration: 0.5,
			PaddingDuration:    0.4,
		},
		Transcription: TranscriptionConfig{
			Endpoint:      "http://localhost:9000/transcribe",
			Timeout:       30,
			MaxRetries:    3,
			MaxConcurrent: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "invalid http port",
			mutate:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: true,
			errorMsg:    "port must be between 1 and 65535",
		},
		{
			name:        "empty http address",
			mutate:      func(c *Config) { c.HTTP.Address = "" },
			expectError: true,
			errorMsg:    "address cannot be empty",
		},
		{
			name:        "non-positive target buffer",
			mutate:      func(c *Config) { c.Session.TargetBufferSeconds = 0 },
			expectError: true,
			errorMsg:    "target_buffer_seconds must be positive",
		},
		{
			name:        "negative idle timeout",
			mutate:      func(c *Config) { c.Session.IdleTimeout = -1 },
			expectError: true,
			errorMsg:    "idle_timeout cannot be negative",
		},
		{
			name:        "vad sensitivity out of range",
			mutate:      func(c *Config) { c.VAD.Sensitivity = 5 },
			expectError: true,
			errorMsg:    "sensitivity must be between 0 and 3",
		},
		{
			name:        "empty transcription endpoint",
			mutate:      func(c *Config) { c.Transcription.Endpoint = "" },
			expectError: true,
			errorMsg:    "endpoint cannot be empty",
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
			errorMsg:    "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected validation error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected valid config, got error: %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	content := `
http:
  port: 8080
  address: "127.0.0.1"
  read_timeout: 10
  write_timeout: 10
  max_request_body: 1048576
session:
  target_buffer_seconds: 2.5
  loudness_threshold: 100
  idle_timeout: 300
vad:
  sensitivity: 2
  min_speech_duration: 0.25
  min_silence_duration: 0.5
  padding_duration: 0.4
transcription:
  endpoint: "http://localhost:9000/transcribe"
  timeout: 20
  max_retries: 2
  max_concurrent: 5
logging:
  level: "debug"
  format: "text"
  output: "stderr"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Session.TargetBufferSeconds != 2.5 {
		t.Errorf("Expected target buffer 2.5, got %f", cfg.Session.TargetBufferSeconds)
	}
	if cfg.Session.GetIdleTimeout() != 5*time.Minute {
		t.Errorf("Expected idle timeout 5m, got %v", cfg.Session.GetIdleTimeout())
	}
	if cfg.VAD.GetMinSpeechDuration() != 250*time.Millisecond {
		t.Errorf("Expected min speech 250ms, got %v", cfg.VAD.GetMinSpeechDuration())
	}
	if cfg.Transcription.GetTimeoutDuration() != 20*time.Second {
		t.Errorf("Expected transcription timeout 20s, got %v", cfg.Transcription.GetTimeoutDuration())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("http: [not a mapping"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}
