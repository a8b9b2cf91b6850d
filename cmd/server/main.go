package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skypro1111/pcm-caption-service/internal/config"
	"github.com/skypro1111/pcm-caption-service/internal/metrics"
	"github.com/skypro1111/pcm-caption-service/internal/server"
	"github.com/skypro1111/pcm-caption-service/internal/session"
	"github.com/skypro1111/pcm-caption-service/internal/transcription"
	"github.com/skypro1111/pcm-caption-service/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "pcm-caption-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("http_port", cfg.HTTP.Port),
		slog.String("http_address", cfg.HTTP.Address),
		slog.Float64("target_buffer_seconds", cfg.Session.TargetBufferSeconds),
		slog.Float64("loudness_threshold", cfg.Session.LoudnessThreshold),
		slog.Int("vad_sensitivity", cfg.VAD.Sensitivity),
		slog.Float64("min_speech_duration", cfg.VAD.MinSpeechDuration),
		slog.Float64("min_silence_duration", cfg.VAD.MinSilenceDuration),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize transcription engine client
	engine, err := transcription.NewClient(transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:    cfg.Transcription.MaxRetries,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Transcription client initialized",
		slog.String("endpoint", cfg.Transcription.Endpoint),
		slog.Int("max_concurrent", cfg.Transcription.MaxConcurrent),
	)

	// Build the VAD configuration from durations; frame size is derived per
	// session from its declared sample rate.
	vadConfig := vad.DefaultConfig(16000)
	vadConfig.Sensitivity = cfg.VAD.Sensitivity
	vadConfig.MinSpeechFrames = framesFor(cfg.VAD.GetMinSpeechDuration())
	vadConfig.MinSilenceFrames = framesFor(cfg.VAD.GetMinSilenceDuration())
	vadConfig.PaddingFrames = framesFor(cfg.VAD.GetPaddingDuration())

	// Initialize session manager
	sessionMgr, err := session.NewManager(logger, engine, session.Config{
		TargetBufferSeconds: cfg.Session.TargetBufferSeconds,
		LoudnessThreshold:   cfg.Session.LoudnessThreshold,
		DefaultLanguage:     cfg.Session.DefaultLanguage,
		VAD:                 vadConfig,
		IdleTimeout:         cfg.Session.GetIdleTimeout(),
	}, session.WithMetrics(appMetrics))
	if err != nil {
		logger.Error("Failed to create session manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Session manager initialized",
		slog.Float64("target_buffer_seconds", cfg.Session.TargetBufferSeconds),
		slog.Duration("idle_timeout", cfg.Session.GetIdleTimeout()),
	)

	// Initialize HTTP API server
	httpServer := server.NewHTTPServer(cfg.HTTP, logger, cfg, sessionMgr, engine, appMetrics)
	logger.Info("HTTP API server initialized",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop session manager (stop background eviction)
	sessionMgr.Stop()

	// Close transcription client (wait for in-flight requests)
	engine.Close()

	stats := engine.GetStats()
	logger.Info("Final transcription statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("success_requests", stats.SuccessRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
	)

	logger.Info("Service stopped")
}

// framesFor converts a duration to a count of 30 ms VAD frames, rounding up
// so short but positive durations still require at least one frame.
func framesFor(d time.Duration) int {
	frame := vad.FrameDurationMS * time.Millisecond
	return int((d + frame - 1) / frame)
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
