package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/docflow/internal/config"
	"github.com/felixgeelhaar/docflow/internal/log"
	"github.com/felixgeelhaar/docflow/internal/metrics"
	"github.com/felixgeelhaar/docflow/internal/telemetry"
	"github.com/felixgeelhaar/docflow/internal/version"
)

// setupObservability configures logging, metrics and optional tracing for
// one command. The returned cleanup flushes traces, writes the metrics
// textfile and closes the log file; callers defer it.
func setupObservability(ctx context.Context, cfg *config.Config, stderr io.Writer) (*log.Logger, *metrics.Metrics, func()) {
	logger, logCleanup := setupLogging(cfg, stderr)
	m := metrics.InitDefault()
	telemetryCleanup := setupTelemetry(ctx, cfg, logger)

	return logger, m, func() {
		telemetryCleanup()
		if path := cfg.Metrics.Textfile; path != "" {
			if err := metrics.WriteTextfile(prometheus.DefaultGatherer, path); err != nil {
				logger.Warn("failed to write metrics textfile", "path", path, "error", err)
			}
		}
		logCleanup()
	}
}

func setupLogging(cfg *config.Config, stderr io.Writer) (*log.Logger, func()) {
	lc := cfg.LogConfig()
	lc.ServiceVersion = version.GetInfo().Version

	output, cleanup := configureLogOutput(cfg, stderr)
	lc.Output = output

	logger := log.New(lc)
	log.SetDefaultLogger(logger)
	return logger, cleanup
}

// configureLogOutput writes to logging.file when set, else to stderr. Stdout
// is reserved for command output.
func configureLogOutput(cfg *config.Config, stderr io.Writer) (log.Output, func()) {
	path := cfg.Logging.File
	if path == "" {
		return log.NewOutput(stderr), func() {}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		fmt.Fprintf(stderr, "⚠️  Unable to create log directory, logging to stderr: %v\n", err)
		return log.NewOutput(stderr), func() {}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		fmt.Fprintf(stderr, "⚠️  Unable to open log file, logging to stderr: %v\n", err)
		return log.NewOutput(stderr), func() {}
	}
	return log.NewOutput(f), func() { _ = f.Close() }
}

func setupTelemetry(ctx context.Context, cfg *config.Config, logger *log.Logger) func() {
	if !cfg.Telemetry.Enabled {
		return func() {}
	}

	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version.GetInfo().Version
	tc.Environment = telemetryEnvironment()
	tc.Enabled = true
	tc.Endpoint = cfg.Telemetry.Endpoint
	tc.Insecure = cfg.Telemetry.Insecure
	tc.SampleRate = cfg.Telemetry.SampleRate

	shutdown, err := telemetry.InitProvider(ctx, tc)
	if err != nil {
		logger.Warn("failed to initialize telemetry", "error", err)
		return func() {}
	}
	logger.Debug("telemetry enabled", "endpoint", tc.Endpoint, "sample_rate", tc.SampleRate)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush telemetry", "error", err)
		}
	}
}

func telemetryEnvironment() string {
	if env := os.Getenv("DOCFLOW_ENV"); env != "" {
		return env
	}
	return "cli"
}
