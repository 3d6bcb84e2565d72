package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	// globalProvider holds the current tracer provider
	globalProvider trace.TracerProvider
	// globalShutdown holds the shutdown function for the provider
	globalShutdown func(context.Context) error
	// providerMu protects access to global provider state
	providerMu sync.RWMutex
)

// createResource describes the docflow process to the collector
func createResource(cfg Config) (*resource.Resource, error) {
	return resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
		resource.WithProcessRuntimeDescription(),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
}

// InitProvider initializes the OpenTelemetry tracer provider.
// Returns a shutdown function and any initialization error.
func InitProvider(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	providerMu.Lock()
	defer providerMu.Unlock()

	if !cfg.Enabled {
		globalProvider = noop.NewTracerProvider()
		globalShutdown = func(context.Context) error { return nil }
		otel.SetTracerProvider(globalProvider)
		return globalShutdown, nil
	}

	res, err := createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if cfg.SampleRate < 1.0 {
		opts = append(opts, sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)))
	} else {
		opts = append(opts, sdktrace.WithSampler(sdktrace.AlwaysSample()))
	}

	if cfg.Endpoint != "" {
		exporterOpts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
			otlptracehttp.WithRetry(otlptracehttp.RetryConfig{
				Enabled:         true,
				InitialInterval: 100 * time.Millisecond,
				MaxInterval:     2 * time.Second,
				MaxElapsedTime:  10 * time.Second,
			}),
		}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(
			exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	globalProvider = tp
	otel.SetTracerProvider(tp)

	globalShutdown = func(shutdownCtx context.Context) error {
		return tp.Shutdown(shutdownCtx)
	}
	return globalShutdown, nil
}

// Shutdown gracefully shuts down the tracer provider
func Shutdown(ctx context.Context) error {
	providerMu.RLock()
	shutdown := globalShutdown
	providerMu.RUnlock()

	if shutdown != nil {
		return shutdown(ctx)
	}
	return nil
}

// GetTracerProvider returns the current tracer provider. Before InitProvider
// runs it defers to the otel global, which the host may have configured.
func GetTracerProvider() trace.TracerProvider {
	providerMu.RLock()
	defer providerMu.RUnlock()

	if globalProvider != nil {
		return globalProvider
	}
	return otel.GetTracerProvider()
}

// SetTracerProvider replaces the provider used by the span helpers.
func SetTracerProvider(tp trace.TracerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	globalProvider = tp
	globalShutdown = nil
}
