package telemetry

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitProviderDisabled(t *testing.T) {
	t.Cleanup(func() { SetTracerProvider(nil) })

	ctx := context.Background()
	shutdown, err := InitProvider(ctx, DefaultConfig())
	if err != nil {
		t.Fatalf("InitProvider failed: %v", err)
	}
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown returned error: %v", err)
	}
	if _, ok := GetTracerProvider().(*sdktrace.TracerProvider); ok {
		t.Error("disabled tracing should not install an SDK provider")
	}
}

func TestInitProviderEnabled(t *testing.T) {
	t.Cleanup(func() { SetTracerProvider(nil) })

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = "localhost:4318"
	cfg.Insecure = true
	cfg.SampleRate = 0.5

	ctx := context.Background()
	shutdown, err := InitProvider(ctx, cfg)
	if err != nil {
		t.Fatalf("InitProvider failed: %v", err)
	}
	if _, ok := GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Error("expected an SDK tracer provider")
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	cancel()
	// nothing was exported, so a cancelled context is enough to stop
	_ = shutdown(shutdownCtx)
}

func TestShutdownWithoutProvider(t *testing.T) {
	SetTracerProvider(nil)
	ctx := context.Background()
	if err := Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if GetTracerProvider() == nil {
		t.Error("expected the otel global provider")
	}
}
