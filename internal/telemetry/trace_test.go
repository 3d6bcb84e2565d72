package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer installs a tracer provider backed by an in-memory exporter
func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		SetTracerProvider(nil)
	})
	return exporter
}

func attrMap(attrs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, kv := range attrs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestStartCommandSpan(t *testing.T) {
	exporter := setupTestTracer(t)

	ctx := context.Background()
	spanCtx, span := StartCommandSpan(ctx, "run")
	if spanCtx == ctx {
		t.Error("expected new context with span, got same context")
	}
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "command.run" {
		t.Errorf("span name = %q, want command.run", spans[0].Name)
	}
	attrs := attrMap(spans[0].Attributes)
	if attrs["command"].AsString() != "run" {
		t.Errorf("command attribute = %v", attrs["command"])
	}
}

func TestBatchAndUnitSpansNest(t *testing.T) {
	exporter := setupTestTracer(t)

	ctx, batch := StartBatchSpan(context.Background(), "run-1", 2, []string{"b", "c"})
	_, unit := StartUnitSpan(ctx, "b", "design")
	RecordSuccess(unit)
	unit.End()
	batch.End()

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}

	unitSpan, batchSpan := spans[0], spans[1]
	if unitSpan.Name != "unit" || batchSpan.Name != "batch" {
		t.Fatalf("unexpected span names %q, %q", unitSpan.Name, batchSpan.Name)
	}
	if unitSpan.Parent.SpanID() != batchSpan.SpanContext.SpanID() {
		t.Error("unit span should be a child of the batch span")
	}

	battrs := attrMap(batchSpan.Attributes)
	if battrs["batch.size"].AsInt64() != 2 {
		t.Errorf("batch.size = %v, want 2", battrs["batch.size"])
	}
	if battrs["run_id"].AsString() != "run-1" {
		t.Errorf("run_id = %v", battrs["run_id"])
	}

	uattrs := attrMap(unitSpan.Attributes)
	if uattrs["unit.kind"].AsString() != "design" {
		t.Errorf("unit.kind = %v", uattrs["unit.kind"])
	}
	if unitSpan.Status.Code != codes.Ok {
		t.Errorf("status = %v, want Ok", unitSpan.Status.Code)
	}
}

func TestRecordError(t *testing.T) {
	exporter := setupTestTracer(t)

	_, span := StartUnitSpan(context.Background(), "a", "")
	RecordError(span, nil)
	RecordError(span, errors.New("executor failed"))
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Status.Code != codes.Error || s.Status.Description != "executor failed" {
		t.Errorf("unexpected status %+v", s.Status)
	}
	if len(s.Events) != 1 {
		t.Errorf("expected one exception event, got %d", len(s.Events))
	}
	if _, ok := attrMap(s.Attributes)["unit.kind"]; ok {
		t.Error("empty kind should not be recorded")
	}
}
