package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/felixgeelhaar/docflow"

// StartCommandSpan creates a span for a CLI command execution.
//
// Usage:
//
//	ctx, span := telemetry.StartCommandSpan(ctx, "run")
//	defer span.End()
func StartCommandSpan(ctx context.Context, cmdName string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer(instrumentation + "/commands")
	ctx, span := tracer.Start(ctx, "command."+cmdName)

	span.SetAttributes(
		attribute.String("command", cmdName),
		attribute.String("component", "cli"),
	)

	return ctx, span
}

// StartBatchSpan creates a span covering one dispatched batch.
func StartBatchSpan(ctx context.Context, runID string, index int, units []string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer(instrumentation + "/runner")
	ctx, span := tracer.Start(ctx, "batch")

	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.Int("batch.index", index),
		attribute.Int("batch.size", len(units)),
		attribute.StringSlice("batch.units", units),
	)

	return ctx, span
}

// StartUnitSpan creates a span around one unit's execution.
func StartUnitSpan(ctx context.Context, unitID, kind string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer(instrumentation + "/runner")
	ctx, span := tracer.Start(ctx, "unit")

	span.SetAttributes(attribute.String("unit.id", unitID))
	if kind != "" {
		span.SetAttributes(attribute.String("unit.kind", kind))
	}

	return ctx, span
}

// RecordSuccess marks a span as successful with optional result attributes.
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError records an error in a span and sets error status.
// This should be called when an operation fails.
//
// Usage:
//
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	    return err
//	}
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(
		attribute.Bool("error", true),
	)
}
