package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer uses the global OTel tracer provider.
var tracer = otel.Tracer("doorpi")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartFireSpan starts a span covering one action chain.
	StartFireSpan(ctx context.Context, event, source, fireID string) (context.Context, trace.Span)

	// StartActionSpan starts a child span for one action.
	StartActionSpan(ctx context.Context, action string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartFireSpan(ctx context.Context, event, source, fireID string) (context.Context, trace.Span) {
	return StartFireSpan(ctx, event, source, fireID)
}

func (m *otelSpanManager) StartActionSpan(ctx context.Context, action string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "doorpi.action",
		trace.WithAttributes(
			attribute.String("action", action),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

// StartFireSpan starts a span for one firing using the global tracer.
func StartFireSpan(ctx context.Context, event, source, fireID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "doorpi.fire."+event,
		trace.WithAttributes(
			attribute.String("event.name", event),
			attribute.String("event.source", source),
			attribute.String("fire.id", fireID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
