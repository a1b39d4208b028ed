package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

func (NoopMetrics) RecordFire(_ context.Context, _, _ string)                           {}
func (NoopMetrics) RecordChain(_ context.Context, _ string, _ time.Duration, _ int)     {}
func (NoopMetrics) RecordAction(_ context.Context, _ string, _ time.Duration, _ error) {}
func (NoopMetrics) AddActiveFires(_ context.Context, _ int64)                           {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartFireSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartFireSpan(ctx context.Context, _, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartActionSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartActionSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}
