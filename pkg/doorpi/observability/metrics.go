package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records engine metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordFire records a fire request and its outcome status.
	RecordFire(ctx context.Context, event, status string)

	// RecordChain records a completed action chain.
	RecordChain(ctx context.Context, event string, duration time.Duration, failed int)

	// RecordAction records one action execution.
	RecordAction(ctx context.Context, event string, duration time.Duration, err error)

	// AddActiveFires adjusts the in-flight asynchronous fire count.
	AddActiveFires(ctx context.Context, delta int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	fires         metric.Int64Counter
	chainLatency  metric.Float64Histogram
	actions       metric.Int64Counter
	actionErrors  metric.Int64Counter
	actionLatency metric.Float64Histogram
	activeFires   metric.Int64UpDownCounter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("doorpi")

	fires, err := meter.Int64Counter("doorpi.event.fires",
		metric.WithDescription("Number of fire requests by outcome"),
	)
	if err != nil {
		return nil, err
	}

	chainLatency, err := meter.Float64Histogram("doorpi.event.latency_ms",
		metric.WithDescription("Action chain latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	actions, err := meter.Int64Counter("doorpi.action.executions",
		metric.WithDescription("Number of action executions"),
	)
	if err != nil {
		return nil, err
	}

	actionErrors, err := meter.Int64Counter("doorpi.action.errors",
		metric.WithDescription("Number of failed action executions"),
	)
	if err != nil {
		return nil, err
	}

	actionLatency, err := meter.Float64Histogram("doorpi.action.latency_ms",
		metric.WithDescription("Action latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	activeFires, err := meter.Int64UpDownCounter("doorpi.event.active_fires",
		metric.WithDescription("Asynchronous fires currently running"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		fires:         fires,
		chainLatency:  chainLatency,
		actions:       actions,
		actionErrors:  actionErrors,
		actionLatency: actionLatency,
		activeFires:   activeFires,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordFire records a fire request.
func (m *otelMetrics) RecordFire(ctx context.Context, event, status string) {
	m.fires.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("status", status),
	))
}

// RecordChain records a completed action chain.
func (m *otelMetrics) RecordChain(ctx context.Context, event string, duration time.Duration, failed int) {
	attrs := []attribute.KeyValue{
		attribute.String("event", event),
		attribute.Bool("success", failed == 0),
	}
	m.chainLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordAction records one action execution.
func (m *otelMetrics) RecordAction(ctx context.Context, event string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("event", event),
	}

	m.actions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.actionLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.actionErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// AddActiveFires adjusts the in-flight fire gauge.
func (m *otelMetrics) AddActiveFires(ctx context.Context, delta int64) {
	m.activeFires.Add(ctx, delta)
}
