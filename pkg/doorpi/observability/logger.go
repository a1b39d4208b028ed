// Package observability provides logging, metrics and tracing for the
// DoorPi event engine.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds fire context to a logger.
// Returns a new logger with fire_id, event and source fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "3F9A1C2B", "OnKeyPressed", "gpio1")
//	enriched.Info("doing work") // includes fire_id, event, source
func EnrichLogger(logger *slog.Logger, fireID, event, source string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("fire_id", fireID),
		slog.String("event", event),
		slog.String("source", source),
	)
}

// LogFireStart logs the start of a firing at DEBUG level.
func LogFireStart(logger *slog.Logger, mode string, actions int) {
	if logger == nil {
		return
	}
	logger.Debug("fire starting",
		slog.String("mode", mode),
		slog.Int("actions", actions),
	)
}

// LogFireComplete logs the end of a firing at DEBUG level.
func LogFireComplete(logger *slog.Logger, durationMs float64, executed, failed int) {
	if logger == nil {
		return
	}
	logger.Debug("fire completed",
		slog.Float64("duration_ms", durationMs),
		slog.Int("actions_executed", executed),
		slog.Int("actions_failed", failed),
	)
}

// LogRejected logs a firing that did not pass validation.
func LogRejected(logger *slog.Logger, event, source, reason string) {
	if logger == nil {
		return
	}
	logger.Warn("fire rejected",
		slog.String("event", event),
		slog.String("source", source),
		slog.String("reason", reason),
	)
}

// LogActionStart logs an action invocation at DEBUG level.
func LogActionStart(logger *slog.Logger, action string) {
	if logger == nil {
		return
	}
	logger.Debug("action starting",
		slog.String("action", action),
	)
}

// LogActionError logs an ordinary action failure.
func LogActionError(logger *slog.Logger, action string, err error) {
	if logger == nil {
		return
	}
	logger.Error("action failed",
		slog.String("action", action),
		slog.String("error", err.Error()),
	)
}

// LogFatal logs a shutdown or interrupt signal raised by an action.
func LogFatal(logger *slog.Logger, action, category string, err error) {
	if logger == nil {
		return
	}
	logger.Info("action requested teardown",
		slog.String("action", action),
		slog.String("category", category),
		slog.String("error", err.Error()),
	)
}

// LogEventLogError logs a failed event log write.
func LogEventLogError(logger *slog.Logger, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("event log write failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation returns a function that reports elapsed milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
