package action

import (
	"context"
	"errors"
	"log/slog"
	"time"

	dperrors "github.com/doorpi/doorpi/pkg/doorpi/errors"
)

// SleepAction blocks for Duration or until the context is done.
type SleepAction struct {
	Duration time.Duration
}

// Sleep creates a SleepAction.
func Sleep(d time.Duration) *SleepAction {
	return &SleepAction{Duration: d}
}

func (s *SleepAction) Run(ctx context.Context, _ Call) error {
	if s.Duration <= 0 {
		return nil
	}
	timer := time.NewTimer(s.Duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SleepAction) String() string {
	return "sleep:" + s.Duration.String()
}

// LogAction writes Message as an info record tagged with the fire.
type LogAction struct {
	Message string
	Logger  *slog.Logger
}

// Log creates a LogAction. A nil logger uses slog.Default.
func Log(logger *slog.Logger, message string) *LogAction {
	return &LogAction{Message: message, Logger: logger}
}

func (l *LogAction) Run(ctx context.Context, call Call) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, l.Message,
		slog.String("event", call.Event),
		slog.String("source", call.Source),
		slog.String("fire_id", call.FireID),
	)
	return nil
}

func (l *LogAction) String() string {
	return "log:" + l.Message
}

// ShutdownAction asks the engine to begin teardown.
type ShutdownAction struct {
	Reason string
}

// Shutdown creates a ShutdownAction. An empty reason reads "shutdown requested".
func Shutdown(reason string) *ShutdownAction {
	return &ShutdownAction{Reason: reason}
}

func (s *ShutdownAction) Run(_ context.Context, call Call) error {
	var err error
	if s.Reason != "" {
		err = errors.New(s.Reason)
	}
	return dperrors.Shutdown(err, "event "+call.Event)
}

func (s *ShutdownAction) String() string {
	if s.Reason == "" {
		return "shutdown"
	}
	return "shutdown:" + s.Reason
}
