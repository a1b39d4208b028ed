package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/doorpi/doorpi/pkg/doorpi/config"
	"github.com/doorpi/doorpi/pkg/doorpi/event"
	"github.com/doorpi/doorpi/pkg/doorpi/eventlog"
	"github.com/doorpi/doorpi/pkg/doorpi/observability"
	"github.com/doorpi/doorpi/pkg/doorpi/status"
	"github.com/doorpi/doorpi/pkg/doorpi/ticker"
)

// Source is the source the daemon raises its lifecycle events from.
const Source = "doorpi"

// Lifecycle events.
const (
	EventStartup  = "OnStartup"
	EventShutdown = "OnShutdown"
)

const defaultShutdownTimeout = 10 * time.Second

func newRunCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the event engine until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.New(nil)
			if configPath != "" {
				var err error
				cfg, err = config.FromFile(configPath)
				if err != nil {
					return err
				}
			}

			logCfg := cfg.Section("log")
			if !cmd.Flags().Changed("log-level") {
				logLevel = logCfg.String("level", logLevel)
			}
			if !cmd.Flags().Changed("log-format") {
				logFormat = logCfg.String("format", logFormat)
			}
			logger, err := newLogger(cmd.ErrOrStderr(), logLevel, logFormat)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (.yaml, .yml, .json or .toml)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug|info|warn|error")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "log format: text|json")
	return cmd
}

// openEventLog builds the event log selected by the "eventlog" section.
func openEventLog(cfg config.Config) (eventlog.Store, error) {
	switch backend := cfg.String("backend", "memory"); backend {
	case "memory":
		return eventlog.NewMemoryStore(cfg.Int("capacity", eventlog.DefaultMemoryCapacity)), nil
	case "sqlite":
		path := cfg.String("path", "")
		if path == "" {
			return nil, errors.New("eventlog.path is required for the sqlite backend")
		}
		return eventlog.NewSQLiteStore(path)
	case "none":
		return eventlog.NoopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown eventlog backend %q", backend)
	}
}

// newEngine builds the engine, registers the daemon's lifecycle events and
// binds the actions configured under "events".
func newEngine(cfg config.Config, logger *slog.Logger) (*event.Engine, error) {
	bindings, err := cfg.Bindings("events")
	if err != nil {
		return nil, err
	}
	store, err := openEventLog(cfg.Section("eventlog"))
	if err != nil {
		return nil, err
	}

	opts := []event.Option{
		event.WithLogger(logger),
		event.WithEventLog(store),
	}
	obs := cfg.Section("observability")
	if obs.Bool("metrics", false) {
		opts = append(opts, event.WithMetrics(observability.NewMetricsRecorder()))
	}
	if obs.Bool("tracing", false) {
		opts = append(opts, event.WithSpanManager(observability.NewSpanManager()))
	}
	engine := event.New(opts...)

	engine.RegisterEvent(EventStartup, Source)
	engine.RegisterEvent(EventShutdown, Source)

	for _, b := range bindings {
		var bindOpts []event.BindOption
		if b.SingleFire {
			bindOpts = append(bindOpts, event.WithSingleFire())
		}
		if _, err := engine.RegisterActionSpec(b.Event, b.Spec, bindOpts...); err != nil {
			_ = engine.Teardown(context.Background())
			return nil, fmt.Errorf("bind actions: %w", err)
		}
	}
	return engine, nil
}

// run drives the daemon lifecycle until ctx is done or an action asks for
// shutdown.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	engine, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}

	var tk *ticker.Ticker
	timerCfg := cfg.Section("timer")
	if timerCfg.Bool("enabled", true) {
		tk = ticker.New(engine, timerCfg.Duration("interval", ticker.DefaultInterval), logger)
		if err := tk.Start(); err != nil {
			_ = engine.Teardown(context.Background())
			return err
		}
	}

	var web *status.Server
	var srv *http.Server
	webCfg := cfg.Section("web")
	if addr := webCfg.String("addr", ""); addr != "" {
		var webOpts []status.Option
		if origins := webCfg.StringSlice("cors_origins", nil); len(origins) > 0 {
			webOpts = append(webOpts, status.WithCORS(origins...))
		}
		web = status.New(engine, logger, webOpts...)
		srv = &http.Server{Addr: addr, Handler: web, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logger.Info("status server listening", slog.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server failed", slog.String("error", err.Error()))
			}
		}()
	}

	elapsed := observability.TimedOperation()
	res := engine.Fire(ctx, EventStartup, Source, event.Sync, map[string]any{"version": version})
	logger.Info("doorpi started",
		slog.String("startup", string(res.Status)),
		slog.Float64("startup_ms", elapsed()),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested by signal")
	case <-engine.Done():
		logger.Info("shutdown requested by action", slog.Any("cause", engine.Cause()))
	}

	timeout := cfg.Duration("shutdown_timeout", defaultShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// OnShutdown is rejected once an action destroyed the engine.
	engine.Fire(shutdownCtx, EventShutdown, Source, event.Sync, nil)

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("status server: %w", err))
		}
		if err := web.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if tk != nil {
		if err := tk.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := engine.Teardown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	logger.Info("doorpi stopped")
	return errors.Join(errs...)
}
