// Package status serves the engine's registry, run metadata and event log
// over HTTP, and lets clients fire events.
//
// Routes:
//
//	GET  /status                 registry snapshot
//	GET  /events/{name}          sources, actions and run metadata of one event
//	GET  /eventlog?max=&filter=  event log, newest first
//	POST /events/{name}/fire     fire an event; query: source, mode; body: JSON extra data
//
// Every request raises OnWebServerRequest plus OnWebServerRequestGet or
// OnWebServerRequestPost from Source.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/doorpi/doorpi/pkg/doorpi/event"
	"github.com/doorpi/doorpi/pkg/doorpi/eventlog"
)

// Source is the source name the router registers.
const Source = "doorpi.web"

// Events raised by the router.
const (
	EventRequest     = "OnWebServerRequest"
	EventRequestGet  = "OnWebServerRequestGet"
	EventRequestPost = "OnWebServerRequestPost"
)

// maxBodyBytes limits the JSON body of fire requests.
const maxBodyBytes = 1 << 20

// Engine is the part of *event.Engine the router uses.
type Engine interface {
	RegisterEvent(name, source string)
	UnregisterSource(source string, force bool) error
	Fire(ctx context.Context, name, source string, mode event.Mode, extra map[string]any) event.Result
	Snapshot() event.Snapshot
	Metadata(name string) (event.Record, bool)
	History(ctx context.Context, max int, filter string) ([]eventlog.Entry, error)
	HistoryCount(ctx context.Context) (int, error)
}

// Server holds the router and its engine.
type Server struct {
	engine  Engine
	logger  *slog.Logger
	router  chi.Router
	origins []string
}

// Option configures a Server.
type Option func(*Server)

// WithCORS allows browser requests from the given origins.
func WithCORS(origins ...string) Option {
	return func(s *Server) {
		s.origins = append(s.origins, origins...)
	}
}

// New registers Source with its events on engine and builds the router.
func New(engine Engine, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	for _, name := range []string{EventRequest, EventRequestGet, EventRequestPost} {
		engine.RegisterEvent(name, Source)
	}

	s := &Server{engine: engine, logger: logger}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(s.announce)

	r.Get("/status", s.handleStatus)
	r.Get("/events/{name}", s.handleEvent)
	r.Get("/eventlog", s.handleEventLog)
	r.Post("/events/{name}/fire", s.handleFire)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close unregisters Source and its events.
func (s *Server) Close() error {
	err := s.engine.UnregisterSource(Source, true)
	if errors.Is(err, event.ErrSourceUnknown) {
		return nil
	}
	return err
}

// announce raises the request events before handling the request.
func (s *Server) announce(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		extra := map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"remote_addr": r.RemoteAddr,
		}
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			extra["request_id"] = rid
		}

		s.engine.Fire(r.Context(), EventRequest, Source, event.Async, extra)
		switch r.Method {
		case http.MethodGet:
			s.engine.Fire(r.Context(), EventRequestGet, Source, event.Async, extra)
		case http.MethodPost:
			s.engine.Fire(r.Context(), EventRequestPost, Source, event.Async, extra)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// eventView is the JSON shape of GET /events/{name}.
type eventView struct {
	Name           string        `json:"name"`
	Sources        []string      `json:"sources"`
	Actions        []string      `json:"actions"`
	Metadata       *event.Record `json:"metadata,omitempty"`
	LastDurationMs *float64      `json:"last_duration_ms,omitempty"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	snap := s.engine.Snapshot()

	sources, ok := snap.EventSources[name]
	if !ok {
		writeJSONError(w, http.StatusNotFound, "event unknown")
		return
	}

	view := eventView{
		Name:    name,
		Sources: sources,
		Actions: snap.EventActions[name],
	}
	if view.Actions == nil {
		view.Actions = []string{}
	}
	if rec, ok := s.engine.Metadata(name); ok {
		view.Metadata = &rec
		if rec.LastDuration != nil {
			ms := float64(rec.LastDuration.Microseconds()) / 1000
			view.LastDurationMs = &ms
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleEventLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	max := eventlog.DefaultMaxEntries
	if v := q.Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "max must be a positive integer")
			return
		}
		max = n
	}

	entries, err := s.engine.History(r.Context(), max, q.Get("filter"))
	if err != nil {
		s.logger.Error("read event log", slog.String("error", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "event log unavailable")
		return
	}
	total, err := s.engine.HistoryCount(r.Context())
	if err != nil {
		s.logger.Error("count event log", slog.String("error", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "event log unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
	})
}

func (s *Server) handleFire(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	q := r.URL.Query()

	mode, err := event.ParseMode(q.Get("mode"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	source := q.Get("source")
	if source == "" {
		source = Source
	}

	var extra map[string]any
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&extra); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// Async chains are detached from request cancellation by Fire.
	start := time.Now()
	res := s.engine.Fire(r.Context(), name, source, mode, extra)
	s.logger.Info("fire requested",
		slog.String("event", name),
		slog.String("source", source),
		slog.String("mode", mode.String()),
		slog.String("status", string(res.Status)),
		slog.Duration("elapsed", time.Since(start)),
	)

	writeJSON(w, fireStatusCode(res.Status), res)
}

func fireStatusCode(s event.Status) int {
	switch s {
	case event.StatusFired:
		return http.StatusOK
	case event.StatusScheduled:
		return http.StatusAccepted
	case event.StatusDestroyed:
		return http.StatusServiceUnavailable
	case event.StatusEventUnknown:
		return http.StatusNotFound
	default:
		return http.StatusConflict
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
		"code":  status,
	})
}
