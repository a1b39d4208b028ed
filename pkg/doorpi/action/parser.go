package action

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrInvalidSpec is wrapped by every error returned from Parser.Parse.
var ErrInvalidSpec = errors.New("invalid action spec")

// ErrKindExists is returned when registering a kind twice.
var ErrKindExists = errors.New("action kind already registered")

// Factory builds an action from the params part of a spec string.
type Factory func(params string) (Action, error)

// Parser turns kind[:params] spec strings into actions.
type Parser struct {
	mu     sync.RWMutex
	kinds  map[string]Factory
	logger *slog.Logger
}

// NewParser creates a Parser with the built-in kinds registered.
// The logger is handed to actions that write records.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Parser{
		kinds:  make(map[string]Factory),
		logger: logger,
	}

	p.kinds["cmd"] = p.parseCommand
	p.kinds["sleep"] = parseSleep
	p.kinds["log"] = p.parseLog
	p.kinds["lua"] = p.parseLua
	p.kinds["shutdown"] = parseShutdown
	p.kinds["seq"] = p.parseSeq
	return p
}

// Register adds a custom kind.
func (p *Parser) Register(kind string, factory Factory) error {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" || factory == nil {
		return fmt.Errorf("%w: kind name and factory are required", ErrInvalidSpec)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.kinds[kind]; ok {
		return fmt.Errorf("%w: %s", ErrKindExists, kind)
	}
	p.kinds[kind] = factory
	return nil
}

// Kinds returns the registered kinds in sorted order.
func (p *Parser) Kinds() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	kinds := make([]string, 0, len(p.kinds))
	for k := range p.kinds {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Parse builds the action described by spec.
func (p *Parser) Parse(spec string) (Action, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidSpec)
	}

	kind, params, _ := strings.Cut(spec, ":")
	kind = strings.ToLower(strings.TrimSpace(kind))

	p.mu.RLock()
	factory, ok := p.kinds[kind]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q in %q", ErrInvalidSpec, kind, spec)
	}

	a, err := factory(params)
	if err != nil {
		if errors.Is(err, ErrInvalidSpec) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidSpec, kind, err)
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %s produced no action", ErrInvalidSpec, kind)
	}
	return a, nil
}

func (p *Parser) parseCommand(params string) (Action, error) {
	line := strings.TrimSpace(params)
	if line == "" {
		return nil, errors.New("empty command")
	}
	c := Command(line)
	c.Logger = p.logger
	return c, nil
}

// maxSleepSeconds is the first value that overflows time.Duration.
const maxSleepSeconds = float64(math.MaxInt64) / float64(time.Second)

// parseSleep accepts seconds ("2", "0.5") or a Go duration ("250ms").
func parseSleep(params string) (Action, error) {
	params = strings.TrimSpace(params)
	if secs, err := strconv.ParseFloat(params, 64); err == nil {
		switch {
		case math.IsNaN(secs), math.IsInf(secs, 0):
			return nil, fmt.Errorf("bad duration %q", params)
		case secs < 0:
			return nil, fmt.Errorf("negative duration %q", params)
		case secs >= maxSleepSeconds:
			return nil, fmt.Errorf("duration %q out of range", params)
		}
		return Sleep(time.Duration(secs * float64(time.Second))), nil
	}
	d, err := time.ParseDuration(params)
	if err != nil {
		return nil, fmt.Errorf("bad duration %q", params)
	}
	if d < 0 {
		return nil, fmt.Errorf("negative duration %q", params)
	}
	return Sleep(d), nil
}

func (p *Parser) parseLog(params string) (Action, error) {
	if strings.TrimSpace(params) == "" {
		return nil, errors.New("empty message")
	}
	return Log(p.logger, params), nil
}

func (p *Parser) parseLua(params string) (Action, error) {
	if strings.TrimSpace(params) == "" {
		return nil, errors.New("empty chunk")
	}
	a, err := CompileLua("inline", params)
	if err != nil {
		return nil, err
	}
	a.Logger = p.logger
	return a, nil
}

func parseShutdown(params string) (Action, error) {
	return Shutdown(strings.TrimSpace(params)), nil
}

func (p *Parser) parseSeq(params string) (Action, error) {
	parts := strings.Split(params, "|")
	children := make([]Action, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		child, err := p.Parse(part)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if len(children) == 0 {
		return nil, errors.New("no steps")
	}
	return Composite(children...), nil
}
