package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryString(t *testing.T) {
	tests := []struct {
		category Category
		expected string
	}{
		{CategoryFailure, "failure"},
		{CategoryShutdown, "shutdown"},
		{CategoryInterrupt, "interrupt"},
		{Category(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.category.String())
		})
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Category
	}{
		{"nil error", nil, CategoryFailure},
		{"plain error", errors.New("boom"), CategoryFailure},
		{"panic", &PanicError{Value: "oops"}, CategoryFailure},
		{"exit", &ExitError{Command: "false", Code: 1}, CategoryFailure},
		{"shutdown", Shutdown(nil, "test"), CategoryShutdown},
		{"interrupt", Interrupt(errors.New("ctrl-c"), ""), CategoryInterrupt},
		{"wrapped shutdown", fmt.Errorf("action: %w", Shutdown(nil, "")), CategoryShutdown},
		{"joined keeps worst", errors.Join(errors.New("a"), Interrupt(nil, ""), Shutdown(nil, "")), CategoryInterrupt},
		{"joined ordinary", errors.Join(errors.New("a"), errors.New("b")), CategoryFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Categorize(tt.err))
		})
	}
}

func TestPredicates(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(errors.New("x")))
	assert.True(t, IsFatal(Shutdown(nil, "")))
	assert.True(t, IsFatal(Interrupt(nil, "")))

	assert.True(t, IsShutdown(Shutdown(nil, "")))
	assert.False(t, IsShutdown(Interrupt(nil, "")))
	assert.True(t, IsInterrupt(Interrupt(nil, "")))
	assert.False(t, IsInterrupt(Failure(errors.New("x"), "")))
}

func TestCategorizedError(t *testing.T) {
	t.Run("message with context", func(t *testing.T) {
		err := NewCategorized(errors.New("stop"), CategoryShutdown, "action shutdown")
		assert.Equal(t, "action shutdown: stop (category: shutdown)", err.Error())
	})

	t.Run("message without context", func(t *testing.T) {
		err := NewCategorized(errors.New("stop"), CategoryInterrupt, "")
		assert.Equal(t, "stop (category: interrupt)", err.Error())
	})

	t.Run("nil error gets a default", func(t *testing.T) {
		err := Shutdown(nil, "")
		assert.Equal(t, "shutdown requested (category: shutdown)", err.Error())
	})

	t.Run("unwrap", func(t *testing.T) {
		base := errors.New("base")
		err := Interrupt(base, "")
		assert.ErrorIs(t, err, base)
	})
}

func TestExitError(t *testing.T) {
	err := &ExitError{Command: "false", Code: 1}
	assert.Equal(t, `command "false" exited with code 1`, err.Error())

	err = &ExitError{Command: "ls /nope", Code: 2, Stderr: "no such file"}
	assert.Equal(t, `command "ls /nope" exited with code 2: no such file`, err.Error())
}
