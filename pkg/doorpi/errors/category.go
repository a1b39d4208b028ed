// Package errors classifies the errors returned by actions.
//
// Action failures are isolated: the dispatcher logs them and moves on to the
// next action in the chain. Two categories are not ordinary failures:
//   - Shutdown: the action asks the whole engine to stop
//   - Interrupt: the action observed a user interrupt (Ctrl+C and the like)
//
// Both are reported to the dispatcher as values and begin engine teardown.
package errors

import (
	"errors"
	"fmt"
)

// Category represents how the dispatcher treats an action error.
type Category int

const (
	// CategoryFailure is an ordinary action failure. It is logged and the
	// chain continues.
	CategoryFailure Category = iota

	// CategoryShutdown asks the engine to begin teardown.
	CategoryShutdown

	// CategoryInterrupt reports a user interrupt. It begins teardown like
	// CategoryShutdown but is logged differently.
	CategoryInterrupt
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryFailure:
		return "failure"
	case CategoryShutdown:
		return "shutdown"
	case CategoryInterrupt:
		return "interrupt"
	default:
		return "unknown"
	}
}

// Fatal reports whether the category begins engine teardown.
func (c Category) Fatal() bool {
	return c == CategoryShutdown || c == CategoryInterrupt
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how the dispatcher handles this error.
	Category Category

	// Context describes what raised the signal.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s)", e.Context, e.Err, e.Category)
	}
	return fmt.Sprintf("%s (category: %s)", e.Err, e.Category)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized creates a new categorized error.
// A nil err is replaced by a generic one so the result is always printable.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	if err == nil {
		err = errors.New(category.String() + " requested")
	}
	return &CategorizedError{
		Err:      err,
		Category: category,
		Context:  context,
	}
}

// Shutdown creates a shutdown signal.
func Shutdown(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryShutdown, context)
}

// Interrupt creates a user interrupt signal.
func Interrupt(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryInterrupt, context)
}

// Failure creates an explicitly ordinary failure.
func Failure(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryFailure, context)
}

// Categorize determines how an error should be handled.
// Errors joined with errors.Join report the most severe category found.
func Categorize(err error) Category {
	if err == nil {
		return CategoryFailure
	}

	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		worst := CategoryFailure
		for _, e := range joined.Unwrap() {
			if c := Categorize(e); c > worst {
				worst = c
			}
		}
		return worst
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	return CategoryFailure
}

// IsFatal reports whether err begins engine teardown.
func IsFatal(err error) bool {
	return err != nil && Categorize(err).Fatal()
}

// IsShutdown reports whether err is a shutdown signal.
func IsShutdown(err error) bool {
	return err != nil && Categorize(err) == CategoryShutdown
}

// IsInterrupt reports whether err is a user interrupt signal.
func IsInterrupt(err error) bool {
	return err != nil && Categorize(err) == CategoryInterrupt
}
