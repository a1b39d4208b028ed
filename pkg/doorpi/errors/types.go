package errors

import "fmt"

// PanicError is returned when an action panics. It is an ordinary failure.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("action panicked: %v", e.Value)
}

// ExitError reports a command that exited with a non-zero status.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("command %q exited with code %d: %s", e.Command, e.Code, e.Stderr)
	}
	return fmt.Sprintf("command %q exited with code %d", e.Command, e.Code)
}
