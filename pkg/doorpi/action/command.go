package action

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	dperrors "github.com/doorpi/doorpi/pkg/doorpi/errors"
)

// commandWaitDelay bounds how long Run waits for output pipes after the
// shell was killed by context cancellation.
const commandWaitDelay = 2 * time.Second

// CommandAction runs a command line through the system shell.
// The process environment is extended with DOORPI_EVENT, DOORPI_SOURCE and
// DOORPI_FIRE_ID. A non-zero exit status is reported as *errors.ExitError.
type CommandAction struct {
	Line   string
	Dir    string
	Env    []string
	Logger *slog.Logger
}

// Command creates a CommandAction for line.
func Command(line string) *CommandAction {
	return &CommandAction{Line: line}
}

// Run executes the command and waits for it to exit.
func (c *CommandAction) Run(ctx context.Context, call Call) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", c.Line)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", c.Line)
	}
	cmd.Dir = c.Dir
	cmd.WaitDelay = commandWaitDelay
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Env = append(cmd.Env,
		"DOORPI_EVENT="+call.Event,
		"DOORPI_SOURCE="+call.Source,
		"DOORPI_FIRE_ID="+call.FireID,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if c.Logger != nil && !call.Silent && stdout.Len() > 0 {
		c.Logger.Debug("command output",
			slog.String("command", c.Line),
			slog.String("stdout", strings.TrimSpace(stdout.String())),
		)
	}
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return &dperrors.ExitError{
			Command: c.Line,
			Code:    exitErr.ExitCode(),
			Stderr:  strings.TrimSpace(stderr.String()),
		}
	}
	if ctx.Err() != nil {
		return fmt.Errorf("command %q: %w", c.Line, ctx.Err())
	}
	return fmt.Errorf("command %q: %w", c.Line, err)
}

func (c *CommandAction) String() string {
	return "cmd:" + c.Line
}
