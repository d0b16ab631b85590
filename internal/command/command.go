package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultStderrLimit bounds how much captured stderr is kept on failure.
const DefaultStderrLimit = 2000

// ErrTimeout is the cause attached to contexts that hit a command timeout.
var ErrTimeout = errors.New("operation timed out")

// Runner executes one external command and returns its captured stderr.
// A non-nil error means the command did not exit 0.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stderr string, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

var _ Runner = ExecRunner{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	// Don't wait forever on pipes held open by grandchildren after a kill.
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	if err != nil {
		if cause := context.Cause(ctx); cause != nil && ctx.Err() != nil {
			return stderr.String(), fmt.Errorf("%s: %w", name, cause)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stderr.String(), fmt.Errorf("%s exited %d: %w", name, exitErr.ExitCode(), err)
		}
		return stderr.String(), fmt.Errorf("%s: %w", name, err)
	}
	return stderr.String(), nil
}

// WithTimeout derives a context that is cancelled with ErrTimeout after d.
// A zero or negative d means no timeout.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, d, ErrTimeout)
}

// Truncate trims s and cuts it to at most limit runes, marking the cut.
func Truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "...(truncated)"
}

// Describe joins a command line for logging.
func Describe(name string, args ...string) string {
	return strings.Join(append([]string{name}, args...), " ")
}
