package stack

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kebairia/stackbackup/internal/backup"
	"github.com/kebairia/stackbackup/internal/command"
	"github.com/kebairia/stackbackup/internal/logger"
)

var (
	ErrComposeMissing = errors.New("compose definition not found")
	ErrTimeout        = command.ErrTimeout
)

// composeFiles are tried in order inside a stack directory.
var composeFiles = []string{
	"compose.yaml",
	"compose.yml",
	"docker-compose.yaml",
	"docker-compose.yml",
}

// StopError is returned when a stack could not be brought down.
type StopError struct {
	Stack  string
	Stderr string
	Err    error
}

func (e *StopError) Error() string { return actionMessage("stop", e.Stack, e.Stderr, e.Err) }
func (e *StopError) Unwrap() error { return e.Err }

// StartError is returned when a stack could not be brought up.
type StartError struct {
	Stack  string
	Stderr string
	Err    error
}

func (e *StartError) Error() string { return actionMessage("start", e.Stack, e.Stderr, e.Err) }
func (e *StartError) Unwrap() error { return e.Err }

func actionMessage(action, stack, stderr string, err error) string {
	if stderr == "" {
		return fmt.Sprintf("%s %s: %v", action, stack, err)
	}
	return fmt.Sprintf("%s %s: %v: %s", action, stack, err, stderr)
}

// Lifecycle stops and starts one stack.
type Lifecycle interface {
	Stop(ctx context.Context, s backup.Stack) error
	Start(ctx context.Context, s backup.Stack) error
}

// ComposeOption lets you override default settings on a Compose.
type ComposeOption func(*Compose)

// Compose drives stacks through `docker compose`.
type Compose struct {
	Binary       string
	StopTimeout  time.Duration
	StartTimeout time.Duration
	StderrLimit  int
	Runner       command.Runner
	Logger       logger.Logger
}

var _ Lifecycle = (*Compose)(nil)

// NewCompose returns a Compose with defaults plus any overrides.
func NewCompose(opts ...ComposeOption) *Compose {
	c := &Compose{
		Binary:       "docker",
		StopTimeout:  5 * time.Minute,
		StartTimeout: 5 * time.Minute,
		StderrLimit:  command.DefaultStderrLimit,
		Runner:       command.ExecRunner{},
		Logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithBinary overrides the docker binary.
func WithBinary(bin string) ComposeOption {
	return func(c *Compose) {
		if bin != "" {
			c.Binary = bin
		}
	}
}

// WithTimeouts overrides the stop and start timeouts. Zero keeps the default.
func WithTimeouts(stop, start time.Duration) ComposeOption {
	return func(c *Compose) {
		if stop > 0 {
			c.StopTimeout = stop
		}
		if start > 0 {
			c.StartTimeout = start
		}
	}
}

// WithStderrLimit overrides how much stderr is kept in errors.
func WithStderrLimit(n int) ComposeOption {
	return func(c *Compose) {
		if n > 0 {
			c.StderrLimit = n
		}
	}
}

// WithRunner overrides the command runner.
func WithRunner(r command.Runner) ComposeOption {
	return func(c *Compose) {
		if r != nil {
			c.Runner = r
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l logger.Logger) ComposeOption {
	return func(c *Compose) {
		if l != nil {
			c.Logger = l
		}
	}
}

// Stop runs `docker compose -f <file> down`.
func (c *Compose) Stop(ctx context.Context, s backup.Stack) error {
	stderr, err := c.run(ctx, s, c.StopTimeout, "down")
	if err != nil {
		return &StopError{Stack: s.Name, Stderr: stderr, Err: err}
	}
	return nil
}

// Start runs `docker compose -f <file> up -d`.
func (c *Compose) Start(ctx context.Context, s backup.Stack) error {
	stderr, err := c.run(ctx, s, c.StartTimeout, "up", "-d")
	if err != nil {
		return &StartError{Stack: s.Name, Stderr: stderr, Err: err}
	}
	return nil
}

func (c *Compose) run(ctx context.Context, s backup.Stack, timeout time.Duration, action ...string) (string, error) {
	file, err := ComposeFile(s.Path)
	if err != nil {
		return "", err
	}

	ctx, cancel := command.WithTimeout(ctx, timeout)
	defer cancel()

	args := append([]string{"compose", "-f", file}, action...)
	c.Logger.Debug("running compose",
		"stack", s.Name,
		"command", command.Describe(c.Binary, args...),
	)

	start := time.Now()
	stderr, err := c.Runner.Run(ctx, c.Binary, args...)
	if err != nil {
		return command.Truncate(stderr, c.StderrLimit), err
	}
	c.Logger.Debug("compose finished",
		"stack", s.Name,
		"action", action[0],
		"duration", time.Since(start).String(),
	)
	return "", nil
}

// ComposeFile returns the compose definition inside dir.
func ComposeFile(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("%w: stack directory %q: %v", ErrComposeMissing, dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %q is not a directory", ErrComposeMissing, dir)
	}
	for _, name := range composeFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no compose file in %q", ErrComposeMissing, dir)
}
