package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kebairia/stackbackup/internal/backup"
	"github.com/kebairia/stackbackup/internal/command"
	"github.com/kebairia/stackbackup/internal/diskusage"
	"github.com/kebairia/stackbackup/internal/logger"
)

const (
	// TimestampFormat is embedded in every archive name.
	TimestampFormat = "20060102-150405"
	// Extension is the archive suffix. Archives are plain tar so that
	// block-level deduplication downstream keeps working.
	Extension = ".tar"
)

var namePattern = regexp.MustCompile(`^.+_[0-9]{8}-[0-9]{6}\.tar$`)

// Kind classifies why an archive could not be created.
type Kind string

const (
	KindSourceUnreadable      Kind = "source unreadable"
	KindDestinationFull       Kind = "destination full"
	KindDestinationUnwritable Kind = "destination unwritable"
	KindToolFailure           Kind = "tool failure"
	KindTimeout               Kind = "timeout"
)

// Error is returned by Create.
type Error struct {
	Stack  string
	Kind   Kind
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("archive %s: %s: %v", e.Stack, e.Kind, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// FileName returns the archive name for a stack at ts.
func FileName(stack string, ts time.Time) string {
	return fmt.Sprintf("%s_%s%s", stack, ts.Format(TimestampFormat), Extension)
}

// IsArchiveName reports whether name follows the FileName convention.
func IsArchiveName(name string) bool {
	return namePattern.MatchString(name)
}

// Archiver creates one tar archive per stack.
type Archiver struct {
	Binary      string
	Timeout     time.Duration
	StderrLimit int
	Runner      command.Runner
	// FreeBytes reports free space on the destination. Nil skips the check.
	FreeBytes func(dir string) (uint64, error)
	Logger    logger.Logger
}

// Option lets you override default settings on an Archiver.
type Option func(*Archiver)

// New returns an Archiver with defaults plus any overrides.
func New(opts ...Option) *Archiver {
	a := &Archiver{
		Binary:      "tar",
		StderrLimit: command.DefaultStderrLimit,
		Runner:      command.ExecRunner{},
		Logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WithBinary overrides the tar binary.
func WithBinary(bin string) Option {
	return func(a *Archiver) {
		if bin != "" {
			a.Binary = bin
		}
	}
}

// WithTimeout bounds each archive run. Zero leaves it unbounded.
func WithTimeout(d time.Duration) Option {
	return func(a *Archiver) { a.Timeout = d }
}

// WithStderrLimit overrides how much stderr is kept in errors.
func WithStderrLimit(n int) Option {
	return func(a *Archiver) {
		if n > 0 {
			a.StderrLimit = n
		}
	}
}

// WithRunner overrides the command runner.
func WithRunner(r command.Runner) Option {
	return func(a *Archiver) {
		if r != nil {
			a.Runner = r
		}
	}
}

// WithFreeSpace sets the free-space query used for the pre-check.
func WithFreeSpace(fn func(dir string) (uint64, error)) Option {
	return func(a *Archiver) { a.FreeBytes = fn }
}

// WithLogger overrides the logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Archiver) {
		if l != nil {
			a.Logger = l
		}
	}
}

// Create archives the stack directory into destDir/<stack>/<stack>_<ts>.tar.
// The stack must be stopped; that ordering is up to the caller.
func (a *Archiver) Create(ctx context.Context, s backup.Stack, destDir string, ts time.Time) (backup.ArchiveFile, error) {
	fail := func(kind Kind, stderr string, err error) (backup.ArchiveFile, error) {
		return backup.ArchiveFile{}, &Error{Stack: s.Name, Kind: kind, Stderr: stderr, Err: err}
	}

	info, err := os.Stat(s.Path)
	if err != nil {
		return fail(KindSourceUnreadable, "", err)
	}
	if !info.IsDir() {
		return fail(KindSourceUnreadable, "", fmt.Errorf("%q is not a directory", s.Path))
	}

	targetDir := filepath.Join(destDir, s.Name)
	if err := backup.EnsureDirectoryExist(targetDir); err != nil {
		return fail(KindDestinationUnwritable, "", err)
	}
	target := filepath.Join(targetDir, FileName(s.Name, ts))
	if _, err := os.Lstat(target); err == nil {
		return fail(KindDestinationUnwritable, "", fmt.Errorf("%q already exists", target))
	}

	size, err := diskusage.DirSize(s.Path)
	if err != nil {
		return fail(KindSourceUnreadable, "", err)
	}
	if a.FreeBytes != nil {
		free, err := a.FreeBytes(destDir)
		switch {
		case err != nil:
			a.Logger.Warn("free space check skipped", "stack", s.Name, "error", err.Error())
		case uint64(size) > free:
			return fail(KindDestinationFull, "", fmt.Errorf("stack needs %s, destination has %s free",
				humanize.IBytes(uint64(size)), humanize.IBytes(free)))
		}
	}

	args := []string{"-c", "-f", target, "-C", filepath.Dir(s.Path), filepath.Base(s.Path)}
	a.Logger.Info("creating archive",
		"stack", s.Name,
		"path", target,
		"source_size", humanize.IBytes(uint64(size)),
	)

	ctx, cancel := command.WithTimeout(ctx, a.Timeout)
	defer cancel()

	start := time.Now()
	stderr, err := a.Runner.Run(ctx, a.Binary, args...)
	if err != nil {
		if rmErr := os.Remove(target); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			a.Logger.Warn("could not remove partial archive", "path", target, "error", rmErr.Error())
		}
		kind := KindToolFailure
		if errors.Is(err, command.ErrTimeout) {
			kind = KindTimeout
		}
		return fail(kind, command.Truncate(stderr, a.StderrLimit), err)
	}

	out, err := os.Stat(target)
	if err != nil {
		return fail(KindToolFailure, "", fmt.Errorf("archive missing after %s: %w", a.Binary, err))
	}
	if !out.Mode().IsRegular() {
		return fail(KindToolFailure, "", fmt.Errorf("%q is not a regular file", target))
	}

	a.Logger.Info("archive created",
		"stack", s.Name,
		"path", target,
		"size", humanize.IBytes(uint64(out.Size())),
		"bytes", out.Size(),
		"duration", time.Since(start).String(),
	)
	return backup.ArchiveFile{Path: target, CreatedAt: ts, SizeBytes: out.Size()}, nil
}
