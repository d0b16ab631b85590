package operations

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/juju/clock"
	"github.com/juju/mutex/v2"

	"github.com/kebairia/stackbackup/internal/backup"
)

// LockName is the machine-wide lock held for the duration of a run.
const LockName = "stackbackup"

var (
	// ErrPreflight aborts a run before any stack is touched.
	ErrPreflight = errors.New("pre-flight check failed")
	// ErrLocked means another run holds the machine lock.
	ErrLocked = errors.New("another backup run is in progress")
	// ErrRunFailed is returned when at least one stack did not back up cleanly.
	ErrRunFailed = errors.New("backup run failed")
)

// Preflight verifies that a run can start: at least one stack and a writable
// destination.
func Preflight(settings Settings) error {
	if len(settings.Stacks) == 0 {
		return fmt.Errorf("%w: stack list is empty", ErrPreflight)
	}
	if settings.Destination == "" {
		return fmt.Errorf("%w: destination is not set", ErrPreflight)
	}
	if err := backup.EnsureDirectoryExist(settings.Destination); err != nil {
		return fmt.Errorf("%w: %v", ErrPreflight, err)
	}
	probe, err := os.CreateTemp(settings.Destination, ".write-test-*")
	if err != nil {
		return fmt.Errorf("%w: destination %q is not writable: %v", ErrPreflight, settings.Destination, err)
	}
	probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		return fmt.Errorf("%w: remove %q: %v", ErrPreflight, probe.Name(), err)
	}
	return nil
}

// AcquireRunLock takes the machine lock, waiting at most timeout.
func AcquireRunLock(clk clock.Clock, timeout time.Duration) (mutex.Releaser, error) {
	releaser, err := mutex.Acquire(mutex.Spec{
		Name:    LockName,
		Clock:   clk,
		Delay:   250 * time.Millisecond,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLocked, err)
	}
	return releaser, nil
}
