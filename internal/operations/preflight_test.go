package operations

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreflight(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "new", "dest")
	require.NoError(t, Preflight(Settings{Stacks: stacks("a"), Destination: dest}))
	assert.DirExists(t, dest)

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, entries, "write test file must be removed")
}

func TestPreflight_Errors(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	tests := map[string]Settings{
		"empty stack list":    {Destination: t.TempDir()},
		"no destination":      {Stacks: stacks("a")},
		"destination is file": {Stacks: stacks("a"), Destination: filepath.Join(file, "sub")},
	}
	for name, s := range tests {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, Preflight(s), ErrPreflight)
		})
	}
}

func TestAcquireRunLock(t *testing.T) {
	r, err := AcquireRunLock(clock.WallClock, time.Second)
	require.NoError(t, err)

	_, err = AcquireRunLock(clock.WallClock, 300*time.Millisecond)
	assert.ErrorIs(t, err, ErrLocked)

	r.Release()
	r2, err := AcquireRunLock(clock.WallClock, time.Second)
	require.NoError(t, err)
	r2.Release()
}
