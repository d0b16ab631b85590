package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/stackbackup/internal/backup"
	"github.com/kebairia/stackbackup/internal/command"
)

var ts = time.Date(2026, 1, 5, 3, 4, 5, 0, time.UTC)

// tarRunner pretends to be tar: it writes a file of the given size to the -f target.
type tarRunner struct {
	args   []string
	size   int
	stderr string
	err    error
}

func (r *tarRunner) Run(_ context.Context, _ string, args ...string) (string, error) {
	r.args = args
	target := args[2]
	if writeErr := os.WriteFile(target, make([]byte, r.size), 0o644); writeErr != nil {
		return "", writeErr
	}
	return r.stderr, r.err
}

func newStack(t *testing.T, name string) backup.Stack {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "compose.yaml"), make([]byte, 64), 0o644))
	return backup.Stack{Name: name, Path: dir}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "web_20260105-030405.tar", FileName("web", ts))
	assert.True(t, IsArchiveName(FileName("my_stack", ts)))
}

func TestFileName_UniquePerStack(t *testing.T) {
	seen := map[string]bool{}
	for _, name := range []string{"a", "b", "c", "a-b", "a_b"} {
		n := FileName(name, ts)
		assert.False(t, seen[n], n)
		seen[n] = true
	}
}

func TestIsArchiveName(t *testing.T) {
	tests := map[string]bool{
		"web_20260105-030405.tar":     true,
		"web_20260105-030405.tar.zst": false,
		"web_20260105_030405.tar":     false,
		"metadata.json":               false,
		"notes.tar":                   false,
		"_20260105-030405.tar":        false,
	}
	for name, want := range tests {
		assert.Equal(t, want, IsArchiveName(name), name)
	}
}

func TestCreate_Success(t *testing.T) {
	s := newStack(t, "web")
	dest := t.TempDir()
	r := &tarRunner{size: 2048}
	a := New(WithRunner(r), WithFreeSpace(func(string) (uint64, error) { return 1 << 20, nil }))

	f, err := a.Create(context.Background(), s, dest, ts)
	require.NoError(t, err)

	want := filepath.Join(dest, "web", "web_20260105-030405.tar")
	assert.Equal(t, want, f.Path)
	assert.Equal(t, int64(2048), f.SizeBytes)
	assert.Equal(t, ts, f.CreatedAt)
	assert.Equal(t, []string{"-c", "-f", want, "-C", filepath.Dir(s.Path), "web"}, r.args)
}

func TestCreate_ToolFailureRemovesPartialFile(t *testing.T) {
	s := newStack(t, "db")
	dest := t.TempDir()
	r := &tarRunner{size: 10, stderr: "tar: write error\n", err: errors.New("tar exited 2")}

	_, err := New(WithRunner(r)).Create(context.Background(), s, dest, ts)

	var archErr *Error
	require.ErrorAs(t, err, &archErr)
	assert.Equal(t, KindToolFailure, archErr.Kind)
	assert.Equal(t, "tar: write error", archErr.Stderr)
	assert.NoFileExists(t, filepath.Join(dest, "db", FileName("db", ts)))
}

func TestCreate_Timeout(t *testing.T) {
	s := newStack(t, "db")
	r := &tarRunner{err: fmt.Errorf("tar: %w", command.ErrTimeout)}

	_, err := New(WithRunner(r), WithTimeout(time.Second)).Create(context.Background(), s, t.TempDir(), ts)

	var archErr *Error
	require.ErrorAs(t, err, &archErr)
	assert.Equal(t, KindTimeout, archErr.Kind)
}

func TestCreate_SourceUnreadable(t *testing.T) {
	r := &tarRunner{}
	_, err := New(WithRunner(r)).Create(context.Background(),
		backup.Stack{Name: "ghost", Path: filepath.Join(t.TempDir(), "ghost")}, t.TempDir(), ts)

	var archErr *Error
	require.ErrorAs(t, err, &archErr)
	assert.Equal(t, KindSourceUnreadable, archErr.Kind)
	assert.Nil(t, r.args)
}

func TestCreate_InsufficientSpace(t *testing.T) {
	s := newStack(t, "media")
	r := &tarRunner{}
	a := New(WithRunner(r), WithFreeSpace(func(string) (uint64, error) { return 10, nil }))

	_, err := a.Create(context.Background(), s, t.TempDir(), ts)

	var archErr *Error
	require.ErrorAs(t, err, &archErr)
	assert.Equal(t, KindDestinationFull, archErr.Kind)
	assert.Nil(t, r.args, "tar must not run when space is short")
}

func TestCreate_FreeSpaceErrorSkipsCheck(t *testing.T) {
	s := newStack(t, "media")
	a := New(WithRunner(&tarRunner{size: 1}),
		WithFreeSpace(func(string) (uint64, error) { return 0, errors.New("statfs failed") }))

	_, err := a.Create(context.Background(), s, t.TempDir(), ts)
	assert.NoError(t, err)
}

func TestCreate_ExistingTargetIsNotOverwritten(t *testing.T) {
	s := newStack(t, "web")
	dest := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "web"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "web", FileName("web", ts)), []byte("old"), 0o644))

	_, err := New(WithRunner(&tarRunner{})).Create(context.Background(), s, dest, ts)

	var archErr *Error
	require.ErrorAs(t, err, &archErr)
	assert.Equal(t, KindDestinationUnwritable, archErr.Kind)
}
