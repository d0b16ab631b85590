package operations

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/kebairia/stackbackup/internal/backup"
	"github.com/kebairia/stackbackup/internal/config"
	"github.com/kebairia/stackbackup/internal/logger"
)

// fakeDocker stands in for the docker CLI: it logs its arguments and fails
// to bring down the stack under a directory named "broken".
const fakeDocker = `#!/bin/sh
echo "$@" >> "$CALLS"
case "$3:$4" in
  */broken/*:down) echo "cannot stop broken" >&2; exit 1 ;;
esac
exit 0
`

func setupRun(t *testing.T) (config.Config, string) {
	t.Helper()
	root := t.TempDir()
	base := filepath.Join(root, "stacks")
	for _, name := range []string{"web", "broken"} {
		dir := filepath.Join(base, name)
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "compose.yaml"), []byte("services: {}\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "db"), []byte("payload"), 0o644))
	}

	bin := filepath.Join(root, "docker")
	require.NoError(t, os.WriteFile(bin, []byte(fakeDocker), 0o755))
	calls := filepath.Join(root, "calls")
	t.Setenv("CALLS", calls)

	cfg := config.Config{
		Stacks: config.StacksConfig{BaseDirectory: base, Names: []string{"web", "broken"}},
		Backup: config.BackupConfig{
			Destination:   filepath.Join(root, "dest"),
			RetentionDays: 28,
			LockTimeout:   5e9,
			StderrLimit:   2000,
			DockerBinary:  bin,
			TarBinary:     "tar",
		},
		Log: config.LogConfig{File: filepath.Join(root, "run.log"), Level: "info"},
	}
	return cfg, calls
}

func TestBackupAll_EndToEnd(t *testing.T) {
	cfg, calls := setupRun(t)
	om, err := NewOperationManagerFromConfig(context.Background(), cfg,
		logger.WithConsole(zapcore.AddSync(&strings.Builder{})))
	require.NoError(t, err)

	res, err := om.BackupAll()
	require.NoError(t, om.Close())

	assert.ErrorIs(t, err, ErrRunFailed)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, backup.StatusFailure, res.Status)
	require.Len(t, res.Outcomes, 2)

	web := res.Outcomes[0]
	require.True(t, web.Succeeded(), "%+v", web)
	require.NotNil(t, web.File)
	assert.FileExists(t, web.File.Path)
	assert.Positive(t, web.File.SizeBytes)

	broken := res.Outcomes[1]
	assert.Equal(t, backup.StepFailed, broken.Stop.Status)
	assert.Contains(t, broken.Stop.Message, "cannot stop broken")
	assert.Equal(t, backup.StepSkipped, broken.Archive.Status)
	assert.Equal(t, backup.StepOK, broken.Start.Status)

	// Stop and start were both issued for the broken stack.
	data, err := os.ReadFile(calls)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasSuffix(lines[2], "broken/compose.yaml down"))
	assert.True(t, strings.HasSuffix(lines[3], "broken/compose.yaml up -d"))

	assert.FileExists(t, filepath.Join(cfg.Backup.Destination, backup.MetadataFilename))
	assert.Contains(t, res.Narrative, "DOCKER BACKUP START")

	runLog, err := os.ReadFile(cfg.Log.File)
	require.NoError(t, err)
	assert.Contains(t, string(runLog), "stack backup failed")
	assert.Contains(t, string(runLog), "DOCKER BACKUP END")
	assert.Contains(t, string(runLog), `"from": "stopping", "to": "starting"`)

	last, err := om.LastRun()
	require.NoError(t, err)
	assert.Equal(t, backup.StatusFailure, last.Status)
	assert.Len(t, last.Outcomes, 2)
	assert.Empty(t, last.Narrative)
}

func TestLastRun_NoPreviousRun(t *testing.T) {
	cfg, _ := setupRun(t)
	om, err := NewOperationManagerFromConfig(context.Background(), cfg,
		logger.WithConsole(zapcore.AddSync(&strings.Builder{})))
	require.NoError(t, err)
	defer om.Close()

	_, err = om.LastRun()
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestBackupAll_PreflightAbortsBeforeStacks(t *testing.T) {
	cfg, calls := setupRun(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	cfg.Backup.Destination = filepath.Join(blocker, "dest")

	om, err := NewOperationManagerFromConfig(context.Background(), cfg,
		logger.WithConsole(zapcore.AddSync(&strings.Builder{})))
	require.NoError(t, err)
	defer om.Close()

	_, err = om.BackupAll()
	assert.ErrorIs(t, err, ErrPreflight)
	assert.False(t, errors.Is(err, ErrRunFailed))
	assert.NoFileExists(t, calls)
}
