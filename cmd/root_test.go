package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/stackbackup/internal/backup"
	"github.com/kebairia/stackbackup/internal/config"
	"github.com/kebairia/stackbackup/internal/operations"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(fmt.Errorf("%w: db", operations.ErrRunFailed)))
	assert.Equal(t, ExitAborted, ExitCode(fmt.Errorf("%w: empty", operations.ErrPreflight)))
	assert.Equal(t, ExitAborted, ExitCode(config.ErrLoadConfig))
}

func TestStacksCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "web"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "web", "docker-compose.yml"), nil, 0o644))

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
stacks:
  base_directory: %s
  names: [web, db]
backup:
  destination: %s
`, dir, filepath.Join(dir, "dest"))), 0o644))

	out := runRoot(t, "stacks", "--config", cfgPath)
	assert.Contains(t, out, "docker-compose.yml")
	assert.Contains(t, out, "missing")
}

func runRoot(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestDiskCommand_ShowsLastRun(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "dest")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
stacks:
  extra_paths: [%s]
backup:
  destination: %s
log:
  file: %s
`, filepath.Join(dir, "web"), dest, filepath.Join(dir, "run.log"))), 0o644))

	out := runRoot(t, "disk", "--config", cfgPath)
	assert.Contains(t, out, "No previous run recorded.")

	start := time.Date(2026, 4, 12, 3, 0, 0, 0, time.UTC)
	last := backup.RunResult{
		Host:       "nas01",
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		Status:     backup.StatusSuccess,
	}
	require.NoError(t, last.Write(dest))

	out = runRoot(t, "disk", "--config", cfgPath)
	assert.Contains(t, out, "DISK USAGE CHECK")
	assert.Contains(t, out, "Status: SUCCESS | Host: nas01")
}
