package operations

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kebairia/stackbackup/internal/backup"
)

const banner = "=================================================="

// BackupAll runs one complete backup: lock, pre-flight, every stack,
// retention, disk usage, metadata and report. It returns ErrRunFailed when
// any stack failed, and a pre-flight or lock error before touching stacks.
func (om *OperationManager) BackupAll() (backup.RunResult, error) {
	log := om.log
	settings := om.Settings()

	log.Info(banner)
	log.Info("DOCKER BACKUP START", "host", settings.Host, "stacks", len(settings.Stacks))
	defer log.Info("DOCKER BACKUP END")

	releaser, err := AcquireRunLock(om.clock, om.cfg.Backup.LockTimeout)
	if err != nil {
		log.Error("could not acquire run lock", "error", err.Error())
		return backup.RunResult{}, err
	}
	defer releaser.Release()

	if err := Preflight(settings); err != nil {
		log.Error("aborting before any stack was touched", "error", err.Error())
		return backup.RunResult{}, err
	}

	orchestrator, cleanup, err := om.Orchestrator()
	if err != nil {
		return backup.RunResult{}, err
	}
	defer cleanup()

	result := orchestrator.Run(om.ctx)

	if err := result.Write(settings.Destination); err != nil {
		log.Warn("could not write run metadata", "error", err.Error())
	}

	reporter := om.Reporter()
	text := reporter.Render(result)
	// Delivery problems are logged by the reporter and never change the status.
	_ = reporter.Deliver(om.ctx, result, text)

	if result.Status != backup.StatusSuccess {
		var failed []string
		for _, o := range result.Outcomes {
			if !o.Succeeded() {
				failed = append(failed, o.Stack.Name)
			}
		}
		return result, fmt.Errorf("%w: %s", ErrRunFailed, strings.Join(failed, ", "))
	}
	return result, nil
}

// Prune runs only the retention sweep.
func (om *OperationManager) Prune() backup.RetentionResult {
	return om.sweeper().Sweep(om.cfg.Backup.Destination, om.cfg.Backup.RetentionDays)
}

// DiskUsage runs only the disk probe.
func (om *OperationManager) DiskUsage() backup.DiskUsage {
	return om.prober().Probe(om.cfg.Backup.Destination)
}

// LastRun loads the result of the previous run from the destination.
func (om *OperationManager) LastRun() (backup.RunResult, error) {
	var r backup.RunResult
	err := r.Load(filepath.Join(om.cfg.Backup.Destination, backup.MetadataFilename))
	return r, err
}
