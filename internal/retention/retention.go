package retention

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/clock"

	"github.com/kebairia/stackbackup/internal/archive"
	"github.com/kebairia/stackbackup/internal/backup"
	"github.com/kebairia/stackbackup/internal/logger"
)

const day = 24 * time.Hour

// Sweeper deletes archives older than a maximum age.
type Sweeper struct {
	Clock  clock.Clock
	Logger logger.Logger
	// Remove deletes one file. It defaults to os.Remove.
	Remove func(path string) error
}

// New returns a Sweeper using the wall clock.
func New(log logger.Logger) *Sweeper {
	if log == nil {
		log = logger.Nop()
	}
	return &Sweeper{Clock: clock.WallClock, Logger: log, Remove: os.Remove}
}

// Cutoff returns the instant before which archives are expired.
func (s *Sweeper) Cutoff(maxAgeDays int) time.Time {
	return s.Clock.Now().Add(-time.Duration(maxAgeDays) * day)
}

// Sweep walks destDir and deletes every archive whose modification time is
// older than maxAgeDays. Files not named like archives are never touched.
// Failures on single files are recorded in Skipped and the sweep goes on.
func (s *Sweeper) Sweep(destDir string, maxAgeDays int) backup.RetentionResult {
	result := backup.RetentionResult{MaxAgeDays: maxAgeDays, Deleted: []string{}}
	cutoff := s.Cutoff(maxAgeDays)

	s.Logger.Info("retention sweep started",
		"path", destDir,
		"max_age_days", maxAgeDays,
		"cutoff", cutoff.Format(time.RFC3339),
	)

	var expired []string
	err := filepath.WalkDir(destDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == destDir {
				return err
			}
			result.Skipped = append(result.Skipped, backup.SkippedFile{Path: path, Reason: err.Error()})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !archive.IsArchiveName(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			result.Skipped = append(result.Skipped, backup.SkippedFile{Path: path, Reason: err.Error()})
			return nil
		}
		if info.ModTime().Before(cutoff) {
			expired = append(expired, path)
		}
		return nil
	})
	if err != nil {
		result.Err = fmt.Sprintf("walk %s: %v", destDir, err)
		s.Logger.Error("retention sweep failed", "path", destDir, "error", err.Error())
		return result
	}

	sort.Strings(expired)
	for _, path := range expired {
		size := int64(0)
		if info, err := os.Stat(path); err == nil {
			size = info.Size()
		}
		if err := s.Remove(path); err != nil {
			result.Skipped = append(result.Skipped, backup.SkippedFile{Path: path, Reason: err.Error()})
			s.Logger.Warn("could not delete expired archive", "path", path, "error", err.Error())
			continue
		}
		result.Deleted = append(result.Deleted, path)
		result.FreedBytes += size
		s.Logger.Info("deleted expired archive", "path", path, "size", humanize.IBytes(uint64(size)))
	}

	s.Logger.Info("retention sweep finished",
		"deleted", result.Count(),
		"freed", humanize.IBytes(uint64(result.FreedBytes)),
		"skipped", len(result.Skipped),
	)
	return result
}
