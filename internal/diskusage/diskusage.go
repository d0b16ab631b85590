package diskusage

import (
	"fmt"
	"io/fs"
	"math"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/kebairia/stackbackup/internal/backup"
	"github.com/kebairia/stackbackup/internal/logger"
)

// Stats are the raw capacity figures of a mounted filesystem.
type Stats struct {
	Total uint64
	Free  uint64 // available to unprivileged users
	Used  uint64
}

// StatFunc returns filesystem stats for the mount containing path.
type StatFunc func(path string) (Stats, error)

// Statfs reads Stats with statfs(2).
func Statfs(path string) (Stats, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Stats{}, fmt.Errorf("statfs %q: %w", path, err)
	}
	bsize := uint64(st.Bsize)
	total := st.Blocks * bsize
	return Stats{
		Total: total,
		Free:  st.Bavail * bsize,
		Used:  total - st.Bfree*bsize,
	}, nil
}

// Probe snapshots the destination volume.
type Probe struct {
	Stat   StatFunc
	Mounts MountFunc
	Logger logger.Logger
}

// New returns a Probe backed by statfs(2) and /proc/self/mountinfo.
func New(log logger.Logger) *Probe {
	if log == nil {
		log = logger.Nop()
	}
	return &Probe{Stat: Statfs, Mounts: MountPoint, Logger: log}
}

// Probe returns the usage of the volume holding dir. It never fails: on error
// the sentinel from backup.UnavailableUsage is returned.
func (p *Probe) Probe(dir string) backup.DiskUsage {
	st, err := p.Stat(dir)
	if err != nil {
		p.Logger.Warn("disk usage unavailable", "path", dir, "error", err.Error())
		return backup.UnavailableUsage(dir, err)
	}
	if st.Total == 0 {
		err := fmt.Errorf("statfs %q: zero capacity", dir)
		p.Logger.Warn("disk usage unavailable", "path", dir, "error", err.Error())
		return backup.UnavailableUsage(dir, err)
	}

	usage := backup.DiskUsage{
		Path:        dir,
		TotalBytes:  st.Total,
		UsedBytes:   st.Used,
		FreeBytes:   st.Free,
		UsedPercent: Percent(st.Used, st.Total),
		Available:   true,
	}
	if p.Mounts != nil {
		if mnt, err := p.Mounts(dir); err == nil {
			usage.Mount = mnt
		}
	}
	if size, err := DirSize(dir); err != nil {
		p.Logger.Warn("backup content size unavailable", "path", dir, "error", err.Error())
		usage.ContentBytes = -1
	} else {
		usage.ContentBytes = size
	}
	return usage
}

// FreeBytes returns the space available on the volume holding dir.
func (p *Probe) FreeBytes(dir string) (uint64, error) {
	st, err := p.Stat(dir)
	if err != nil {
		return 0, err
	}
	return st.Free, nil
}

// Percent returns used/total*100 rounded to one decimal and clamped to [0,100].
func Percent(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	pct := float64(used) / float64(total) * 100
	pct = math.Round(pct*10) / 10
	return math.Max(0, math.Min(100, pct))
}

// DirSize sums the apparent size of every regular file under root.
func DirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("size of %q: %w", root, err)
	}
	return total, nil
}
