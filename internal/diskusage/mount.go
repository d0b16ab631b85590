package diskusage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MountFunc returns the mount point containing path.
type MountFunc func(path string) (string, error)

// MountPoint finds the longest mount point in /proc/self/mountinfo that
// contains path.
func MountPoint(path string) (string, error) {
	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return "", err
	}
	defer f.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	var mounts []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 5 {
			continue
		}
		mounts = append(mounts, unescapeMount(fields[4]))
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return longestPrefix(abs, mounts)
}

func longestPrefix(path string, mounts []string) (string, error) {
	best := ""
	for _, m := range mounts {
		if m == "/" || path == m || strings.HasPrefix(path, m+"/") {
			if len(m) > len(best) {
				best = m
			}
		}
	}
	if best == "" {
		return "", fmt.Errorf("no mount point for %q", path)
	}
	return best, nil
}

// unescapeMount decodes the octal escapes mountinfo uses for spaces and tabs.
func unescapeMount(s string) string {
	r := strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`)
	return r.Replace(s)
}
