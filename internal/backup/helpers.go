package backup

import (
	"fmt"
	"os"
)

// EnsureDirectoryExist creates dirPath and its parents when missing.
func EnsureDirectoryExist(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory %q: %w", dirPath, err)
	}
	return nil
}
