package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MetadataFilename is written into the destination after every run.
const MetadataFilename = "metadata.json"

// Load reads a run metadata file.
func (r *RunResult) Load(filePath string) error {
	jsonFile, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("couldn't open metadata file %q: %w", filePath, err)
	}
	defer jsonFile.Close()

	decoder := json.NewDecoder(jsonFile)
	if err := decoder.Decode(r); err != nil {
		return fmt.Errorf("decode metadata JSON: %w", err)
	}
	return nil
}

// Write stores the run result as metadata.json inside dirPath.
func (r *RunResult) Write(dirPath string) error {
	filePath := filepath.Join(dirPath, MetadataFilename)

	if err := EnsureDirectoryExist(dirPath); err != nil {
		return fmt.Errorf("ensure metadata directory %q: %w", dirPath, err)
	}

	// Write to a sibling and rename so a killed run never leaves half a file.
	tmp := filePath + ".tmp"
	jsonFile, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create metadata file %q: %w", tmp, err)
	}

	encoder := json.NewEncoder(jsonFile)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(r); err != nil {
		jsonFile.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode metadata JSON: %w", err)
	}
	if err := jsonFile.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close metadata file %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, filePath); err != nil {
		return fmt.Errorf("rename metadata file: %w", err)
	}
	return nil
}
