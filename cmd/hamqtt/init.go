package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nugget/hamqtt/internal/defaults"
)

// runInit writes an example hamqtt.yaml and an empty data directory
// into dir. Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing hamqtt in %s\n", dir)

	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dataDir, err)
	}

	// The config may hold broker credentials.
	configPath := filepath.Join(dir, "hamqtt.yaml")
	if err := writeIfMissing(w, configPath, defaults.ConfigYAML, 0o600); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit hamqtt.yaml to point at your broker and declare your entities.")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist, and reports what it did to w.
func writeIfMissing(w io.Writer, path string, content []byte, mode os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(w, "  - %s (exists, skipping)\n", path)
		return nil
	}
	if err := os.WriteFile(path, content, mode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(w, "  ✓ %s\n", path)
	return nil
}
