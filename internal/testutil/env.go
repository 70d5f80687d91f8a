// Package testutil provides utilities for testing toolkeeper in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SetupTestEnv creates isolated config and data directories for one test and
// points toolkeeper at them, so tests never read or write the user's real
// configuration, managed tool or install journal.
//
// The cleanup function is automatically handled by t.TempDir(),
// so callers don't need to manually clean up.
func SetupTestEnv(t *testing.T) (configDir, dataDir string) {
	t.Helper()

	// Create temp directory (auto-cleaned by testing framework)
	tmpDir := t.TempDir()
	configDir = filepath.Join(tmpDir, "config")
	dataDir = filepath.Join(tmpDir, "data")

	t.Setenv("TOOLKEEPER_CONFIG_DIR", configDir)
	t.Setenv("TOOLKEEPER_DATA_DIR", dataDir)

	for _, dir := range []string{configDir, dataDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}
	return configDir, dataDir
}
