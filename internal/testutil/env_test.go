package testutil_test

import (
	"os"
	"testing"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/testutil"
)

func TestSetupTestEnv(t *testing.T) {
	configDir, dataDir := testutil.SetupTestEnv(t)

	if got := os.Getenv("TOOLKEEPER_CONFIG_DIR"); got != configDir {
		t.Errorf("TOOLKEEPER_CONFIG_DIR = %q, want %q", got, configDir)
	}
	if got := os.Getenv("TOOLKEEPER_DATA_DIR"); got != dataDir {
		t.Errorf("TOOLKEEPER_DATA_DIR = %q, want %q", got, dataDir)
	}

	for _, dir := range []string{configDir, dataDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("directory %s not created: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}

func TestSetupTestEnv_Isolation(t *testing.T) {
	var first string
	t.Run("first", func(t *testing.T) {
		first, _ = testutil.SetupTestEnv(t)
	})
	t.Run("second", func(t *testing.T) {
		second, _ := testutil.SetupTestEnv(t)
		if second == first {
			t.Error("tests share a config directory")
		}
	})
}
