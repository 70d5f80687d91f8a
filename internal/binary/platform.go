package binary

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// WellKnownDirs returns the directories the tool is usually installed in on
// goos. getenv is consulted for per-user locations; nil means os.Getenv.
func WellKnownDirs(goos, name string, getenv func(string) string) []string {
	if getenv == nil {
		getenv = os.Getenv
	}

	var dirs []string
	add := func(parts ...string) {
		if parts[0] == "" {
			return
		}
		dirs = append(dirs, filepath.Join(parts...))
	}

	switch goos {
	case "windows":
		add(getenv("ProgramFiles"), name)
		add(getenv("ProgramFiles(x86)"), name)
		add(getenv("LOCALAPPDATA"), "Programs", name)
	case "darwin":
		add("/Applications", name+".app", "Contents", "MacOS")
		add("/opt/homebrew/bin")
		add("/usr/local/bin")
		add(getenv("HOME"), "Applications", name+".app", "Contents", "MacOS")
	default:
		add("/usr/local/bin")
		add("/usr/bin")
		add("/opt", name)
		add(getenv("HOME"), ".local", "bin")
	}
	return dirs
}

// isExecutableFile reports whether path is a regular file the current user
// could execute. On Windows any regular file with an .exe suffix qualifies.
func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if runtime.GOOS == "windows" {
		return strings.EqualFold(filepath.Ext(path), ".exe")
	}
	return info.Mode().Perm()&0111 != 0
}
