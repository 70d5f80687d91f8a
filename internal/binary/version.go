package binary

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

var (
	versionRegex = regexp.MustCompile(`(\d+)\.(\d+)`)
	numberRegex  = regexp.MustCompile(`\b(\d{3,4})\b`)
)

// ParseVersion extracts a major.minor version from tool output. A bare
// version number such as "246" is read as 2.46.
func ParseVersion(output string) (Version, error) {
	if m := versionRegex.FindStringSubmatch(output); m != nil {
		major, err1 := strconv.Atoi(m[1])
		minor, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil && minor < 100 {
			return Version{Major: major, Minor: minor}, nil
		}
	}
	if m := numberRegex.FindStringSubmatch(output); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return VersionFromNumber(n), nil
		}
	}
	return Version{}, fmt.Errorf("no version found in output %q", truncate(output, 80))
}

// Prober asks a tool executable for its version.
type Prober interface {
	Probe(ctx context.Context, path string) (Version, error)
}

// DefaultProbeTimeout bounds a single version query.
const DefaultProbeTimeout = 10 * time.Second

// ExecProber runs "<path> --version" and parses the output.
type ExecProber struct {
	Args    []string
	Timeout time.Duration
}

// Probe implements Prober.
func (p ExecProber) Probe(ctx context.Context, path string) (Version, error) {
	args := p.Args
	if len(args) == 0 {
		args = []string{"--version"}
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args...)
	// Grandchildren holding the output pipe must not outlive the timeout.
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return Version{}, fmt.Errorf("version query: %w", ctx.Err())
	}
	// Some builds exit non-zero after printing the version.
	v, perr := ParseVersion(string(out))
	if perr != nil {
		if err != nil {
			return Version{}, fmt.Errorf("version query: %w", err)
		}
		return Version{}, perr
	}
	return v, nil
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, path string) (Version, error)

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context, path string) (Version, error) {
	return f(ctx, path)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
