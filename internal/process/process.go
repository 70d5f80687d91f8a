package process

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"sync"
	"sync/atomic"
)

// KilledExitCode is reported for a child terminated by Kill.
// No real exit status can take this value.
const KilledExitCode = math.MinInt32

// ChangeKind tags a ChangeEvent.
type ChangeKind int

const (
	// ChangeStarted is delivered once the child has been spawned.
	ChangeStarted ChangeKind = iota
	// ChangeTerminated is delivered once after the output stream has ended.
	ChangeTerminated
)

// String returns a human-readable kind name.
func (k ChangeKind) String() string {
	switch k {
	case ChangeStarted:
		return "started"
	case ChangeTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ChangeEvent reports a lifecycle transition of a Handle.
type ChangeEvent struct {
	Kind     ChangeKind
	HandleID string
	// ExitCode is set for ChangeTerminated only.
	ExitCode int
}

// OutputChunk is a slice of raw child output. Data is owned by the receiver.
type OutputChunk struct {
	Seq      uint64
	HandleID string
	Data     []byte
}

// Handle is one spawned child process.
type Handle struct {
	// ID uniquely identifies this handle within the process lifetime.
	ID string
	// Dir is the working directory of the child.
	Dir string
	// Argv is the full argument vector, Argv[0] being the executable.
	Argv []string

	cmd *exec.Cmd

	done     chan struct{}
	running  atomic.Bool
	killed   atomic.Bool
	exitCode atomic.Int64
	waitErr  error
	mu       sync.RWMutex
}

func newHandle(id, dir string, argv []string, cmd *exec.Cmd) *Handle {
	h := &Handle{
		ID:   id,
		Dir:  dir,
		Argv: append([]string(nil), argv...),
		cmd:  cmd,
		done: make(chan struct{}),
	}
	h.exitCode.Store(-1)
	return h
}

// PID returns the OS process id, or -1 before the process was spawned.
func (h *Handle) PID() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return -1
	}
	return h.cmd.Process.Pid
}

// Running reports whether the child has not yet been resolved.
func (h *Handle) Running() bool {
	return h.running.Load()
}

// Killed reports whether Kill was requested while the child was running.
func (h *Handle) Killed() bool {
	return h.killed.Load()
}

// ExitCode returns the resolved exit code. ok is false while running.
func (h *Handle) ExitCode() (code int, ok bool) {
	select {
	case <-h.done:
		return int(h.exitCode.Load()), true
	default:
		return 0, false
	}
}

// WaitError returns the error reported by the operating system wait, if any.
func (h *Handle) WaitError() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.waitErr
}

// Done returns a channel closed when the handle resolves.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the handle resolves or ctx is done.
func (h *Handle) Wait(ctx context.Context) (int, error) {
	select {
	case <-h.done:
		return int(h.exitCode.Load()), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// finish records the final status and marks the handle as no longer running.
// The done channel is closed separately, after the Terminated event went out.
// Only the reader goroutine calls it.
func (h *Handle) finish(waitErr error) int {
	code := exitCodeOf(waitErr)
	if h.killed.Load() {
		code = KilledExitCode
	}

	h.mu.Lock()
	h.waitErr = waitErr
	h.mu.Unlock()

	h.exitCode.Store(int64(code))
	h.running.Store(false)
	return code
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// SpawnError is returned when the child could not be launched.
type SpawnError struct {
	Path string
	Dir  string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s (in %s): %v", e.Path, e.Dir, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Sentinel errors.
var (
	// ErrAlreadyRunning is returned by Start while a child is live.
	ErrAlreadyRunning = errors.New("a process is already running")

	// ErrEmptyArgv is returned by Start without an executable.
	ErrEmptyArgv = errors.New("argument vector is empty")
)
