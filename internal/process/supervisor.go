package process

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/logging"
	"github.com/google/uuid"
)

// DefaultReadSize is the size of a single read from the child's output pipe.
const DefaultReadSize = 4096

// Supervisor runs at most one child process at a time and publishes its
// output and lifecycle events to subscribers.
//
// Handlers are called synchronously from the reader goroutine (and from Start
// for ChangeStarted), one event at a time and in order. A slow handler slows
// down draining of the child's output.
//
// Supervisor is safe for concurrent use.
type Supervisor struct {
	mu      sync.Mutex
	current *Handle
	stdin   io.WriteCloser

	hmu      sync.RWMutex
	onOutput []func(OutputChunk)
	onChange []func(ChangeEvent)

	readSize int
	env      []string
	logger   logging.Logger
}

// SupervisorOption configures a Supervisor instance.
type SupervisorOption func(*Supervisor)

// WithLogger sets the supervisor logger.
func WithLogger(l logging.Logger) SupervisorOption {
	return func(s *Supervisor) {
		s.logger = logging.OrNop(l)
	}
}

// WithReadSize sets the maximum size of one output chunk.
func WithReadSize(n int) SupervisorOption {
	return func(s *Supervisor) {
		if n > 0 {
			s.readSize = n
		}
	}
}

// WithEnv sets the child environment. Nil inherits the parent environment.
func WithEnv(env []string) SupervisorOption {
	return func(s *Supervisor) {
		s.env = append([]string(nil), env...)
	}
}

// NewSupervisor creates a new process supervisor.
func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		readSize: DefaultReadSize,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnOutput subscribes fn to output chunks.
func (s *Supervisor) OnOutput(fn func(OutputChunk)) {
	s.hmu.Lock()
	s.onOutput = append(s.onOutput, fn)
	s.hmu.Unlock()
}

// OnChange subscribes fn to lifecycle events.
func (s *Supervisor) OnChange(fn func(ChangeEvent)) {
	s.hmu.Lock()
	s.onChange = append(s.onChange, fn)
	s.hmu.Unlock()
}

// Handle returns the most recently started handle, or nil.
func (s *Supervisor) Handle() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Start launches argv in dir.
//
// Returns ErrAlreadyRunning while a previous child is live and a *SpawnError
// when the executable cannot be launched.
func (s *Supervisor) Start(dir string, argv []string) (*Handle, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, ErrEmptyArgv
	}

	s.mu.Lock()
	if s.current != nil && s.current.Running() {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	if s.env != nil {
		cmd.Env = s.env
	}
	configureCmd(cmd)

	// stdout and stderr share one pipe so a single reader sees them in order.
	pr, pw, err := os.Pipe()
	if err != nil {
		s.mu.Unlock()
		return nil, &SpawnError{Path: argv[0], Dir: dir, Err: err}
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	stdin, err := cmd.StdinPipe()
	if err != nil {
		pr.Close()
		pw.Close()
		s.mu.Unlock()
		return nil, &SpawnError{Path: argv[0], Dir: dir, Err: err}
	}

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		stdin.Close()
		s.mu.Unlock()
		s.logger.Error("spawn failed", "path", argv[0], "dir", dir, "error", err)
		return nil, &SpawnError{Path: argv[0], Dir: dir, Err: err}
	}

	// The child holds its own copy of the write end.
	pw.Close()

	h := newHandle(uuid.NewString(), dir, argv, cmd)
	h.running.Store(true)
	s.current = h
	s.stdin = stdin
	s.mu.Unlock()

	s.logger.Info("process started", "id", h.ID, "pid", h.PID(), "path", argv[0])
	s.emitChange(ChangeEvent{Kind: ChangeStarted, HandleID: h.ID})

	go s.readLoop(h, pr)

	return h, nil
}

// readLoop drains the output pipe until end of stream, then resolves h.
// It is the only goroutine that reads pr, closes it, or waits on the child.
func (s *Supervisor) readLoop(h *Handle, pr *os.File) {
	buf := make([]byte, s.readSize)
	var seq uint64

	for {
		n, err := pr.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			seq++
			s.emitOutput(OutputChunk{Seq: seq, HandleID: h.ID, Data: data})
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("output read failed", "id", h.ID, "error", err)
			}
			break
		}
	}
	pr.Close()

	waitErr := h.cmd.Wait()

	s.mu.Lock()
	if s.current == h {
		s.stdin = nil
	}
	s.mu.Unlock()

	code := h.finish(waitErr)

	s.logger.Info("process terminated", "id", h.ID, "exit_code", code, "killed", h.killed.Load())
	s.emitChange(ChangeEvent{Kind: ChangeTerminated, HandleID: h.ID, ExitCode: code})

	close(h.done)
}

// Write sends b to the child's stdin. It does nothing when no child is running.
func (s *Supervisor) Write(b []byte) error {
	s.mu.Lock()
	h := s.current
	w := s.stdin
	s.mu.Unlock()

	if h == nil || w == nil || !h.Running() {
		return nil
	}

	if _, err := w.Write(b); err != nil {
		if !h.Running() || h.Killed() {
			return nil
		}
		return err
	}
	return nil
}

// CloseInput closes the child's stdin so it observes end of input.
func (s *Supervisor) CloseInput() error {
	s.mu.Lock()
	w := s.stdin
	s.stdin = nil
	s.mu.Unlock()

	if w == nil {
		return nil
	}
	return w.Close()
}

// Kill forcibly terminates the running child. It is idempotent and returns
// nil when nothing is running. Termination is reported through the normal
// ChangeTerminated event with KilledExitCode.
func (s *Supervisor) Kill() error {
	s.mu.Lock()
	h := s.current
	s.mu.Unlock()

	if h == nil || !h.Running() {
		return nil
	}
	if h.killed.Swap(true) {
		return nil
	}

	s.logger.Info("killing process", "id", h.ID, "pid", h.PID())
	if err := killTree(h.cmd.Process); err != nil {
		s.logger.Warn("kill failed", "id", h.ID, "error", err)
		return err
	}
	return nil
}

func (s *Supervisor) emitOutput(c OutputChunk) {
	s.hmu.RLock()
	handlers := s.onOutput
	s.hmu.RUnlock()

	for _, fn := range handlers {
		s.safeCall(func() { fn(c) })
	}
}

func (s *Supervisor) emitChange(e ChangeEvent) {
	s.hmu.RLock()
	handlers := s.onChange
	s.hmu.RUnlock()

	for _, fn := range handlers {
		s.safeCall(func() { fn(e) })
	}
}

// safeCall keeps a panicking subscriber from killing the reader goroutine.
func (s *Supervisor) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event handler panicked", "panic", r)
		}
	}()
	fn()
}
