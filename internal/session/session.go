// Package session owns one supervised tool process together with the
// decode state of its console, and delivers everything that happens to
// them as one ordered stream of events.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/charset"
	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/logging"
	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/process"
	"github.com/google/uuid"
)

// AutoDetectBytes is how much output the session collects before guessing
// the charset when the configured charset is "auto".
const AutoDetectBytes = 512

const (
	defaultQueueSize  = 256
	defaultEventQueue = 256
)

var (
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session is closed")
	// ErrNotStarted is returned by Restart and Wait before the first Start.
	ErrNotStarted = errors.New("session has not started a process")
)

// Config configures a Session.
type Config struct {
	// Charset is the console charset. Empty means UTF-8; "auto" detects it
	// from the first output.
	Charset string
	// Env is the child environment. Nil inherits the parent environment.
	Env []string
	// ReadSize bounds a single output chunk.
	ReadSize int
	// EventBuffer is the capacity of the Events channel.
	EventBuffer int
	Logger      logging.Logger
}

// command is one entry of the dispatcher queue.
type command struct {
	output *process.OutputChunk
	change *process.ChangeEvent

	send    *string
	charset *string
	reset   bool

	reply chan result
}

type result struct {
	text string
	data []byte
	err  error
}

// Session runs the tool and decodes its console.
//
// All decoder access happens on a single dispatcher goroutine that consumes
// process output, lifecycle changes and caller commands from one queue, so
// events come out in the order they happened. Callers must keep draining
// Events; a full event buffer stalls the child's output.
type Session struct {
	id     string
	sup    *process.Supervisor
	logger logging.Logger

	queue  chan command
	events chan Event
	quit   chan struct{}
	done   chan struct{}

	closeOnce sync.Once

	// sendMu keeps stdin writes in the order their text was encoded.
	sendMu sync.Mutex

	mu   sync.Mutex
	dir  string
	argv []string
	stop context.CancelFunc

	// Owned by the dispatcher.
	dec      *charset.Decoder
	auto     bool
	detected bool
	seen     int
}

// New creates a session and starts its dispatcher. No process is started.
func New(cfg Config) (*Session, error) {
	logger := logging.OrNop(cfg.Logger)

	name := strings.ToLower(strings.TrimSpace(cfg.Charset))
	auto := name == charset.Auto
	if name == "" || auto {
		name = charset.UTF8
	}
	dec, err := charset.New(name, charset.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("console charset: %w", err)
	}

	events := cfg.EventBuffer
	if events <= 0 {
		events = defaultEventQueue
	}

	s := &Session{
		id:     uuid.NewString(),
		logger: logger,
		queue:  make(chan command, defaultQueueSize),
		events: make(chan Event, events),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		dec:    dec,
		auto:   auto,
	}

	s.sup = process.NewSupervisor(
		process.WithLogger(logger),
		process.WithReadSize(cfg.ReadSize),
		process.WithEnv(cfg.Env),
	)
	s.sup.OnOutput(func(c process.OutputChunk) {
		s.enqueue(command{output: &c})
	})
	s.sup.OnChange(func(e process.ChangeEvent) {
		s.enqueue(command{change: &e})
	})

	go s.dispatch()

	logger.Debug("session created", "session", s.id, "charset", dec.Charset(), "auto", auto)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Events returns the event stream. It is closed by Close.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Handle returns the current process handle, or nil before Start.
func (s *Session) Handle() *process.Handle {
	return s.sup.Handle()
}

// Start runs argv in dir. The child is killed when ctx is done. Starting
// after a previous child terminated clears the console first.
func (s *Session) Start(ctx context.Context, dir string, argv []string) error {
	if s.closed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if prev := s.sup.Handle(); prev != nil {
		select {
		case <-prev.Done():
		default:
			return process.ErrAlreadyRunning
		}
		// Queued behind the previous child's Terminated event.
		if _, err := s.call(ctx, command{reset: true}); err != nil {
			return err
		}
	}

	h, err := s.sup.Start(dir, argv)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.dir = dir
	s.argv = append([]string(nil), argv...)
	if s.stop != nil {
		s.stop()
	}
	watch, stop := context.WithCancel(ctx)
	s.stop = stop
	s.mu.Unlock()

	go func() {
		select {
		case <-watch.Done():
			if ctx.Err() != nil {
				s.logger.Info("context done, killing process", "session", s.id, "id", h.ID)
				s.sup.Kill()
			}
		case <-h.Done():
		}
	}()
	return nil
}

// Restart kills the running child, waits for it to terminate, clears the
// console and starts the same command again. The new child is bound to ctx.
func (s *Session) Restart(ctx context.Context) error {
	s.mu.Lock()
	dir, argv := s.dir, s.argv
	s.mu.Unlock()

	if argv == nil {
		return ErrNotStarted
	}

	if h := s.sup.Handle(); h != nil {
		if err := s.sup.Kill(); err != nil {
			return fmt.Errorf("kill before restart: %w", err)
		}
		if _, err := h.Wait(ctx); err != nil {
			return err
		}
	}

	s.logger.Info("restarting tool", "session", s.id, "path", argv[0])
	return s.Start(ctx, dir, argv)
}

// Send encodes text with the active charset and writes it to the child.
// The text is echoed as an input EventOutput. Nothing happens when no
// child is running.
//
// The write happens on the caller's goroutine, so a child that stops reading
// blocks Send but never the console.
func (s *Session) Send(text string) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	r, err := s.call(context.Background(), command{send: &text})
	if err != nil || len(r.data) == 0 {
		return err
	}
	return s.sup.Write(r.data)
}

// CloseInput closes the child's stdin.
func (s *Session) CloseInput() error {
	return s.sup.CloseInput()
}

// SetCharset switches the console charset, re-decodes the whole console and
// returns the new text. The text is also delivered as EventReplace. "auto"
// re-runs detection on everything received so far.
func (s *Session) SetCharset(name string) (string, error) {
	r, err := s.call(context.Background(), command{charset: &name})
	return r.text, err
}

// Kill forcibly terminates the child. It is idempotent.
func (s *Session) Kill() error {
	return s.sup.Kill()
}

// Wait blocks until the current child terminates and returns its exit code.
func (s *Session) Wait(ctx context.Context) (int, error) {
	h := s.sup.Handle()
	if h == nil {
		return 0, ErrNotStarted
	}
	return h.Wait(ctx)
}

// Close kills the child, stops the dispatcher and closes Events.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.sup.Kill()
		s.mu.Lock()
		if s.stop != nil {
			s.stop()
		}
		s.mu.Unlock()
		close(s.quit)
		<-s.done
	})
	return err
}

func (s *Session) closed() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

// enqueue is called from the supervisor's reader goroutine. After Close
// events are dropped.
func (s *Session) enqueue(c command) {
	select {
	case s.queue <- c:
	case <-s.quit:
	}
}

// call runs a command on the dispatcher and waits for its result.
func (s *Session) call(ctx context.Context, c command) (result, error) {
	c.reply = make(chan result, 1)
	select {
	case s.queue <- c:
	case <-s.quit:
		return result{}, ErrClosed
	case <-ctx.Done():
		return result{}, ctx.Err()
	}

	select {
	case r := <-c.reply:
		return r, r.err
	case <-s.done:
		return result{}, ErrClosed
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.quit:
	}
}

func (s *Session) dispatch() {
	defer close(s.done)
	defer close(s.events)

	for {
		select {
		case c := <-s.queue:
			s.handle(c)
		case <-s.quit:
			return
		}
	}
}

func (s *Session) handle(c command) {
	switch {
	case c.output != nil:
		s.handleOutput(*c.output)
	case c.change != nil:
		s.handleChange(*c.change)
	case c.send != nil:
		data, err := s.handleSend(*c.send)
		c.reply <- result{data: data, err: err}
	case c.charset != nil:
		text, err := s.handleCharset(*c.charset)
		c.reply <- result{text: text, err: err}
	case c.reset:
		s.dec.Reset()
		s.detected = false
		s.seen = 0
		c.reply <- result{}
	}
}

func (s *Session) handleOutput(c process.OutputChunk) {
	text := s.dec.Feed(c.Data)
	s.seen += len(c.Data)

	if s.auto && !s.detected && s.seen >= AutoDetectBytes {
		if s.detect(c.HandleID) {
			return
		}
	}
	if text != "" {
		s.emit(Event{Kind: EventOutput, HandleID: c.HandleID, Text: text})
	}
}

func (s *Session) handleChange(e process.ChangeEvent) {
	switch e.Kind {
	case process.ChangeStarted:
		s.emit(Event{Kind: EventStarted, HandleID: e.HandleID})

	case process.ChangeTerminated:
		tail := s.dec.Finish()
		replaced := false
		if s.auto && !s.detected {
			replaced = s.detect(e.HandleID)
		}
		if tail != "" && !replaced {
			s.emit(Event{Kind: EventOutput, HandleID: e.HandleID, Text: tail})
		}

		status := Classify(e.ExitCode)
		s.logger.Debug("tool terminated", "session", s.id, "exit_code", e.ExitCode, "status", status)
		s.emit(Event{Kind: EventTerminated, HandleID: e.HandleID, ExitCode: e.ExitCode, Status: status})
	}
}

// handleSend encodes text and echoes it. The caller writes the bytes.
func (s *Session) handleSend(text string) ([]byte, error) {
	h := s.sup.Handle()
	if h == nil || !h.Running() {
		return nil, nil
	}

	b, err := s.dec.Encode(text)
	if err != nil {
		return nil, err
	}
	if echo := s.dec.Last(); echo != "" {
		s.emit(Event{Kind: EventOutput, HandleID: h.ID, Text: echo, Input: true})
	}
	return b, nil
}

func (s *Session) handleCharset(name string) (string, error) {
	handleID := ""
	if h := s.sup.Handle(); h != nil {
		handleID = h.ID
	}

	if strings.EqualFold(strings.TrimSpace(name), charset.Auto) {
		s.auto = true
		s.detected = false
		if s.seen > 0 {
			s.detect(handleID)
		}
		return s.dec.Text(), nil
	}

	text, err := s.dec.SetCharset(name)
	if err != nil {
		return "", err
	}
	s.auto = false
	s.detected = true
	s.logger.Info("console charset changed", "session", s.id, "charset", s.dec.Charset())
	s.emit(Event{Kind: EventReplace, HandleID: handleID, Text: text, Charset: s.dec.Charset()})
	return text, nil
}

// detect guesses the charset of everything received so far. When the guess
// differs from the active charset it switches, emits EventReplace and
// reports true.
func (s *Session) detect(handleID string) bool {
	s.detected = true

	name, err := charset.Detect(s.dec.Bytes())
	if err != nil {
		s.logger.Warn("charset detection failed", "session", s.id, "error", err)
		return false
	}
	if name == s.dec.Charset() {
		s.logger.Debug("charset detected", "session", s.id, "charset", name)
		return false
	}

	text, err := s.dec.SetCharset(name)
	if err != nil {
		s.logger.Warn("detected charset unusable", "session", s.id, "charset", name, "error", err)
		return false
	}
	s.logger.Info("charset detected", "session", s.id, "charset", name)
	s.emit(Event{Kind: EventReplace, HandleID: handleID, Text: text, Charset: name})
	return true
}
