// Package acquire drives the user-guided recovery loop that ends with a
// usable tool executable or a cancellation.
//
// The loop resolves the tool, and for every failure asks a DecisionProvider
// what to do: download a fresh copy, choose a path by hand, keep the current
// candidate or give up. It ends only in StateValid or StateCancelled.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/binary"
	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/logging"
)

// ReservedPrefix may not start the file name of a manually chosen tool; it
// belongs to toolkeeper's own executables.
const ReservedPrefix = "toolkeeper"

// ErrCancelled is returned when the loop ends without a usable tool.
var ErrCancelled = errors.New("tool acquisition cancelled")

// Resolver finds and validates the tool.
type Resolver interface {
	Resolve(ctx context.Context, o binary.Override) (*binary.Candidate, error)
}

// Installer downloads and installs the tool, returning its path.
type Installer interface {
	Install(ctx context.Context, onProgress binary.ProgressFunc) (string, error)
}

// Store persists the outcome so the next run starts from it.
type Store interface {
	// Remember records the tool path and, for unverified tools, the digest
	// the user accepted. trustedDigest is empty for whitelisted tools.
	Remember(path, trustedDigest string) error
}

// Config configures a Machine.
type Config struct {
	Resolver  Resolver
	Decisions DecisionProvider
	// Installer may be nil, in which case Download is never offered.
	Installer Installer
	// Trust is latched when the user keeps a tool that is not whitelisted.
	// It must be the Trust the Resolver consults.
	Trust *binary.Trust
	// Store may be nil.
	Store  Store
	Logger logging.Logger
}

// Machine runs the acquisition loop.
type Machine struct {
	resolver  Resolver
	decisions DecisionProvider
	installer Installer
	trust     *binary.Trust
	store     Store
	logger    logging.Logger

	state State
}

// New creates a Machine.
func New(cfg Config) (*Machine, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if cfg.Decisions == nil {
		return nil, fmt.Errorf("decision provider is required")
	}
	if cfg.Trust == nil {
		return nil, fmt.Errorf("trust is required")
	}
	return &Machine{
		resolver:  cfg.Resolver,
		decisions: cfg.Decisions,
		installer: cfg.Installer,
		trust:     cfg.Trust,
		store:     cfg.Store,
		logger:    logging.OrNop(cfg.Logger),
		state:     StateChecking,
	}, nil
}

// State returns the current state. After Run it is StateValid or StateCancelled.
func (m *Machine) State() State {
	return m.state
}

func (m *Machine) enter(s State) {
	if m.state != s {
		m.logger.Debug("acquisition state", "from", m.state, "to", s)
	}
	m.state = s
}

// Run resolves the tool starting from override and recovers from every
// failure through the decision provider. It returns a usable candidate, or
// an error wrapping ErrCancelled together with the last diagnostic.
// Context errors are returned as they are.
func (m *Machine) Run(ctx context.Context, override binary.Override) (*binary.Candidate, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m.enter(StateChecking)
		c, err := m.resolver.Resolve(ctx, override)
		if err == nil {
			return m.finish(c)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		state, candidate := classify(err)
		m.enter(state)
		m.logger.Info("tool check failed", "state", state, "error", err)

		action, derr := m.decide(ctx, Prompt{
			State:     state,
			Err:       err,
			Candidate: candidate,
			Offered:   m.offered(state),
		})
		if derr != nil {
			return nil, m.cancel(derr)
		}

		switch action {
		case ActionCancel:
			return nil, m.cancel(err)

		case ActionKeep:
			if state == StateOutdated {
				m.logger.Info("keeping outdated tool", "path", candidate.Path, "version", candidate.Version)
				return m.finish(candidate)
			}
			// Not allowed: the user vouches for this exact file.
			m.trust.Latch()
			override = binary.Override{Path: candidate.Path, Provenance: candidate.Provenance}

		case ActionDownload:
			path, ierr := m.download(ctx)
			if ierr == nil {
				override = binary.Override{Path: path, Provenance: binary.ProvenanceDownloaded}
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(ierr, binary.ErrUserCancelled) {
				return nil, m.cancel(ierr)
			}
			m.logger.Warn("download failed", "error", ierr)

			path, ok, perr := m.choosePath(ctx, ierr)
			if perr != nil {
				return nil, m.cancel(perr)
			}
			if !ok {
				return nil, m.cancel(ierr)
			}
			override = binary.Override{Path: path, Provenance: binary.ProvenanceManuallyChosen}

		case ActionChooseManually:
			path, ok, perr := m.choosePath(ctx, nil)
			if perr != nil {
				return nil, m.cancel(perr)
			}
			if ok {
				override = binary.Override{Path: path, Provenance: binary.ProvenanceManuallyChosen}
			}
			// Declining the path prompt returns to the same decision.
		}
	}
}

// offered returns the actions for s that this machine can carry out.
func (m *Machine) offered(s State) []Action {
	all := Offered(s)
	if m.installer != nil {
		return all
	}
	actions := make([]Action, 0, len(all))
	for _, a := range all {
		if a != ActionDownload {
			actions = append(actions, a)
		}
	}
	return actions
}

// decide asks until the provider picks an offered action. Cancel is always
// accepted.
func (m *Machine) decide(ctx context.Context, p Prompt) (Action, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		a, err := m.decisions.Decide(ctx, p)
		if err != nil {
			return 0, fmt.Errorf("decision: %w", err)
		}
		if a == ActionCancel || p.Offers(a) {
			m.logger.Debug("decision", "state", p.State, "action", a)
			return a, nil
		}
		m.logger.Warn("action not offered, asking again", "state", p.State, "action", a)
	}
}

func (m *Machine) download(ctx context.Context) (string, error) {
	m.enter(StateDownloading)
	return m.installer.Install(ctx, m.decisions.Progress)
}

// choosePath asks for a path until the answer does not use the reserved
// prefix or the user declines.
func (m *Machine) choosePath(ctx context.Context, cause error) (string, bool, error) {
	m.enter(StateChoosingPath)
	p := PathPrompt{Err: cause, ReservedPrefix: ReservedPrefix}
	for {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		path, ok, err := m.decisions.ChoosePath(ctx, p)
		if err != nil {
			return "", false, fmt.Errorf("choose path: %w", err)
		}
		if !ok {
			return "", false, nil
		}
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if IsReserved(path) {
			m.logger.Warn("rejected reserved tool name", "path", path)
			p.Rejected = path
			continue
		}
		return path, true, nil
	}
}

// IsReserved reports whether the file name of path starts with ReservedPrefix.
func IsReserved(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	return strings.HasPrefix(name, ReservedPrefix)
}

func (m *Machine) finish(c *binary.Candidate) (*binary.Candidate, error) {
	m.enter(StateValid)

	if m.store != nil && c.Provenance != binary.ProvenanceSystem {
		digest := ""
		if c.Provenance == binary.ProvenanceUnverified {
			digest = c.Digest
		}
		if err := m.store.Remember(c.Path, digest); err != nil {
			m.logger.Warn("could not save tool path", "path", c.Path, "error", err)
		}
	}

	m.logger.Info("tool ready", "path", c.Path, "version", c.Version, "provenance", c.Provenance)
	return c, nil
}

func (m *Machine) cancel(cause error) error {
	m.enter(StateCancelled)
	if cause == nil {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// classify maps a resolution error to its state. Errors outside the
// resolution taxonomy (an unreadable file, say) are treated as not found.
func classify(err error) (State, *binary.Candidate) {
	var notAllowed *binary.NotAllowedError
	var unsupported *binary.UnsupportedError
	var outdated *binary.OutdatedError

	switch {
	case errors.As(err, &notAllowed):
		return StateNotAllowed, notAllowed.Candidate
	case errors.As(err, &unsupported):
		return StateUnsupported, unsupported.Candidate
	case errors.As(err, &outdated):
		return StateOutdated, outdated.Candidate
	default:
		return StateNotFound, nil
	}
}
