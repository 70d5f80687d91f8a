package acquire

import (
	"context"
	"fmt"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/binary"
)

// State is a state of the acquisition loop.
type State int

const (
	StateChecking State = iota
	StateValid
	StateNotFound
	StateNotAllowed
	StateUnsupported
	StateOutdated
	StateDownloading
	StateChoosingPath
	StateCancelled
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateValid:
		return "valid"
	case StateNotFound:
		return "not-found"
	case StateNotAllowed:
		return "not-allowed"
	case StateUnsupported:
		return "unsupported"
	case StateOutdated:
		return "outdated"
	case StateDownloading:
		return "downloading"
	case StateChoosingPath:
		return "choosing-path"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s ends the loop.
func (s State) Terminal() bool {
	return s == StateValid || s == StateCancelled
}

// Action is a recovery decision.
type Action int

const (
	ActionDownload Action = iota
	ActionChooseManually
	ActionKeep
	ActionCancel
)

// String returns the string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionDownload:
		return "download"
	case ActionChooseManually:
		return "choose"
	case ActionKeep:
		return "keep"
	case ActionCancel:
		return "cancel"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Offered returns the recovery actions available in s. It is empty only for
// states that never prompt.
func Offered(s State) []Action {
	switch s {
	case StateNotFound, StateUnsupported:
		return []Action{ActionDownload, ActionChooseManually, ActionCancel}
	case StateNotAllowed:
		return []Action{ActionKeep, ActionChooseManually}
	case StateOutdated:
		return []Action{ActionDownload, ActionChooseManually, ActionKeep}
	default:
		return nil
	}
}

// Prompt asks for a recovery decision.
type Prompt struct {
	State State
	// Err describes what is wrong, with enough detail to act on.
	Err error
	// Candidate is the rejected or outdated tool, if one was found.
	Candidate *binary.Candidate
	Offered   []Action
}

// Offers reports whether a is one of the offered actions.
func (p Prompt) Offers(a Action) bool {
	for _, o := range p.Offered {
		if o == a {
			return true
		}
	}
	return false
}

// PathPrompt asks for the tool path.
type PathPrompt struct {
	// Err is the download failure that led here, if any.
	Err error
	// Rejected is a previous answer refused for using the reserved prefix.
	Rejected string
	// ReservedPrefix may not start the chosen file name.
	ReservedPrefix string
}

// DecisionProvider supplies recovery decisions. Implementations may block
// on user input; they should return promptly when ctx is done.
type DecisionProvider interface {
	// Decide picks one of p.Offered. ActionCancel is always accepted.
	Decide(ctx context.Context, p Prompt) (Action, error)
	// ChoosePath returns a path to try, or ok=false when the user declines.
	ChoosePath(ctx context.Context, p PathPrompt) (path string, ok bool, err error)
	// Progress reports download progress. Returning false cancels the download.
	Progress(done, total int64) bool
}
