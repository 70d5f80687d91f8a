package session

import (
	"fmt"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/process"
)

// EventKind tags an Event.
type EventKind int

const (
	// EventStarted is delivered once per spawned child, before its output.
	EventStarted EventKind = iota
	// EventOutput carries newly decoded text.
	EventOutput
	// EventReplace carries the complete re-decoded text after a charset switch.
	EventReplace
	// EventTerminated is delivered once per child, after its last output.
	EventTerminated
)

// String returns a human-readable kind name.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventOutput:
		return "output"
	case EventReplace:
		return "replace"
	case EventTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Event is delivered to session consumers in order.
type Event struct {
	Kind     EventKind
	HandleID string

	// Text is set for EventOutput and EventReplace.
	Text string
	// Input marks an EventOutput that echoes text sent with Send.
	Input bool
	// Charset is set for EventReplace.
	Charset string

	// ExitCode and Status are set for EventTerminated.
	ExitCode int
	Status   ExitStatus
}

// ExitStatus classifies a tool exit code.
type ExitStatus int

const (
	ExitSuccess ExitStatus = iota
	ExitSuccessWithWarnings
	ExitError
	ExitKilled
)

// String returns a human-readable status.
func (s ExitStatus) String() string {
	switch s {
	case ExitSuccess:
		return "success"
	case ExitSuccessWithWarnings:
		return "success with warnings"
	case ExitError:
		return "error"
	case ExitKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// OK reports whether the run succeeded, with or without warnings.
func (s ExitStatus) OK() bool {
	return s == ExitSuccess || s == ExitSuccessWithWarnings
}

// WarningsExitCode is the tool's exit code for a run that completed with warnings.
const WarningsExitCode = 3

// Classify maps a tool exit code to its status.
func Classify(code int) ExitStatus {
	switch code {
	case 0:
		return ExitSuccess
	case WarningsExitCode:
		return ExitSuccessWithWarnings
	case process.KilledExitCode:
		return ExitKilled
	default:
		return ExitError
	}
}
