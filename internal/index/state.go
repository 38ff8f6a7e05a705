package index

import "fmt"

// State is the lifecycle position of one digest within a run.
type State string

const (
	StateCollecting   State = "collecting"
	StateQueued       State = "queued"
	StateRendering    State = "rendering"
	StateRendered     State = "rendered"
	StateFailed       State = "failed"
	StateMaterialized State = "materialized"
	StateDiscarded    State = "discarded"
)

// IsTerminal reports whether no further transition is possible.
func IsTerminal(s State) bool {
	return s == StateMaterialized || s == StateDiscarded
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateCollecting:
		return to == StateQueued
	case StateQueued:
		return to == StateRendering
	case StateRendering:
		return to == StateRendered || to == StateFailed
	case StateRendered:
		return to == StateMaterialized
	case StateFailed:
		return to == StateDiscarded
	default:
		return false
	}
}

// TransitionError reports a rejected state change.
type TransitionError struct {
	Key  string
	From State
	To   State
	Got  State
}

func (e *TransitionError) Error() string {
	if e.Got != e.From {
		return fmt.Sprintf("invalid transition for %s: expected %s, got %s", e.Key, e.From, e.Got)
	}
	return fmt.Sprintf("disallowed transition for %s: %s -> %s", e.Key, e.From, e.To)
}
