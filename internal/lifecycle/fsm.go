// Package lifecycle implements the calendar stream state machine.
package lifecycle

import (
	"fmt"

	"github.com/dwsmith1983/wastecal/pkg/types"
)

// Transition table: from -> allowed tos
var validTransitions = map[types.StreamState][]types.StreamState{
	types.StreamUncreated:       {types.StreamCreatedUnsynced, types.StreamPendingClean},
	types.StreamCreatedUnsynced: {types.StreamSynced, types.StreamCreatedUnsynced, types.StreamPendingClean},
	types.StreamSynced:          {types.StreamCreatedUnsynced, types.StreamPendingClean},
	types.StreamPendingClean:    {types.StreamUncreated, types.StreamCreatedUnsynced, types.StreamSynced, types.StreamDeleted},
	types.StreamDeleted:         {},
}

// CanTransition checks if transitioning from one stream state to another is valid.
func CanTransition(from, to types.StreamState) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates a state change, returning an error if it is invalid.
func Transition(from, to types.StreamState) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal returns true if the state is final.
func IsTerminal(state types.StreamState) bool {
	return state == types.StreamDeleted
}

// StateOf derives the state of a stored stream. A nil stream has been deleted.
func StateOf(s *types.CalendarStream) types.StreamState {
	switch {
	case s == nil:
		return types.StreamDeleted
	case s.PendingClean():
		return types.StreamPendingClean
	case s.CalendarID == "":
		return types.StreamUncreated
	case s.CalendarSyncedAt == nil:
		return types.StreamCreatedUnsynced
	default:
		return types.StreamSynced
	}
}

// ParseState validates a state name.
func ParseState(s string) (types.StreamState, error) {
	st := types.StreamState(s)
	if _, ok := validTransitions[st]; !ok {
		return "", fmt.Errorf("unknown stream state %q", s)
	}
	return st, nil
}
