package tasks

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of a task.
type State string

const (
	Created   State = "CREATED"
	Assigned  State = "ASSIGNED"
	Succeeded State = "SUCCEEDED"
	Failed    State = "FAILED"
	Canceled  State = "CANCELED"
)

// ParseState accepts state names case-insensitively. "CANCELLED" is accepted
// as an alias.
func ParseState(s string) (State, error) {
	switch st := State(strings.ToUpper(strings.TrimSpace(s))); st {
	case Created, Assigned, Succeeded, Failed, Canceled:
		return st, nil
	case "CANCELLED":
		return Canceled, nil
	}
	return "", fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, s)
}

// Valid reports whether s is one of the five lifecycle states.
func (s State) Valid() bool {
	switch s {
	case Created, Assigned, Succeeded, Failed, Canceled:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Canceled
}

var transitions = map[State]map[State]bool{
	Created:  {Assigned: true, Canceled: true},
	Assigned: {Succeeded: true, Failed: true, Canceled: true},
}

// CanTransition reports whether from may move to to. Re-applying the current
// state is not a transition; callers treat it as a no-op.
func CanTransition(from, to State) bool {
	return transitions[from][to]
}
