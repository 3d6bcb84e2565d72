// Package status owns the mutable lifecycle record of every unit.
//
// The Store is the single writer: every state change goes through
// Store.Transition, which validates it against the transition table and
// persists the whole record atomically before the change becomes visible.
package status

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a unit.
type State int

const (
	NotStarted State = iota
	Ready
	Running
	Succeeded
	Failed
	Blocked
)

var stateNames = [...]string{
	NotStarted: "not_started",
	Ready:      "ready",
	Running:    "running",
	Succeeded:  "succeeded",
	Failed:     "failed",
	Blocked:    "blocked",
}

// States lists every state in lifecycle order.
var States = []State{NotStarted, Ready, Running, Succeeded, Failed, Blocked}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// ParseState parses the persisted name of a state.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return NotStarted, fmt.Errorf("unknown state %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stateNames) {
		return nil, fmt.Errorf("invalid state %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// IsTerminal reports whether s ends a unit's attempt.
func (s State) IsTerminal() bool {
	return s == Succeeded || s == Failed || s == Blocked
}

// transitions is the allowed state machine. Re-entry into NotStarted is the
// only way out of a terminal state.
var transitions = map[State][]State{
	NotStarted: {Ready, Blocked},
	Ready:      {Running, Blocked, NotStarted},
	Running:    {Succeeded, Failed},
	Succeeded:  {NotStarted},
	Failed:     {NotStarted},
	Blocked:    {NotStarted},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// UnitStatus is the persisted lifecycle record of one unit.
type UnitStatus struct {
	State      State      `json:"state"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	RetryCount int        `json:"retry_count"`
	LastError  string     `json:"last_error,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at,omitempty"`
}

// clone deep-copies the timestamp pointers.
func (u UnitStatus) clone() UnitStatus {
	if u.StartedAt != nil {
		t := *u.StartedAt
		u.StartedAt = &t
	}
	if u.FinishedAt != nil {
		t := *u.FinishedAt
		u.FinishedAt = &t
	}
	return u
}

// Meta carries optional details of a transition.
type Meta struct {
	// Error is recorded as LastError on a transition to Failed.
	Error string
	// Reason is written to the audit log and emitted with the event.
	Reason string
}

// apply returns the status after moving to "to" at time now.
func (u UnitStatus) apply(to State, meta Meta, now time.Time) UnitStatus {
	next := u.clone()
	from := u.State
	next.State = to
	next.UpdatedAt = now
	next.LastError = ""

	switch to {
	case NotStarted:
		next.StartedAt = nil
		next.FinishedAt = nil
		if from == Failed {
			next.RetryCount++
		}
	case Running:
		next.StartedAt = &now
		next.FinishedAt = nil
	case Succeeded, Blocked:
		next.FinishedAt = &now
	case Failed:
		next.FinishedAt = &now
		next.LastError = meta.Error
		if next.LastError == "" {
			next.LastError = "unknown error"
		}
	}
	return next
}

// TransitionError reports a transition that the state machine does not allow
// or that targets an unknown unit. Callers recover by re-reading the current
// state and choosing a legal next step.
type TransitionError struct {
	Unit string
	From State
	To   State
	// Unknown is set when the unit is not tracked by the store.
	Unknown bool
}

func (e *TransitionError) Error() string {
	if e.Unknown {
		return fmt.Sprintf("unknown unit %q", e.Unit)
	}
	return fmt.Sprintf("illegal transition for %s: %s -> %s", e.Unit, e.From, e.To)
}
