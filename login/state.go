package login

import "fmt"

// State is the submission state of a login controller.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateFailed
	StateChallengeIssued
	StateCompleted
)

var stateNames = map[State]string{
	StateIdle:            "idle",
	StateSubmitting:      "submitting",
	StateFailed:          "failed",
	StateChallengeIssued: "challenge_issued",
	StateCompleted:       "completed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name so views serialise it readably.
func (s State) MarshalText() ([]byte, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, fmt.Errorf("login: unknown state %d", int(s))
	}
	return []byte(s.String()), nil
}

// Submittable reports whether a new attempt may start from s.
func (s State) Submittable() bool {
	return s == StateIdle || s == StateFailed
}
