package server

import "fmt"

// State is the lifecycle state of a Server.
type State int

// Lifecycle states. A Server only moves forward through them.
const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// lifecycleEvent is a request to change state.
type lifecycleEvent int

const (
	eventInit lifecycleEvent = iota + 1
	eventStart
	eventStop
)

func (e lifecycleEvent) String() string {
	switch e {
	case eventInit:
		return "init"
	case eventStart:
		return "start"
	case eventStop:
		return "stop"
	default:
		return "unknown"
	}
}

// transition returns the state reached by applying ev in from.
// Every pair not listed is ErrInvalidState; Stopped is terminal.
func transition(from State, ev lifecycleEvent) (State, error) {
	switch {
	case from == StateUninitialized && ev == eventInit:
		return StateInitialized, nil
	case from == StateInitialized && ev == eventStart:
		return StateRunning, nil
	case from == StateRunning && ev == eventStop:
		return StateStopped, nil
	default:
		return from, fmt.Errorf("%w: cannot %s while %s", ErrInvalidState, ev, from)
	}
}
