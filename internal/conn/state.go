package conn

import (
	"fmt"
	"slices"
	"sync"
)

// State represents the connection lifecycle state.
type State string

const (
	Idle         State = "IDLE"
	Connecting   State = "CONNECTING"
	Open         State = "OPEN"
	Closing      State = "CLOSING"
	Closed       State = "CLOSED"
	Reconnecting State = "RECONNECTING"
	Failed       State = "FAILED"
)

// validTransitions defines allowed state transitions. Closed is terminal
// until the next Connect; Failed is terminal until a manual Reconnect.
var validTransitions = map[State][]State{
	Idle:         {Connecting, Closed},
	Connecting:   {Open, Reconnecting, Closing, Closed},
	Open:         {Reconnecting, Closing, Closed},
	Closing:      {Closed},
	Closed:       {Connecting},
	Reconnecting: {Connecting, Failed, Closing, Closed},
	Failed:       {Connecting, Closing, Closed},
}

// machine tracks and enforces connection state transitions.
type machine struct {
	mu      sync.RWMutex
	current State
}

func newMachine() *machine {
	return &machine{current: Idle}
}

// Current returns the current state.
func (m *machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid; the state is left unchanged in that case.
func (m *machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == to {
		return nil
	}
	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	m.current = to
	return nil
}

// StateEvent describes a connection-state transition as surfaced to
// subscribers. Kind is one of the wire-level indicator values consumed by
// presence UIs.
type StateEvent struct {
	Kind    string // connecting, connected, disconnected, reconnecting, error
	State   State
	Attempt int
	Err     error
}

const (
	EventConnecting   = "connecting"
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventReconnecting = "reconnecting"
	EventError        = "error"
)
