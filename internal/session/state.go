package session

import (
	"fmt"
	"slices"
	"sync"
)

// State is the connection state of a chat session.
type State string

const (
	// Connecting covers the initial history pull and any (re)subscribe
	// handshake.
	Connecting State = "CONNECTING"
	// Live means the realtime stream is attached.
	Live State = "LIVE"
	// Reconnecting means the stream dropped and a redial is in flight;
	// the UI should show a non-blocking indicator.
	Reconnecting State = "RECONNECTING"
	// Degraded means realtime is unavailable and the session is polling
	// history instead. Visible, never silent.
	Degraded State = "DEGRADED"
	// Closed is terminal.
	Closed State = "CLOSED"
)

var validTransitions = map[State][]State{
	Connecting:   {Live, Degraded, Reconnecting, Closed},
	Live:         {Reconnecting, Closed},
	Reconnecting: {Connecting, Degraded, Closed},
	Degraded:     {Connecting, Closed},
	Closed:       {},
}

// Machine tracks and enforces session connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
}

// NewMachine creates a machine starting in Connecting.
func NewMachine() *Machine {
	return &Machine{current: Connecting}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	m.current = to
	return nil
}
