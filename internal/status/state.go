package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/pageinbox/inboxd/internal/bus"
)

// State represents the global scan loop's runtime state.
type State string

const (
	Idle       State = "IDLE"
	Polling    State = "POLLING"
	Applying   State = "APPLYING"
	BackingOff State = "BACKOFF"
)

// validTransitions defines allowed state transitions. The loop cycles
// POLLING -> APPLYING|BACKOFF -> POLLING and returns to IDLE only when the
// page selection becomes empty or the session ends.
var validTransitions = map[State][]State{
	Idle:       {Polling},
	Polling:    {Applying, BackingOff, Idle},
	Applying:   {Polling, Idle},
	BackingOff: {Polling, Idle},
}

// Machine tracks and enforces scan loop state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Idle.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Emit("sync.status_changed", StatusChange{From: from, To: to})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
