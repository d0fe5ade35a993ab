package status

import (
	"testing"

	"github.com/pageinbox/inboxd/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Idle {
		t.Errorf("initial state = %s, want IDLE", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Idle, Polling},
		{Polling, Applying},
		{Polling, BackingOff},
		{Applying, Polling},
		{BackingOff, Polling},
		{Polling, Idle},
		{Applying, Idle},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Applying); err == nil {
		t.Error("Transition(IDLE -> APPLYING) should fail")
	}
	if m.Current() != Idle {
		t.Errorf("state = %s, want IDLE after failed transition", m.Current())
	}
}

// TestTickCycle walks the sequence one healthy tick and one failed tick produce:
// IDLE -> POLLING -> APPLYING -> POLLING -> BACKOFF -> POLLING -> IDLE.
func TestTickCycle(t *testing.T) {
	m := NewMachine(nil)
	steps := []State{Polling, Applying, Polling, BackingOff, Polling, Idle}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Idle {
		t.Errorf("final state = %s, want IDLE", m.Current())
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Polling); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != "sync.status_changed" {
		t.Errorf("event kind = %q, want sync.status_changed", evt.Kind)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Idle || change.To != Polling {
		t.Errorf("change = %v -> %v, want IDLE -> POLLING", change.From, change.To)
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Idle:       {},
		Polling:    {Polling},
		Applying:   {Polling, Applying},
		BackingOff: {Polling, BackingOff},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
