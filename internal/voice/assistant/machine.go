package assistant

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Phase is the assistant's current activity. Exactly one is active.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseListeningWake    Phase = "listening-wake"
	PhaseListeningCommand Phase = "listening-command"
	PhaseProcessing       Phase = "processing"
	PhaseSpeaking         Phase = "speaking"
)

// ErrInvalidTransition is returned for a transition the machine forbids,
// including re-entering the current phase.
var ErrInvalidTransition = errors.New("assistant: invalid phase transition")

var validTransitions = map[Phase][]Phase{
	PhaseIdle:             {PhaseListeningWake},
	PhaseListeningWake:    {PhaseListeningCommand, PhaseIdle},
	PhaseListeningCommand: {PhaseProcessing, PhaseListeningWake, PhaseIdle},
	PhaseProcessing:       {PhaseSpeaking, PhaseListeningWake, PhaseIdle},
	PhaseSpeaking:         {PhaseListeningWake, PhaseIdle},
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to Phase) bool {
	return slices.Contains(validTransitions[from], to)
}

// TransitionFunc observes phase changes.
type TransitionFunc func(from, to Phase)

// Machine is the validated phase state machine. Observers run after the
// lock is released, in registration order.
type Machine struct {
	mu        sync.Mutex
	phase     Phase
	observers map[int]TransitionFunc
	order     []int
	next      int
}

// NewMachine returns a machine in [PhaseIdle].
func NewMachine() *Machine {
	return &Machine{phase: PhaseIdle, observers: make(map[int]TransitionFunc)}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Transition moves to phase to.
func (m *Machine) Transition(to Phase) error {
	return m.transition(nil, to)
}

// TransitionFrom moves to phase to only if the machine is currently in one
// of from.
func (m *Machine) TransitionFrom(to Phase, from ...Phase) error {
	return m.transition(from, to)
}

func (m *Machine) transition(from []Phase, to Phase) error {
	m.mu.Lock()
	cur := m.phase
	if from != nil && !slices.Contains(from, cur) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s → %s (expected %v)", ErrInvalidTransition, cur, to, from)
	}
	if !CanTransition(cur, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, cur, to)
	}
	m.phase = to
	obs := m.snapshotLocked()
	m.mu.Unlock()

	for _, fn := range obs {
		fn(cur, to)
	}
	return nil
}

// OnTransition registers fn for every successful transition.
func (m *Machine) OnTransition(fn TransitionFunc) (cancel func()) {
	m.mu.Lock()
	id := m.next
	m.next++
	m.observers[id] = fn
	m.order = append(m.order, id)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

func (m *Machine) snapshotLocked() []TransitionFunc {
	out := make([]TransitionFunc, 0, len(m.observers))
	live := m.order[:0]
	for _, id := range m.order {
		if fn, ok := m.observers[id]; ok {
			out = append(out, fn)
			live = append(live, id)
		}
	}
	m.order = live
	return out
}
