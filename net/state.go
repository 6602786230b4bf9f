package net

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// NetworkState is the lifecycle state of a Network. Values are bit
// patterns; every running state carries the listening bit.
type NetworkState uint8

const (
	Uninitialized     NetworkState = 0x00
	Initialized       NetworkState = 0x01
	Listening         NetworkState = Initialized | 0x02
	Connected         NetworkState = 0x10 | Listening
	Reconnecting      NetworkState = 0x20 | Listening
	ShutdownRequested NetworkState = 0x40 | Listening
	Disposed          NetworkState = 0x10 | Disconnected

	// Disconnected is the state a network returns to after a shutdown.
	Disconnected = Initialized

	listeningBit NetworkState = 0x02
)

func (s NetworkState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Listening:
		return "listening"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case ShutdownRequested:
		return "shutdown-requested"
	case Disposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(0x%02x)", uint8(s))
	}
}

// IsRunning reports whether receive loops may run in s.
func (s NetworkState) IsRunning() bool { return s&listeningBit != 0 }

// transition lists which states may precede a state, and what to do on
// entering it.
type transition struct {
	from    []NetworkState
	anyFrom bool
	enter   func(prev NetworkState)
}

// stateMachine guards a NetworkState with an explicit transition table.
type stateMachine struct {
	mu    sync.RWMutex
	state NetworkState
	table map[NetworkState]transition
}

func defaultTransitions() map[NetworkState]transition {
	return map[NetworkState]transition{
		Initialized:       {from: []NetworkState{Uninitialized, ShutdownRequested}},
		Listening:         {from: []NetworkState{Initialized}},
		Connected:         {from: []NetworkState{Listening, Reconnecting}},
		Reconnecting:      {from: []NetworkState{Connected, Listening}},
		ShutdownRequested: {from: []NetworkState{Listening, Connected, Reconnecting}},
		Disposed:          {anyFrom: true},
	}
}

func newStateMachine(table map[NetworkState]transition) *stateMachine {
	return &stateMachine{state: Uninitialized, table: table}
}

// onEnter installs an entry action for s.
func (m *stateMachine) onEnter(s NetworkState, fn func(prev NetworkState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table[s]
	t.enter = fn
	m.table[s] = t
}

func (m *stateMachine) State() NetworkState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Allowed reports whether from -> to appears in the table.
func (m *stateMachine) Allowed(from, to NetworkState) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allowed(from, to)
}

func (m *stateMachine) allowed(from, to NetworkState) bool {
	if from == Disposed {
		return false
	}
	t, ok := m.table[to]
	if !ok {
		return false
	}
	if t.anyFrom {
		return true
	}
	for _, f := range t.from {
		if f == from {
			return true
		}
	}
	return false
}

// Transition moves to the next state and runs its entry action, outside
// the lock. It returns the previous state.
func (m *stateMachine) Transition(to NetworkState) (NetworkState, error) {
	m.mu.Lock()
	return m.commit(to)
}

// TransitionFrom is Transition guarded by an expected current state.
func (m *stateMachine) TransitionFrom(from, to NetworkState) error {
	m.mu.Lock()
	if cur := m.state; cur != from {
		m.mu.Unlock()
		if cur == Disposed {
			return ErrAlreadyDisposed
		}
		return errors.Wrapf(ErrInvalidTransition, "expected %s, in %s", from, cur)
	}
	_, err := m.commit(to)
	return err
}

// commit is called with mu held and releases it.
func (m *stateMachine) commit(to NetworkState) (NetworkState, error) {
	prev := m.state
	if !m.allowed(prev, to) {
		m.mu.Unlock()
		if prev == Disposed {
			return prev, ErrAlreadyDisposed
		}
		return prev, errors.Wrapf(ErrInvalidTransition, "%s -> %s", prev, to)
	}
	m.state = to
	enter := m.table[to].enter
	m.mu.Unlock()

	if enter != nil {
		enter(prev)
	}
	return prev, nil
}
