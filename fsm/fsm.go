package fsm

import (
	"errors"
	"fmt"
)

var (
	// ErrEventRejected is the error returned when the state machine
	// cannot process an event in the state that it is in.
	ErrEventRejected = errors.New("event rejected")
)

const (
	// Default represents the default state of the system.
	Default StateType = ""
)

// StateType represents an extensible state type in the state machine.
type StateType string

// EventType represents an extensible event type in the state machine.
type EventType string

// Transitions represents a mapping of events and states.
type Transitions map[EventType]StateType

// State binds a state with the set of events it can handle.
type State struct {
	Transitions Transitions
}

// States represents a mapping of states and their implementations.
type States map[StateType]State

// Machine is a synchronous state machine. Events are applied inline by the
// single caller that owns the machine; there is no background processing.
type Machine struct {
	// States holds the machine's transition table.
	States States

	// Previous represents the previous state.
	Previous StateType

	// Current represents the current state.
	Current StateType
}

// getNextState returns the next state for the event given the machine's
// current state, or an error if the event can't be handled in the given
// state.
func (m *Machine) getNextState(event EventType) (StateType, error) {
	state, ok := m.States[m.Current]
	if !ok {
		return Default, NewErrConfigError("current state not found")
	}
	if state.Transitions == nil {
		return Default, ErrEventRejected
	}

	next, ok := state.Transitions[event]
	if !ok {
		return Default, ErrEventRejected
	}

	if _, ok := m.States[next]; !ok {
		return Default, NewErrConfigError("next state not found")
	}

	return next, nil
}

// SendEvent applies an event to the state machine, transitioning it to the
// next state or rejecting the event if the current state cannot handle it.
func (m *Machine) SendEvent(event EventType) error {
	next, err := m.getNextState(event)
	if err != nil {
		return err
	}

	m.Previous = m.Current
	m.Current = next

	return nil
}

// ErrConfigError is an error returned when the state machine is
// misconfigured.
type ErrConfigError error

// NewErrConfigError creates a new ErrConfigError.
func NewErrConfigError(msg string) ErrConfigError {
	return (ErrConfigError)(fmt.Errorf("config error: %s", msg))
}
