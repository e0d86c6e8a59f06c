package bridgedb

import (
	"errors"

	"github.com/sputn1ck/sweepbridge/fsm"
)

const (
	// StateUnknown is the state of a deposit before its reveal.
	StateUnknown = fsm.Default

	// StateRevealed is the state of a revealed, not yet swept deposit.
	StateRevealed fsm.StateType = "Revealed"

	// StateSwept is the terminal state of a swept deposit.
	StateSwept fsm.StateType = "Swept"

	// OnReveal is the event that creates a deposit record.
	OnReveal fsm.EventType = "OnReveal"

	// OnSweep is the event that marks a deposit swept.
	OnSweep fsm.EventType = "OnSweep"
)

// DepositTransitions is the only legal deposit lifecycle:
// Unknown -> Revealed -> Swept.
var DepositTransitions = fsm.States{
	StateUnknown: fsm.State{
		Transitions: fsm.Transitions{
			OnReveal: StateRevealed,
		},
	},
	StateRevealed: fsm.State{
		Transitions: fsm.Transitions{
			OnSweep: StateSwept,
		},
	},
	StateSwept: fsm.State{},
}

// State returns the deposit's lifecycle state. A nil deposit is unknown.
func (d *Deposit) State() fsm.StateType {
	switch {
	case d == nil:
		return StateUnknown
	case d.SweptAt.IsZero():
		return StateRevealed
	default:
		return StateSwept
	}
}

// advance validates a lifecycle event against the deposit's current state
// and maps a rejection onto the store's error vocabulary.
func advance(deposit *Deposit, event fsm.EventType) error {
	machine := &fsm.Machine{
		States:  DepositTransitions,
		Current: deposit.State(),
	}

	err := machine.SendEvent(event)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fsm.ErrEventRejected) {
		return err
	}

	if event == OnReveal {
		return ErrAlreadyRevealed
	}
	if deposit.State() == StateUnknown {
		return ErrNotRevealed
	}
	return ErrAlreadySwept
}
