package fsm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sputn1ck/sweepbridge/fsm"
)

const (
	stateOff fsm.StateType = ""
	stateOn  fsm.StateType = "On"

	eventSwitch fsm.EventType = "Switch"
	eventBreak  fsm.EventType = "Break"
)

func testStates() fsm.States {
	return fsm.States{
		stateOff: fsm.State{
			Transitions: fsm.Transitions{
				eventSwitch: stateOn,
			},
		},
		stateOn: fsm.State{},
	}
}

func TestSendEvent(t *testing.T) {
	machine := &fsm.Machine{States: testStates()}

	require.NoError(t, machine.SendEvent(eventSwitch))
	require.Equal(t, stateOn, machine.Current)
	require.Equal(t, stateOff, machine.Previous)

	// The on state handles no events at all.
	err := machine.SendEvent(eventSwitch)
	require.ErrorIs(t, err, fsm.ErrEventRejected)
	require.Equal(t, stateOn, machine.Current)
}

func TestSendEventUnknown(t *testing.T) {
	machine := &fsm.Machine{States: testStates()}

	err := machine.SendEvent(eventBreak)
	require.ErrorIs(t, err, fsm.ErrEventRejected)
	require.Equal(t, stateOff, machine.Current)
}
