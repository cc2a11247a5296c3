package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_ValidTransitionsSucceed(t *testing.T) {
	sm := NewStateMachine()
	assert.Equal(t, StateStarting, sm.Current())

	require.NoError(t, sm.Transition(StateRunning, "started"))
	assert.Equal(t, StateRunning, sm.Current())
	assert.Equal(t, StateStarting, sm.Previous())

	require.NoError(t, sm.Transition(StateWaitingMarket, "market_closed"))
	require.NoError(t, sm.Transition(StatePaused, "paused"))
	require.NoError(t, sm.Transition(StateRunning, "resumed"))
	require.NoError(t, sm.Transition(StateStopped, "stopped"))
	assert.Equal(t, StateStopped, sm.Current())
}

func TestStateMachine_InvalidTransitionErrors(t *testing.T) {
	sm := NewStateMachine()
	err := sm.Transition(StateStopped, "market_closed")
	require.Error(t, err)
	assert.Equal(t, StateStarting, sm.Current())

	require.NoError(t, sm.Transition(StateStopped, "stopped"))
	err = sm.Transition(StateRunning, "started")
	require.Error(t, err)
}
