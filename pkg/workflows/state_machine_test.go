package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	sm := NewStateMachine()

	assert.True(t, sm.CanTransition(StatusAwaitingValidation, StatusProcessing))
	assert.True(t, sm.CanTransition("", StatusProcessing))
	assert.True(t, sm.CanTransition(StatusProcessing, StatusAccepted))
	assert.True(t, sm.CanTransition(StatusProcessing, StatusAwaitingValidation))

	assert.False(t, sm.CanTransition(StatusAwaitingValidation, StatusAccepted))
	assert.False(t, sm.CanTransition(StatusProcessing, StatusProcessing))
	assert.False(t, sm.CanTransition("unknown", StatusProcessing))
}

func TestTerminalStatesAcceptNothing(t *testing.T) {
	sm := NewStateMachine()

	for _, status := range []string{StatusAccepted, StatusRejected, StatusCancelled} {
		assert.True(t, sm.IsTerminal(status))
		assert.False(t, sm.CanTransition(status, StatusAwaitingValidation))
		assert.False(t, sm.CanTransition(status, StatusProcessing))
	}
	assert.False(t, sm.IsTerminal(StatusProcessing))
}
