package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngagementTransitions(t *testing.T) {
	sm := NewEngagementStateMachine()

	allowed := [][2]string{
		{"requested", "accepted"},
		{"requested", "rejected"},
		{"requested", "cancelled"},
		{"accepted", "arrived"},
		{"accepted", "in_progress"},
		{"accepted", "cancelled"},
		{"accepted", "rejected"},
		{"arrived", "in_progress"},
		{"arrived", "cancelled"},
		{"in_progress", "completed"},
		{"in_progress", "cancelled"},
		{"completed", "closed"},
	}

	for _, tr := range allowed {
		assert.True(t, sm.CanTransition(tr[0], tr[1]), "%s -> %s should be allowed", tr[0], tr[1])
	}
}

// Every (state, attempted-state) pair not in the table must be refused.
func TestTransitionTableIsTotal(t *testing.T) {
	sm := NewEngagementStateMachine()
	states := sm.States()
	assert.Len(t, states, 8)

	for _, from := range states {
		allowed := map[string]bool{}
		for _, to := range sm.GetAllowedTransitions(from) {
			allowed[to] = true
		}
		for _, to := range states {
			assert.Equal(t, allowed[to], sm.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	sm := NewEngagementStateMachine()

	for _, s := range []string{"closed", "rejected", "cancelled"} {
		assert.True(t, sm.IsTerminal(s), "%s should be terminal", s)
		assert.Empty(t, sm.GetAllowedTransitions(s))
	}
	for _, s := range []string{"requested", "accepted", "arrived", "in_progress", "completed"} {
		assert.False(t, sm.IsTerminal(s), "%s should not be terminal", s)
	}
}

func TestUnknownStateRefused(t *testing.T) {
	sm := NewEngagementStateMachine()
	assert.False(t, sm.CanTransition("bogus", "accepted"))
	assert.Empty(t, sm.GetAllowedTransitions("bogus"))
}
