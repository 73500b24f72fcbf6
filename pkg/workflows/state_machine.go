package workflows

// StateMachine enforces status transitions over a fixed table
type StateMachine struct {
	allowedTransitions map[string][]string
}

// NewStateMachine creates a state machine from an allowed-transitions table
func NewStateMachine(allowed map[string][]string) *StateMachine {
	return &StateMachine{allowedTransitions: allowed}
}

// NewEngagementStateMachine returns the booking lifecycle table. Terminal
// states have no exits. accepted may go straight to in_progress: the
// start code is presented on arrival, with or without a separate
// arrival mark.
func NewEngagementStateMachine() *StateMachine {
	return NewStateMachine(map[string][]string{
		"requested":   {"accepted", "rejected", "cancelled"},
		"accepted":    {"arrived", "in_progress", "cancelled", "rejected"},
		"arrived":     {"in_progress", "cancelled"},
		"in_progress": {"completed", "cancelled"},
		"completed":   {"closed"},
		"closed":      {},
		"rejected":    {},
		"cancelled":   {},
	})
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return allowed
}

// IsTerminal reports whether a status has no outgoing transitions
func (sm *StateMachine) IsTerminal(status string) bool {
	allowed, exists := sm.allowedTransitions[status]
	return exists && len(allowed) == 0
}

// States returns every status known to the table
func (sm *StateMachine) States() []string {
	states := make([]string, 0, len(sm.allowedTransitions))
	for s := range sm.allowedTransitions {
		states = append(states, s)
	}
	return states
}
