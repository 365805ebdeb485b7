package workflows

// StateMachine enforces verification status transitions
type StateMachine struct {
	allowedTransitions map[string][]string
	terminal           map[string]bool
}

// Verification statuses
const (
	StatusAwaitingValidation = "awaiting_validation"
	StatusProcessing         = "processing"
	StatusAccepted           = "accepted"
	StatusRejected           = "rejected"
	StatusCancelled          = "cancelled"
)

// NewStateMachine creates a new state machine with allowed transitions
func NewStateMachine() *StateMachine {
	return &StateMachine{
		allowedTransitions: map[string][]string{
			StatusAwaitingValidation: {StatusProcessing},
			// awaiting_validation is only reachable again when a claim is released
			StatusProcessing: {StatusAccepted, StatusRejected, StatusCancelled, StatusAwaitingValidation},
			StatusAccepted:   {},
			StatusRejected:   {},
			StatusCancelled:  {},
		},
		terminal: map[string]bool{
			StatusAccepted:  true,
			StatusRejected:  true,
			StatusCancelled: true,
		},
	}
}

// CanTransition checks if a status transition is allowed. An empty from
// status is treated as awaiting_validation.
func (sm *StateMachine) CanTransition(from, to string) bool {
	if from == "" {
		from = StatusAwaitingValidation
	}
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

// IsTerminal reports whether no transition leaves status.
func (sm *StateMachine) IsTerminal(status string) bool {
	return sm.terminal[status]
}
