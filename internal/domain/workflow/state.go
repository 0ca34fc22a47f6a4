package workflow

// State represents a request status in the approval lifecycle
type State string

const (
	StatePending   State = "PENDING"
	StateApproved  State = "APPROVED"
	StateDeclined  State = "DECLINED"
	StateConfirmed State = "CONFIRMED"
	StateCancelled State = "CANCELLED"
	StateCompleted State = "COMPLETED"
)

var validStates = map[State]bool{
	StatePending:   true,
	StateApproved:  true,
	StateDeclined:  true,
	StateConfirmed: true,
	StateCancelled: true,
	StateCompleted: true,
}

var terminalStates = map[State]bool{
	StateDeclined:  true,
	StateCancelled: true,
	StateCompleted: true,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid request status
func (s State) IsValid() bool {
	return validStates[s]
}

// ParseState converts a raw status string into a State
func ParseState(raw string) (State, error) {
	s := State(raw)
	if !s.IsValid() {
		return "", ErrInvalidState
	}
	return s, nil
}
