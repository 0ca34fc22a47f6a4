package workflow

import (
	"context"
	"time"

	domainwf "github.com/garyjia/commute-approvals/internal/domain/workflow"
)

// MaxRationaleLength caps approval notes and decline reasons, counted in characters
const MaxRationaleLength = 100

// Reason explains why a transition was not applied
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonAlreadyTerminal Reason = "ALREADY_TERMINAL"
)

// Transition is the change an actor asks for
type Transition struct {
	Trigger domainwf.Trigger

	// Rationale is the approval note or decline reason as typed by the actor
	Rationale string

	// BatchID must be set when approving a route request
	BatchID int64

	// Fulfilled must be true when confirming a trip request
	Fulfilled bool

	// ScheduledAt is the trip departure used to time the completion check
	ScheduledAt time.Time
}

// Outcome is the result of an attempted transition.
// NewStatus is the status the request holds afterwards, whether or not anything changed.
type Outcome struct {
	Applied        bool
	PreviousStatus domainwf.State
	NewStatus      domainwf.State
	SideEffects    []domainwf.SideEffect
	Reason         Reason
	Rationale      string
}

// RequestStateMachine validates transitions of trip and route requests and decides
// the side effects each one requires. It performs no I/O.
type RequestStateMachine interface {
	// AttemptTransition applies transition to a request of kind currently at current
	AttemptTransition(ctx context.Context, kind domainwf.Kind, current domainwf.State, transition Transition, actor string) (*Outcome, error)

	// Settled returns the not-applied outcome when trigger was already decided for a
	// request at current, or nil when the trigger may still apply
	Settled(kind domainwf.Kind, current domainwf.State, trigger domainwf.Trigger) (*Outcome, error)

	// CompletionDelay is the wait until departure plus the completion grace, never negative
	CompletionDelay(departure time.Time) time.Duration
}
