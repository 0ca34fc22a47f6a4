package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/commute-approvals/internal/domain/apperror"
	domainwf "github.com/garyjia/commute-approvals/internal/domain/workflow"
	"github.com/garyjia/commute-approvals/pkg/utils"
)

// DefaultCompletionGrace is how long after departure a trip is checked for completion
const DefaultCompletionGrace = 30 * time.Minute

type machineImpl struct {
	lifecycles      map[domainwf.Kind]domainwf.StateMachineBuilder
	completionGrace time.Duration
	now             func() time.Time
}

// MachineOption configures the request state machine
type MachineOption func(*machineImpl)

// WithCompletionGrace sets the delay after departure before a completion check runs
func WithCompletionGrace(grace time.Duration) MachineOption {
	return func(m *machineImpl) {
		if grace >= 0 {
			m.completionGrace = grace
		}
	}
}

// WithClock overrides the clock used to compute completion check delays
func WithClock(now func() time.Time) MachineOption {
	return func(m *machineImpl) {
		m.now = now
	}
}

// NewRequestStateMachine creates the state machine for trip and route requests
func NewRequestStateMachine(opts ...MachineOption) RequestStateMachine {
	m := &machineImpl{
		lifecycles: map[domainwf.Kind]domainwf.StateMachineBuilder{
			domainwf.KindTrip:  BuildTripLifecycle(),
			domainwf.KindRoute: BuildRouteLifecycle(),
		},
		completionGrace: DefaultCompletionGrace,
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Settled returns the not-applied outcome for a trigger already decided at current
func (m *machineImpl) Settled(kind domainwf.Kind, current domainwf.State, trigger domainwf.Trigger) (*Outcome, error) {
	machine, err := m.machineFor(kind, current, trigger)
	if err != nil {
		return nil, err
	}

	if current.IsTerminal() || machine.Superseded(trigger) {
		return &Outcome{
			Applied:        false,
			PreviousStatus: current,
			NewStatus:      current,
			SideEffects:    []domainwf.SideEffect{domainwf.InformActor(current)},
			Reason:         ReasonAlreadyTerminal,
		}, nil
	}

	if !machine.CanFire(trigger) {
		return nil, fmt.Errorf("%w: cannot %s a %s request in status %s",
			domainwf.ErrInvalidTransition, trigger, kind, current)
	}

	return nil, nil
}

// AttemptTransition validates and applies transition
func (m *machineImpl) AttemptTransition(ctx context.Context, kind domainwf.Kind, current domainwf.State, transition Transition, actor string) (*Outcome, error) {
	settled, err := m.Settled(kind, current, transition.Trigger)
	if err != nil {
		return nil, err
	}
	if settled != nil {
		return settled, nil
	}

	rationale, err := CleanRationale(transition.Rationale, transition.Trigger.RequiresRationale())
	if err != nil {
		return nil, err
	}

	machine := m.lifecycles[kind].Build(current)
	attempt := domainwf.Attempt{
		Actor:     actor,
		Rationale: rationale,
		BatchID:   transition.BatchID,
		Fulfilled: transition.Fulfilled,
	}
	if err := machine.Fire(ctx, transition.Trigger, attempt); err != nil {
		return nil, fmt.Errorf("%s request: %w", kind, err)
	}

	return &Outcome{
		Applied:        true,
		PreviousStatus: current,
		NewStatus:      machine.State(),
		SideEffects:    m.sideEffects(kind, current, transition),
		Reason:         ReasonNone,
		Rationale:      rationale,
	}, nil
}

func (m *machineImpl) machineFor(kind domainwf.Kind, current domainwf.State, trigger domainwf.Trigger) (domainwf.StateMachine, error) {
	problems := &apperror.ValidationError{}
	if !kind.IsValid() {
		problems.Add("kind", fmt.Sprintf("unknown request kind %q", kind))
	}
	if !trigger.IsValid() {
		problems.Add("action", fmt.Sprintf("unknown action %q", trigger))
	}
	if err := problems.OrNil(); err != nil {
		return nil, err
	}
	if !current.IsValid() {
		return nil, fmt.Errorf("%w: %q", domainwf.ErrInvalidState, current)
	}
	return m.lifecycles[kind].Build(current), nil
}

// sideEffects lists what collaborators must do once transition moved a request away from from
func (m *machineImpl) sideEffects(kind domainwf.Kind, from domainwf.State, transition Transition) []domainwf.SideEffect {
	switch kind {
	case domainwf.KindTrip:
		switch transition.Trigger {
		case domainwf.TriggerApprove:
			return []domainwf.SideEffect{domainwf.NotifyRequester(), domainwf.NotifyApprovalChannel()}
		case domainwf.TriggerDecline:
			return []domainwf.SideEffect{domainwf.NotifyRequester()}
		case domainwf.TriggerConfirm:
			return []domainwf.SideEffect{
				domainwf.NotifyRequester(),
				domainwf.NotifyRider(),
				domainwf.ScheduleCompletionCheck(m.CompletionDelay(transition.ScheduledAt)),
			}
		case domainwf.TriggerCancel:
			if from == domainwf.StatePending {
				return []domainwf.SideEffect{domainwf.NotifyApprover()}
			}
			return []domainwf.SideEffect{domainwf.NotifyApprover(), domainwf.NotifyApprovalChannel()}
		case domainwf.TriggerComplete:
			return []domainwf.SideEffect{domainwf.NotifyApprovalChannel()}
		}
	case domainwf.KindRoute:
		switch transition.Trigger {
		case domainwf.TriggerApprove:
			return []domainwf.SideEffect{domainwf.AssignFulfillment(transition.BatchID), domainwf.NotifyRequester()}
		case domainwf.TriggerCancel:
			return []domainwf.SideEffect{domainwf.NotifyApprovalChannel()}
		case domainwf.TriggerDecline, domainwf.TriggerConfirm, domainwf.TriggerComplete:
			return []domainwf.SideEffect{domainwf.NotifyRequester()}
		}
	}
	return nil
}

// CompletionDelay returns how long to wait before checking a trip leaving at departure
func (m *machineImpl) CompletionDelay(departure time.Time) time.Duration {
	if departure.IsZero() {
		return m.completionGrace
	}
	delay := departure.Add(m.completionGrace).Sub(m.now())
	if delay < 0 {
		return 0
	}
	return delay
}

// CleanRationale strips control characters and surrounding space from text and enforces
// the length cap. An empty result is rejected when required.
func CleanRationale(text string, required bool) (string, error) {
	cleaned := utils.SanitizeText(text)
	if required && cleaned == "" {
		return "", apperror.NewValidationError("rationale", "This field cannot be empty")
	}
	if utils.CharLength(cleaned) > MaxRationaleLength {
		return "", apperror.NewValidationError("rationale",
			fmt.Sprintf("Character length must be less than or equal to %d", MaxRationaleLength))
	}
	return cleaned, nil
}

var _ RequestStateMachine = (*machineImpl)(nil)
