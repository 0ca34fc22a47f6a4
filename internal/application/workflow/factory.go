package workflow

import (
	"context"

	domainwf "github.com/garyjia/commute-approvals/internal/domain/workflow"
)

func hasRationale(_ context.Context, a domainwf.Attempt) bool {
	return a.Rationale != ""
}

func hasBatch(_ context.Context, a domainwf.Attempt) bool {
	return a.BatchID > 0
}

func hasFulfillment(_ context.Context, a domainwf.Attempt) bool {
	return a.Fulfilled
}

// BuildTripLifecycle configures the lifecycle of a trip request.
// Operations confirm a trip by assigning a driver and cab.
func BuildTripLifecycle() domainwf.StateMachineBuilder {
	builder := domainwf.NewBuilder()

	builder.Configure(domainwf.StatePending).
		Permit(domainwf.TriggerApprove, domainwf.StateApproved).
		PermitIf(domainwf.TriggerDecline, domainwf.StateDeclined, hasRationale).
		PermitIf(domainwf.TriggerCancel, domainwf.StateCancelled, hasRationale)

	builder.Configure(domainwf.StateApproved).
		PermitIf(domainwf.TriggerConfirm, domainwf.StateConfirmed, hasFulfillment).
		PermitIf(domainwf.TriggerCancel, domainwf.StateCancelled, hasRationale)

	builder.Configure(domainwf.StateConfirmed).
		Permit(domainwf.TriggerComplete, domainwf.StateCompleted).
		PermitIf(domainwf.TriggerCancel, domainwf.StateCancelled, hasRationale)

	return builder
}

// BuildRouteLifecycle configures the lifecycle of a route request.
// Approval is only complete once a batch exists for the route.
func BuildRouteLifecycle() domainwf.StateMachineBuilder {
	builder := domainwf.NewBuilder()

	builder.Configure(domainwf.StatePending).
		PermitIf(domainwf.TriggerApprove, domainwf.StateApproved, hasBatch).
		PermitIf(domainwf.TriggerDecline, domainwf.StateDeclined, hasRationale).
		PermitIf(domainwf.TriggerCancel, domainwf.StateCancelled, hasRationale)

	builder.Configure(domainwf.StateApproved).
		Permit(domainwf.TriggerConfirm, domainwf.StateConfirmed).
		PermitIf(domainwf.TriggerCancel, domainwf.StateCancelled, hasRationale)

	builder.Configure(domainwf.StateConfirmed).
		Permit(domainwf.TriggerComplete, domainwf.StateCompleted).
		PermitIf(domainwf.TriggerCancel, domainwf.StateCancelled, hasRationale)

	return builder
}
