package event

import "github.com/garyjia/commute-approvals/internal/domain/workflow"

// Type identifies the type of domain event
type Type string

const (
	TypeRequestCreated     Type = "request.created"
	TypeStatusChanged      Type = "request.status_changed"
	TypeNotifyRequester    Type = "effect.notify_requester"
	TypeNotifyRider        Type = "effect.notify_rider"
	TypeNotifyApprover     Type = "effect.notify_approver"
	TypeNotifyChannel      Type = "effect.notify_approval_channel"
	TypeInformActor        Type = "effect.inform_actor"
	TypeScheduleCompletion Type = "effect.schedule_completion_check"
	TypeAssignFulfillment  Type = "effect.assign_fulfillment"
	TypePromptCompletion   Type = "effect.prompt_completion"
)

var effectTypes = map[workflow.EffectType]Type{
	workflow.EffectNotifyRequester:         TypeNotifyRequester,
	workflow.EffectNotifyRider:             TypeNotifyRider,
	workflow.EffectNotifyApprover:          TypeNotifyApprover,
	workflow.EffectNotifyApprovalChannel:   TypeNotifyChannel,
	workflow.EffectInformActor:             TypeInformActor,
	workflow.EffectScheduleCompletionCheck: TypeScheduleCompletion,
	workflow.EffectAssignFulfillment:       TypeAssignFulfillment,
	workflow.EffectPromptCompletion:        TypePromptCompletion,
}

// TypeForEffect returns the event type carrying a side effect
func TypeForEffect(effect workflow.EffectType) Type {
	if t, ok := effectTypes[effect]; ok {
		return t
	}
	return Type("effect." + string(effect))
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRequestCreated, TypeStatusChanged:
		return true
	}
	for _, known := range effectTypes {
		if known == t {
			return true
		}
	}
	return false
}
