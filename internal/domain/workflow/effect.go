package workflow

import "time"

// EffectType names a follow-up action a collaborator must perform after a transition
type EffectType string

const (
	EffectNotifyRequester         EffectType = "NOTIFY_REQUESTER"
	EffectNotifyRider             EffectType = "NOTIFY_RIDER"
	EffectNotifyApprover          EffectType = "NOTIFY_APPROVER"
	EffectNotifyApprovalChannel   EffectType = "NOTIFY_APPROVAL_CHANNEL"
	EffectInformActor             EffectType = "INFORM_ACTOR"
	EffectScheduleCompletionCheck EffectType = "SCHEDULE_COMPLETION_CHECK"
	EffectAssignFulfillment       EffectType = "ASSIGN_FULFILLMENT"
	EffectPromptCompletion        EffectType = "PROMPT_COMPLETION"
)

// SideEffect is a declarative instruction produced by the state machine.
// Only the fields relevant to Type are set.
type SideEffect struct {
	Type EffectType `json:"type"`

	// Status is the final status reported by EffectInformActor
	Status State `json:"status,omitempty"`

	// Delay is how long to wait before a completion check runs
	Delay time.Duration `json:"delay,omitempty"`

	// BatchID is the batch assigned by EffectAssignFulfillment
	BatchID int64 `json:"batchId,omitempty"`
}

// NotifyRequester builds a requester notification effect
func NotifyRequester() SideEffect { return SideEffect{Type: EffectNotifyRequester} }

// NotifyRider builds a rider notification effect
func NotifyRider() SideEffect { return SideEffect{Type: EffectNotifyRider} }

// NotifyApprover builds an approver notification effect
func NotifyApprover() SideEffect { return SideEffect{Type: EffectNotifyApprover} }

// NotifyApprovalChannel builds an operations channel notification effect
func NotifyApprovalChannel() SideEffect { return SideEffect{Type: EffectNotifyApprovalChannel} }

// InformActor tells the acting user the request already settled at status
func InformActor(status State) SideEffect {
	return SideEffect{Type: EffectInformActor, Status: status}
}

// ScheduleCompletionCheck defers a completion re-evaluation by delay
func ScheduleCompletionCheck(delay time.Duration) SideEffect {
	if delay < 0 {
		delay = 0
	}
	return SideEffect{Type: EffectScheduleCompletionCheck, Delay: delay}
}

// AssignFulfillment attaches the requester to a batch
func AssignFulfillment(batchID int64) SideEffect {
	return SideEffect{Type: EffectAssignFulfillment, BatchID: batchID}
}

// PromptCompletion asks the rider to confirm the trip happened
func PromptCompletion() SideEffect { return SideEffect{Type: EffectPromptCompletion} }
