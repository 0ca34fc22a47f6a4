package workflow

// Trigger represents an actor decision that can cause a state transition
type Trigger string

const (
	TriggerApprove  Trigger = "APPROVE"
	TriggerDecline  Trigger = "DECLINE"
	TriggerConfirm  Trigger = "CONFIRM"
	TriggerCancel   Trigger = "CANCEL"
	TriggerComplete Trigger = "COMPLETE"
)

var validTriggers = map[Trigger]bool{
	TriggerApprove:  true,
	TriggerDecline:  true,
	TriggerConfirm:  true,
	TriggerCancel:   true,
	TriggerComplete: true,
}

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

// IsValid returns true if the trigger is known
func (t Trigger) IsValid() bool {
	return validTriggers[t]
}

// RequiresRationale reports whether the trigger must carry a non-empty reason
func (t Trigger) RequiresRationale() bool {
	return t == TriggerDecline || t == TriggerCancel
}
