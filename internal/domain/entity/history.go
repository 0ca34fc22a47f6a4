package entity

import (
	"time"

	"github.com/garyjia/commute-approvals/internal/domain/workflow"
)

// StatusChange is the audit trail entry written for every applied transition
type StatusChange struct {
	ID          int64            `json:"id"`
	RequestKind workflow.Kind    `json:"request_kind"`
	RequestID   int64            `json:"request_id"`
	ActorID     string           `json:"actor_id"`
	FromStatus  workflow.State   `json:"from_status"`
	ToStatus    workflow.State   `json:"to_status"`
	Trigger     workflow.Trigger `json:"trigger"`
	Comment     string           `json:"comment"`
	CreatedAt   time.Time        `json:"created_at"`
}
