package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TypeCompletionCheck is the asynq task type of a deferred trip completion check
const TypeCompletionCheck = "trip:completion_check"

// DefaultQueue receives completion checks unless configured otherwise
const DefaultQueue = "approvals"

// CompletionPayload is the task body of a completion check
type CompletionPayload struct {
	TripID int64 `json:"trip_id"`
}

// NewCompletionTask builds the task that re-checks tripID at runAt.
// The task ID is derived from both so the same schedule enqueued twice runs once.
func NewCompletionTask(tripID int64, runAt time.Time, queue string) (*asynq.Task, []asynq.Option, error) {
	if tripID <= 0 {
		return nil, nil, fmt.Errorf("invalid trip id %d", tripID)
	}
	b, err := json.Marshal(CompletionPayload{TripID: tripID})
	if err != nil {
		return nil, nil, err
	}

	task := asynq.NewTask(TypeCompletionCheck, b)
	opts := []asynq.Option{
		asynq.ProcessAt(runAt),
		asynq.TaskID(completionTaskID(tripID, runAt)),
		asynq.Queue(queue),
		asynq.MaxRetry(5),
	}
	return task, opts, nil
}

// ParseCompletionPayload decodes a completion check task body
func ParseCompletionPayload(data []byte) (CompletionPayload, error) {
	var p CompletionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("invalid completion payload: %w", err)
	}
	if p.TripID <= 0 {
		return p, fmt.Errorf("invalid completion payload: trip id %d", p.TripID)
	}
	return p, nil
}

func completionTaskID(tripID int64, runAt time.Time) string {
	return fmt.Sprintf("completion:%d:%d", tripID, runAt.Unix())
}
