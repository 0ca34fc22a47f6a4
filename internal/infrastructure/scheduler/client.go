package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/garyjia/commute-approvals/internal/application/port"
	"github.com/garyjia/commute-approvals/internal/domain/apperror"
)

// Enqueuer is the part of *asynq.Client the scheduler needs
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqScheduler implements port.Scheduler on an asynq queue
type AsynqScheduler struct {
	client Enqueuer
	queue  string
	logger *zap.Logger
}

// NewAsynqScheduler creates a scheduler enqueueing into queue
func NewAsynqScheduler(client Enqueuer, queue string, logger *zap.Logger) *AsynqScheduler {
	if queue == "" {
		queue = DefaultQueue
	}
	return &AsynqScheduler{
		client: client,
		queue:  queue,
		logger: logger,
	}
}

// ScheduleCompletionCheck implements port.Scheduler
func (s *AsynqScheduler) ScheduleCompletionCheck(ctx context.Context, tripID int64, runAt time.Time) error {
	task, opts, err := NewCompletionTask(tripID, runAt, s.queue)
	if err != nil {
		return err
	}

	info, err := s.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		s.logger.Debug("Completion check already scheduled",
			zap.Int64("trip_id", tripID),
			zap.Time("run_at", runAt))
		return nil
	}
	if err != nil {
		s.logger.Error("Failed to schedule completion check",
			zap.Int64("trip_id", tripID),
			zap.Time("run_at", runAt),
			zap.Error(err))
		return apperror.Dependency("schedule completion check", err)
	}

	s.logger.Info("Completion check scheduled",
		zap.Int64("trip_id", tripID),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
		zap.Time("run_at", runAt))
	return nil
}

// Verify interface compliance
var _ port.Scheduler = (*AsynqScheduler)(nil)
