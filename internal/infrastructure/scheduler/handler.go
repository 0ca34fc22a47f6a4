package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/garyjia/commute-approvals/internal/application/service"
	"github.com/garyjia/commute-approvals/internal/domain/apperror"
)

// CompletionChecker re-evaluates a trip when its completion check fires
type CompletionChecker interface {
	HandleCompletionCheck(ctx context.Context, tripID int64) (*service.ActionResult, error)
}

// NewServeMux routes scheduler task types to their handlers
func NewServeMux(checker CompletionChecker, logger *zap.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeCompletionCheck, CompletionHandler(checker, logger))
	return mux
}

// CompletionHandler runs a completion check task. Bad payloads and vanished trips
// are not retried; dependency failures are.
func CompletionHandler(checker CompletionChecker, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		p, err := ParseCompletionPayload(task.Payload())
		if err != nil {
			logger.Error("Dropping completion check", zap.Error(err))
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}

		result, err := checker.HandleCompletionCheck(ctx, p.TripID)
		switch {
		case errors.Is(err, apperror.ErrNotFound):
			logger.Warn("Completion check for unknown trip", zap.Int64("trip_id", p.TripID))
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		case err != nil:
			logger.Error("Completion check failed", zap.Int64("trip_id", p.TripID), zap.Error(err))
			return err
		}

		logger.Info("Completion check handled",
			zap.Int64("trip_id", p.TripID),
			zap.String("status", result.Status.String()),
			zap.Int("effects", len(result.SideEffects)))
		return nil
	}
}
