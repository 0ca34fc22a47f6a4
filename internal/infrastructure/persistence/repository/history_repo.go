package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/commute-approvals/internal/application/port"
	"github.com/garyjia/commute-approvals/internal/domain/apperror"
	"github.com/garyjia/commute-approvals/internal/domain/entity"
	"github.com/garyjia/commute-approvals/internal/domain/workflow"
	"github.com/garyjia/commute-approvals/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new history record
func (r *HistoryRepository) Create(ctx context.Context, change *entity.StatusChange) error {
	query := `
		INSERT INTO request_history (
			request_kind, request_id, actor_id, from_status, to_status,
			trigger_name, comment, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		change.RequestKind,
		change.RequestID,
		change.ActorID,
		change.FromStatus,
		change.ToStatus,
		change.Trigger,
		change.Comment,
		change.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.Error(err))
		return apperror.Dependency("create history", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return apperror.Dependency("create history", fmt.Errorf("failed to get last insert id: %w", err))
	}

	change.ID = id
	return nil
}

// ListByRequest retrieves the history of one request, oldest first
func (r *HistoryRepository) ListByRequest(ctx context.Context, kind workflow.Kind, requestID int64) ([]*entity.StatusChange, error) {
	query := `
		SELECT id, request_kind, request_id, actor_id, from_status, to_status,
			trigger_name, comment, created_at
		FROM request_history
		WHERE request_kind = ? AND request_id = ?
		ORDER BY id ASC
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, kind, requestID)
	if err != nil {
		r.logger.Error("Failed to list history", zap.Int64("request_id", requestID), zap.Error(err))
		return nil, apperror.Dependency("list history", err)
	}
	defer rows.Close()

	var changes []*entity.StatusChange
	for rows.Next() {
		var change entity.StatusChange
		err := rows.Scan(
			&change.ID,
			&change.RequestKind,
			&change.RequestID,
			&change.ActorID,
			&change.FromStatus,
			&change.ToStatus,
			&change.Trigger,
			&change.Comment,
			&change.CreatedAt,
		)
		if err != nil {
			return nil, apperror.Dependency("scan history", err)
		}
		changes = append(changes, &change)
	}

	if err := rows.Err(); err != nil {
		return nil, apperror.Dependency("list history", err)
	}
	return changes, nil
}

// getExecutor returns appropriate executor based on context
func (r *HistoryRepository) getExecutor(ctx context.Context) sqlite.QueryExecutor {
	return sqlite.Executor(ctx, r.db)
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
