package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/commute-approvals/internal/application/port"
	"github.com/garyjia/commute-approvals/internal/domain/apperror"
	"github.com/garyjia/commute-approvals/internal/domain/entity"
	"github.com/garyjia/commute-approvals/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// BatchRepository implements port.BatchRepository
type BatchRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *sql.DB, logger *zap.Logger) port.BatchRepository {
	return &BatchRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a batch and sets its ID. A label already used on the route is rejected by the schema.
func (r *BatchRepository) Create(ctx context.Context, batch *entity.Batch) error {
	query := `
		INSERT INTO batches (
			route_request_id, route_name, label, take_off_time, capacity,
			cab_reg_number, provider, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		batch.RouteRequestID,
		batch.RouteName,
		batch.Label,
		batch.TakeOffTime,
		batch.Capacity,
		batch.CabRegNumber,
		batch.Provider,
		batch.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create batch", zap.String("route_name", batch.RouteName), zap.String("label", batch.Label), zap.Error(err))
		return apperror.Dependency("create batch", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return apperror.Dependency("create batch", fmt.Errorf("failed to get last insert id: %w", err))
	}

	batch.ID = id
	return nil
}

// GetByID retrieves a batch, or nil when absent
func (r *BatchRepository) GetByID(ctx context.Context, id int64) (*entity.Batch, error) {
	query := `
		SELECT id, route_request_id, route_name, label, take_off_time, capacity,
			cab_reg_number, provider, created_at
		FROM batches
		WHERE id = ?
	`

	var batch entity.Batch
	err := r.getExecutor(ctx).QueryRowContext(ctx, query, id).Scan(
		&batch.ID,
		&batch.RouteRequestID,
		&batch.RouteName,
		&batch.Label,
		&batch.TakeOffTime,
		&batch.Capacity,
		&batch.CabRegNumber,
		&batch.Provider,
		&batch.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get batch by ID", zap.Int64("id", id), zap.Error(err))
		return nil, apperror.Dependency("get batch", err)
	}
	return &batch, nil
}

// LatestLabel returns the last label in A..Z, AA.. order used on routeName
func (r *BatchRepository) LatestLabel(ctx context.Context, routeName string) (string, error) {
	query := `
		SELECT label FROM batches
		WHERE route_name = ?
		ORDER BY LENGTH(label) DESC, label DESC
		LIMIT 1
	`

	var label string
	err := r.getExecutor(ctx).QueryRowContext(ctx, query, routeName).Scan(&label)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		r.logger.Error("Failed to get latest batch label", zap.String("route_name", routeName), zap.Error(err))
		return "", apperror.Dependency("latest batch label", err)
	}
	return label, nil
}

// AddMember records actorID as a rider of the batch
func (r *BatchRepository) AddMember(ctx context.Context, batchID int64, actorID string) error {
	query := `INSERT OR IGNORE INTO batch_members (batch_id, actor_id) VALUES (?, ?)`

	if _, err := r.getExecutor(ctx).ExecContext(ctx, query, batchID, actorID); err != nil {
		r.logger.Error("Failed to add batch member", zap.Int64("batch_id", batchID), zap.String("actor_id", actorID), zap.Error(err))
		return apperror.Dependency("add batch member", err)
	}
	return nil
}

// Members lists the riders of a batch in join order
func (r *BatchRepository) Members(ctx context.Context, batchID int64) ([]string, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx,
		`SELECT actor_id FROM batch_members WHERE batch_id = ? ORDER BY joined_at, actor_id`, batchID)
	if err != nil {
		return nil, apperror.Dependency("list batch members", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var actor string
		if err := rows.Scan(&actor); err != nil {
			return nil, apperror.Dependency("list batch members", err)
		}
		members = append(members, actor)
	}
	return members, rows.Err()
}

// getExecutor returns appropriate executor based on context
func (r *BatchRepository) getExecutor(ctx context.Context) sqlite.QueryExecutor {
	return sqlite.Executor(ctx, r.db)
}

// Verify interface compliance
var _ port.BatchRepository = (*BatchRepository)(nil)
