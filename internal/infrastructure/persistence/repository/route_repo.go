package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/commute-approvals/internal/application/port"
	"github.com/garyjia/commute-approvals/internal/domain/apperror"
	"github.com/garyjia/commute-approvals/internal/domain/entity"
	"github.com/garyjia/commute-approvals/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const routeColumns = `id, status, comment, requester_id, manager_id, home_address, bus_stop,
	take_off_time, batch_id, decided_by, created_at, updated_at`

// RouteRepository implements port.RouteRepository
type RouteRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRouteRepository creates a new route request repository
func NewRouteRepository(db *sql.DB, logger *zap.Logger) port.RouteRepository {
	return &RouteRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a route request and sets its ID
func (r *RouteRepository) Create(ctx context.Context, route *entity.RouteRequest) error {
	query := `
		INSERT INTO route_requests (
			status, comment, requester_id, manager_id, home_address, bus_stop,
			take_off_time, decided_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		route.Status,
		route.Comment,
		route.RequesterID,
		route.ManagerID,
		route.HomeAddress,
		route.BusStop,
		route.TakeOffTime,
		route.DecidedBy,
		route.CreatedAt.UTC(),
		route.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create route request", zap.Error(err))
		return apperror.Dependency("create route request", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return apperror.Dependency("create route request", fmt.Errorf("failed to get last insert id: %w", err))
	}

	route.ID = id
	return nil
}

// GetByID retrieves a route request, or nil when absent
func (r *RouteRepository) GetByID(ctx context.Context, id int64) (*entity.RouteRequest, error) {
	query := `SELECT ` + routeColumns + ` FROM route_requests WHERE id = ?`

	route, err := scanRoute(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get route request by ID", zap.Int64("id", id), zap.Error(err))
		return nil, apperror.Dependency("get route request", err)
	}
	return route, nil
}

// UpdateStatus applies update only while the request is still at update.From.
// A nil BatchID keeps the stored batch.
func (r *RouteRepository) UpdateStatus(ctx context.Context, id int64, update port.StatusUpdate) error {
	query := `
		UPDATE route_requests
		SET status = ?, comment = ?, decided_by = ?, batch_id = COALESCE(?, batch_id), updated_at = ?
		WHERE id = ? AND status = ?
	`

	var batchID sql.NullInt64
	if update.BatchID != nil {
		batchID = sql.NullInt64{Int64: *update.BatchID, Valid: true}
	}

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		update.To,
		update.Comment,
		update.ActorID,
		batchID,
		time.Now().UTC(),
		id,
		update.From,
	)
	if err != nil {
		r.logger.Error("Failed to update route status",
			zap.Int64("id", id),
			zap.String("from", update.From.String()),
			zap.String("to", update.To.String()),
			zap.Error(err))
		return apperror.Dependency("update route status", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperror.Dependency("update route status", err)
	}
	if affected == 0 {
		return apperror.ErrAlreadyTerminal
	}
	return nil
}

// Count returns the number of route requests matching filter
func (r *RouteRepository) Count(ctx context.Context, filter port.RouteFilter) (int, error) {
	where := routeWhere(filter)
	query := `SELECT COUNT(*) FROM route_requests` + where.String()

	var count int
	if err := r.getExecutor(ctx).QueryRowContext(ctx, query, where.args...).Scan(&count); err != nil {
		r.logger.Error("Failed to count route requests", zap.Error(err))
		return 0, apperror.Dependency("count route requests", err)
	}
	return count, nil
}

// Fetch returns route requests matching filter, newest first
func (r *RouteRepository) Fetch(ctx context.Context, filter port.RouteFilter, offset, limit int) ([]*entity.RouteRequest, error) {
	where := routeWhere(filter)
	query := `SELECT ` + routeColumns + ` FROM route_requests` + where.String() + ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args := append(where.args, limit, offset)

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to fetch route requests", zap.Error(err))
		return nil, apperror.Dependency("fetch route requests", err)
	}
	defer rows.Close()

	var routes []*entity.RouteRequest
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, apperror.Dependency("scan route request", err)
		}
		routes = append(routes, route)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Dependency("fetch route requests", err)
	}
	return routes, nil
}

func routeWhere(filter port.RouteFilter) *whereClause {
	where := &whereClause{}
	if filter.Status != "" {
		where.add("status = ?", filter.Status)
	}
	if filter.RequesterID != "" {
		where.add("requester_id = ?", filter.RequesterID)
	}
	return where
}

func scanRoute(row rowScanner) (*entity.RouteRequest, error) {
	var route entity.RouteRequest
	var batchID sql.NullInt64
	err := row.Scan(
		&route.ID,
		&route.Status,
		&route.Comment,
		&route.RequesterID,
		&route.ManagerID,
		&route.HomeAddress,
		&route.BusStop,
		&route.TakeOffTime,
		&batchID,
		&route.DecidedBy,
		&route.CreatedAt,
		&route.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if batchID.Valid {
		route.BatchID = &batchID.Int64
	}
	return &route, nil
}

// getExecutor returns appropriate executor based on context
func (r *RouteRepository) getExecutor(ctx context.Context) sqlite.QueryExecutor {
	return sqlite.Executor(ctx, r.db)
}

// Verify interface compliance
var _ port.RouteRepository = (*RouteRepository)(nil)
