package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/commute-approvals/internal/application/port"
	"github.com/garyjia/commute-approvals/internal/domain/apperror"
	"github.com/garyjia/commute-approvals/internal/domain/entity"
	"github.com/garyjia/commute-approvals/internal/domain/workflow"
	"github.com/garyjia/commute-approvals/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const tripColumns = `id, status, comment, requester_id, rider_id, approver_id, department,
	origin, destination, departure_time, passengers, reason, trip_type,
	driver_name, driver_phone, cab_model, cab_reg_number,
	decided_by, confirmed_by, created_at, updated_at`

// TripRepository implements port.TripRepository
type TripRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTripRepository creates a new trip repository
func NewTripRepository(db *sql.DB, logger *zap.Logger) port.TripRepository {
	return &TripRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a trip request and sets its ID
func (r *TripRepository) Create(ctx context.Context, trip *entity.TripRequest) error {
	query := `
		INSERT INTO trip_requests (
			status, comment, requester_id, rider_id, approver_id, department,
			origin, destination, departure_time, passengers, reason, trip_type,
			decided_by, confirmed_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		trip.Status,
		trip.Comment,
		trip.RequesterID,
		trip.RiderID,
		trip.ApproverID,
		trip.Department,
		trip.Origin,
		trip.Destination,
		trip.DepartureTime.UTC(),
		trip.Passengers,
		trip.Reason,
		trip.TripType,
		trip.DecidedBy,
		trip.ConfirmedBy,
		trip.CreatedAt.UTC(),
		trip.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create trip request", zap.Error(err))
		return apperror.Dependency("create trip request", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return apperror.Dependency("create trip request", fmt.Errorf("failed to get last insert id: %w", err))
	}

	trip.ID = id
	return nil
}

// GetByID retrieves a trip request, or nil when absent
func (r *TripRepository) GetByID(ctx context.Context, id int64) (*entity.TripRequest, error) {
	query := `SELECT ` + tripColumns + ` FROM trip_requests WHERE id = ?`

	trip, err := scanTrip(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get trip request by ID", zap.Int64("id", id), zap.Error(err))
		return nil, apperror.Dependency("get trip request", err)
	}
	return trip, nil
}

// UpdateStatus applies update only while the trip is still at update.From
func (r *TripRepository) UpdateStatus(ctx context.Context, id int64, update port.StatusUpdate) error {
	sets := []string{"status = ?", "comment = ?", "updated_at = ?"}
	args := []interface{}{update.To, update.Comment, time.Now().UTC()}

	switch update.To {
	case workflow.StateApproved, workflow.StateDeclined:
		sets = append(sets, "decided_by = ?")
		args = append(args, update.ActorID)
	case workflow.StateConfirmed:
		sets = append(sets, "confirmed_by = ?")
		args = append(args, update.ActorID)
	}
	if f := update.Fulfillment; f != nil {
		sets = append(sets, "driver_name = ?", "driver_phone = ?", "cab_model = ?", "cab_reg_number = ?")
		args = append(args, f.DriverName, f.DriverPhone, f.CabModel, f.RegNumber)
	}

	query := `UPDATE trip_requests SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND status = ?`
	args = append(args, id, update.From)

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update trip status",
			zap.Int64("id", id),
			zap.String("from", update.From.String()),
			zap.String("to", update.To.String()),
			zap.Error(err))
		return apperror.Dependency("update trip status", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperror.Dependency("update trip status", err)
	}
	if affected == 0 {
		return apperror.ErrAlreadyTerminal
	}
	return nil
}

// Count returns the number of trips matching filter
func (r *TripRepository) Count(ctx context.Context, filter port.TripFilter) (int, error) {
	where := tripWhere(filter)
	query := `SELECT COUNT(*) FROM trip_requests` + where.String()

	var count int
	if err := r.getExecutor(ctx).QueryRowContext(ctx, query, where.args...).Scan(&count); err != nil {
		r.logger.Error("Failed to count trip requests", zap.Error(err))
		return 0, apperror.Dependency("count trip requests", err)
	}
	return count, nil
}

// Fetch returns trips matching filter, latest departure first
func (r *TripRepository) Fetch(ctx context.Context, filter port.TripFilter, offset, limit int) ([]*entity.TripRequest, error) {
	where := tripWhere(filter)
	query := `SELECT ` + tripColumns + ` FROM trip_requests` + where.String() +
		` ORDER BY departure_time DESC, id DESC LIMIT ? OFFSET ?`
	args := append(where.args, limit, offset)

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to fetch trip requests", zap.Error(err))
		return nil, apperror.Dependency("fetch trip requests", err)
	}
	defer rows.Close()

	var trips []*entity.TripRequest
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, apperror.Dependency("scan trip request", err)
		}
		trips = append(trips, trip)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Dependency("fetch trip requests", err)
	}
	return trips, nil
}

func tripWhere(filter port.TripFilter) *whereClause {
	where := &whereClause{}
	if filter.Status != "" {
		where.add("status = ?", filter.Status)
	}
	if filter.Department != "" {
		where.add("department = ?", filter.Department)
	}
	if filter.RequesterID != "" {
		where.add("requester_id = ?", filter.RequesterID)
	}
	if after := filter.Departure.After; after != nil {
		where.add("departure_time >= ?", after.UTC())
	}
	// before is a whole day: everything up to its following midnight
	if before := filter.Departure.Before; before != nil {
		where.add("departure_time < ?", before.AddDate(0, 0, 1).UTC())
	}
	return where
}

func scanTrip(row rowScanner) (*entity.TripRequest, error) {
	var trip entity.TripRequest
	var driver, phone, cab, regNumber sql.NullString
	err := row.Scan(
		&trip.ID,
		&trip.Status,
		&trip.Comment,
		&trip.RequesterID,
		&trip.RiderID,
		&trip.ApproverID,
		&trip.Department,
		&trip.Origin,
		&trip.Destination,
		&trip.DepartureTime,
		&trip.Passengers,
		&trip.Reason,
		&trip.TripType,
		&driver,
		&phone,
		&cab,
		&regNumber,
		&trip.DecidedBy,
		&trip.ConfirmedBy,
		&trip.CreatedAt,
		&trip.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if driver.Valid || regNumber.Valid {
		trip.Fulfillment = &entity.Fulfillment{
			DriverName:  driver.String,
			DriverPhone: phone.String,
			CabModel:    cab.String,
			RegNumber:   regNumber.String,
		}
	}
	return &trip, nil
}

// getExecutor returns appropriate executor based on context
func (r *TripRepository) getExecutor(ctx context.Context) sqlite.QueryExecutor {
	return sqlite.Executor(ctx, r.db)
}

// Verify interface compliance
var _ port.TripRepository = (*TripRepository)(nil)
