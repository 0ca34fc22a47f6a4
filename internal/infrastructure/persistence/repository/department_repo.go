package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/garyjia/commute-approvals/internal/application/port"
	"github.com/garyjia/commute-approvals/internal/domain/apperror"
	"github.com/garyjia/commute-approvals/internal/domain/entity"
	"github.com/garyjia/commute-approvals/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// DepartmentRepository implements port.DepartmentRepository
type DepartmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDepartmentRepository creates a new department repository
func NewDepartmentRepository(db *sql.DB, logger *zap.Logger) port.DepartmentRepository {
	return &DepartmentRepository{
		db:     db,
		logger: logger,
	}
}

// GetByName looks a department up by exact name
func (r *DepartmentRepository) GetByName(ctx context.Context, name string) (*entity.Department, error) {
	var dept entity.Department
	err := r.getExecutor(ctx).QueryRowContext(ctx,
		`SELECT id, name, head_id FROM departments WHERE name = ?`, name,
	).Scan(&dept.ID, &dept.Name, &dept.HeadID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get department", zap.String("name", name), zap.Error(err))
		return nil, apperror.Dependency("get department", err)
	}
	return &dept, nil
}

// Upsert creates the department or replaces its head
func (r *DepartmentRepository) Upsert(ctx context.Context, dept *entity.Department) error {
	query := `
		INSERT INTO departments (name, head_id) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET head_id = excluded.head_id
	`

	if _, err := r.getExecutor(ctx).ExecContext(ctx, query, dept.Name, dept.HeadID); err != nil {
		r.logger.Error("Failed to upsert department", zap.String("name", dept.Name), zap.Error(err))
		return apperror.Dependency("upsert department", err)
	}

	stored, err := r.GetByName(ctx, dept.Name)
	if err != nil {
		return err
	}
	dept.ID = stored.ID
	return nil
}

// getExecutor returns appropriate executor based on context
func (r *DepartmentRepository) getExecutor(ctx context.Context) sqlite.QueryExecutor {
	return sqlite.Executor(ctx, r.db)
}

// Verify interface compliance
var _ port.DepartmentRepository = (*DepartmentRepository)(nil)
