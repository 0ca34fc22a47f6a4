package port

import (
	"context"

	"github.com/garyjia/commute-approvals/internal/domain/entity"
	"github.com/garyjia/commute-approvals/internal/domain/workflow"
	"github.com/garyjia/commute-approvals/pkg/utils"
)

// TripFilter narrows trip listings. Zero fields match everything.
type TripFilter struct {
	Status      workflow.State
	Department  string
	RequesterID string
	Departure   utils.DateRange
}

// RouteFilter narrows route request listings. Zero fields match everything.
type RouteFilter struct {
	Status      workflow.State
	RequesterID string
}

// StatusUpdate is a conditional status write: it only applies while the record is still at From
type StatusUpdate struct {
	From        workflow.State
	To          workflow.State
	Comment     string
	ActorID     string
	Fulfillment *entity.Fulfillment
	BatchID     *int64
}

// TripRepository defines persistence operations for TripRequest
type TripRepository interface {
	Create(ctx context.Context, trip *entity.TripRequest) error

	// GetByID returns nil, nil when no trip has id
	GetByID(ctx context.Context, id int64) (*entity.TripRequest, error)

	// UpdateStatus returns apperror.ErrAlreadyTerminal when the trip is no longer at update.From
	UpdateStatus(ctx context.Context, id int64, update StatusUpdate) error

	Count(ctx context.Context, filter TripFilter) (int, error)
	Fetch(ctx context.Context, filter TripFilter, offset, limit int) ([]*entity.TripRequest, error)
}

// RouteRepository defines persistence operations for RouteRequest
type RouteRepository interface {
	Create(ctx context.Context, route *entity.RouteRequest) error

	// GetByID returns nil, nil when no route request has id
	GetByID(ctx context.Context, id int64) (*entity.RouteRequest, error)

	// UpdateStatus returns apperror.ErrAlreadyTerminal when the request is no longer at update.From
	UpdateStatus(ctx context.Context, id int64, update StatusUpdate) error

	Count(ctx context.Context, filter RouteFilter) (int, error)
	Fetch(ctx context.Context, filter RouteFilter, offset, limit int) ([]*entity.RouteRequest, error)
}

// BatchRepository defines persistence operations for route batches
type BatchRepository interface {
	Create(ctx context.Context, batch *entity.Batch) error
	GetByID(ctx context.Context, id int64) (*entity.Batch, error)

	// LatestLabel returns the highest label used on routeName, or "" when the route has no batch
	LatestLabel(ctx context.Context, routeName string) (string, error)

	// AddMember records actorID as a rider of the batch; adding twice is a no-op
	AddMember(ctx context.Context, batchID int64, actorID string) error
}

// HistoryRepository defines persistence operations for StatusChange
type HistoryRepository interface {
	Create(ctx context.Context, change *entity.StatusChange) error
	ListByRequest(ctx context.Context, kind workflow.Kind, requestID int64) ([]*entity.StatusChange, error)
}

// DepartmentRepository resolves the manager of a department
type DepartmentRepository interface {
	// GetByName returns nil, nil when the department is unknown
	GetByName(ctx context.Context, name string) (*entity.Department, error)
	Upsert(ctx context.Context, department *entity.Department) error
}

// TransactionManager defines transaction operations
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
