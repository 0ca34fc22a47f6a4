package service

import (
	"context"
	"time"

	"github.com/garyjia/commute-approvals/internal/application/pagination"
	"github.com/garyjia/commute-approvals/internal/application/port"
	"github.com/garyjia/commute-approvals/internal/application/session"
	appwf "github.com/garyjia/commute-approvals/internal/application/workflow"
	"github.com/garyjia/commute-approvals/internal/domain/entity"
	domainwf "github.com/garyjia/commute-approvals/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MetricsRecorder receives workflow counters
type MetricsRecorder interface {
	TransitionAttempted(kind, trigger, result string)
	RequestCreated(kind string)
}

// EffectPublisher hands committed side effects to their executors
type EffectPublisher interface {
	DispatchEffects(ctx context.Context, kind domainwf.Kind, requestID int64, actorID string, effects []domainwf.SideEffect) string
}

// Transition results reported to MetricsRecorder
const (
	ResultApplied         = "applied"
	ResultAlreadyTerminal = "already_terminal"
	ResultRejected        = "rejected"
	ResultError           = "error"
)

// ApprovalCoordinator bridges inbound interactions to the session store, the state machine
// and persistence. Side effects are returned and, once committed, handed to the EffectPublisher.
type ApprovalCoordinator interface {
	// BeginMultiStepRequest merges fields into the session under key and returns the merged session
	BeginMultiStepRequest(ctx context.Context, key session.Key, fields session.Values) (session.Values, error)

	// RestartMultiStepRequest discards the session under key and starts it over from fields
	RestartMultiStepRequest(ctx context.Context, key session.Key, fields session.Values) (session.Values, error)

	// FinalizeTripRequest validates the trip session, creates the trip and clears the session
	FinalizeTripRequest(ctx context.Context, key session.Key, remaining session.Values) (*TripCreation, error)

	// FinalizeRouteRequest validates the route session, creates the route request and clears the session
	FinalizeRouteRequest(ctx context.Context, key session.Key, remaining session.Values) (*RouteCreation, error)

	// ProcessApprovalAction applies an actor's decision to a request
	ProcessApprovalAction(ctx context.Context, kind domainwf.Kind, requestID int64, action domainwf.Trigger, actor string, payload ActionPayload) (*ActionResult, error)

	// CompleteCabAssignment stores the driver and cab of an approved trip and confirms it
	CompleteCabAssignment(ctx context.Context, tripID int64, actor string, submission CabAssignment) (*ActionResult, error)

	// HandleCompletionCheck re-evaluates a confirmed trip once its completion check fires
	HandleCompletionCheck(ctx context.Context, tripID int64) (*ActionResult, error)

	GetTrip(ctx context.Context, id int64) (*entity.TripRequest, error)
	GetRoute(ctx context.Context, id int64) (*entity.RouteRequest, error)
	ListTrips(ctx context.Context, req pagination.PageRequest, filter port.TripFilter) (*pagination.PageResult[*entity.TripRequest], error)
	ListRoutes(ctx context.Context, req pagination.PageRequest, filter port.RouteFilter) (*pagination.PageResult[*entity.RouteRequest], error)
}

// TripCreation is the result of finalizing a trip session
type TripCreation struct {
	Trip        *entity.TripRequest
	SideEffects []domainwf.SideEffect
}

// RouteCreation is the result of finalizing a route session
type RouteCreation struct {
	Route       *entity.RouteRequest
	SideEffects []domainwf.SideEffect
}

// ActionPayload carries the data submitted with an approval action
type ActionPayload struct {
	// Comment is the approval note or decline reason
	Comment string

	// Route is required when operations approve a route request
	Route *RouteApproval

	// Assignment is required when operations confirm a trip
	Assignment *CabAssignment
}

// RouteApproval is the free-text route and batch details submitted by operations
type RouteApproval struct {
	RouteName    string `json:"routeName"`
	TakeOffTime  string `json:"takeOffTime"`
	Capacity     string `json:"capacity"`
	CabRegNumber string `json:"cabRegNumber"`
	Provider     string `json:"provider"`
}

// CabAssignment is the free-text driver and cab submission for a trip
type CabAssignment struct {
	DriverName  string `json:"driverName"`
	DriverPhone string `json:"driverPhoneNo"`
	CabModel    string `json:"cab"`
	RegNumber   string `json:"regNumber"`
	Comment     string `json:"confirmationComment"`
}

// ActionResult reports what an action did and what must happen next
type ActionResult struct {
	Kind        domainwf.Kind
	RequestID   int64
	ActorID     string
	Applied     bool
	Status      domainwf.State
	Reason      appwf.Reason
	SideEffects []domainwf.SideEffect
	Trip        *entity.TripRequest
	Route       *entity.RouteRequest
	Batch       *entity.Batch
}

// Dependencies groups the collaborators of the coordinator
type Dependencies struct {
	Sessions    *session.Store
	Machine     appwf.RequestStateMachine
	Trips       port.TripRepository
	Routes      port.RouteRepository
	Batches     port.BatchRepository
	History     port.HistoryRepository
	Departments port.DepartmentRepository
	TxManager   port.TransactionManager
	Logger      Logger
}

type coordinatorImpl struct {
	sessions    *session.Store
	machine     appwf.RequestStateMachine
	trips       port.TripRepository
	routes      port.RouteRepository
	batches     port.BatchRepository
	history     port.HistoryRepository
	departments port.DepartmentRepository
	txManager   port.TransactionManager
	logger      Logger
	metrics     MetricsRecorder
	publisher   EffectPublisher
	now         func() time.Time
	location    *time.Location
}

// CoordinatorOption configures the coordinator
type CoordinatorOption func(*coordinatorImpl)

// WithMetrics sets the recorder for workflow counters
func WithMetrics(recorder MetricsRecorder) CoordinatorOption {
	return func(c *coordinatorImpl) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

// WithPublisher sets the executor of committed side effects
func WithPublisher(publisher EffectPublisher) CoordinatorOption {
	return func(c *coordinatorImpl) {
		if publisher != nil {
			c.publisher = publisher
		}
	}
}

// WithClock overrides the clock used for date validation and completion checks
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *coordinatorImpl) {
		c.now = now
	}
}

// WithLocation sets the time zone departure times are entered in
func WithLocation(loc *time.Location) CoordinatorOption {
	return func(c *coordinatorImpl) {
		if loc != nil {
			c.location = loc
		}
	}
}

// NewApprovalCoordinator creates a new ApprovalCoordinator
func NewApprovalCoordinator(deps Dependencies, opts ...CoordinatorOption) ApprovalCoordinator {
	c := &coordinatorImpl{
		sessions:    deps.Sessions,
		machine:     deps.Machine,
		trips:       deps.Trips,
		routes:      deps.Routes,
		batches:     deps.Batches,
		history:     deps.History,
		departments: deps.Departments,
		txManager:   deps.TxManager,
		logger:      deps.Logger,
		metrics:     noopMetrics{},
		publisher:   noopPublisher{},
		now:         time.Now,
		location:    time.UTC,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type noopMetrics struct{}

func (noopMetrics) TransitionAttempted(string, string, string) {}
func (noopMetrics) RequestCreated(string)                      {}

type noopPublisher struct{}

func (noopPublisher) DispatchEffects(context.Context, domainwf.Kind, int64, string, []domainwf.SideEffect) string {
	return ""
}

func (c *coordinatorImpl) publish(ctx context.Context, kind domainwf.Kind, requestID int64, actorID string, effects []domainwf.SideEffect) {
	if len(effects) == 0 {
		return
	}
	correlationID := c.publisher.DispatchEffects(ctx, kind, requestID, actorID, effects)
	c.logger.Info("Side effects published", "kind", kind, "id", requestID, "count", len(effects), "correlation_id", correlationID)
}
