package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/commute-approvals/internal/application/port"
	"github.com/garyjia/commute-approvals/internal/application/session"
	appwf "github.com/garyjia/commute-approvals/internal/application/workflow"
	"github.com/garyjia/commute-approvals/internal/domain/apperror"
	"github.com/garyjia/commute-approvals/internal/domain/entity"
	domainwf "github.com/garyjia/commute-approvals/internal/domain/workflow"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// fakeTripRepo is a map-backed TripRepository honouring the conditional update
type fakeTripRepo struct {
	mu     sync.Mutex
	trips  map[int64]*entity.TripRequest
	nextID int64

	getErr    error
	updateErr error

	// beforeUpdate runs inside UpdateStatus before the status check, under the lock
	beforeUpdate func(trip *entity.TripRequest)
}

func newFakeTripRepo() *fakeTripRepo {
	return &fakeTripRepo{trips: map[int64]*entity.TripRequest{}}
}

func (r *fakeTripRepo) seed(trip *entity.TripRequest) *entity.TripRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	trip.ID = r.nextID
	cp := *trip
	r.trips[trip.ID] = &cp
	return trip
}

func (r *fakeTripRepo) status(id int64) domainwf.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trips[id].Status
}

func (r *fakeTripRepo) Create(_ context.Context, trip *entity.TripRequest) error {
	r.seed(trip)
	return nil
}

func (r *fakeTripRepo) GetByID(_ context.Context, id int64) (*entity.TripRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	trip, ok := r.trips[id]
	if !ok {
		return nil, nil
	}
	cp := *trip
	return &cp, nil
}

func (r *fakeTripRepo) UpdateStatus(_ context.Context, id int64, update port.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	trip, ok := r.trips[id]
	if !ok {
		return apperror.ErrAlreadyTerminal
	}
	if r.beforeUpdate != nil {
		r.beforeUpdate(trip)
	}
	if trip.Status != update.From {
		return apperror.ErrAlreadyTerminal
	}
	trip.Status = update.To
	trip.Comment = update.Comment
	if update.Fulfillment != nil {
		trip.Fulfillment = update.Fulfillment
	}
	return nil
}

func (r *fakeTripRepo) matching(filter port.TripFilter) []*entity.TripRequest {
	var out []*entity.TripRequest
	for _, trip := range r.trips {
		if filter.Status != "" && trip.Status != filter.Status {
			continue
		}
		if filter.Department != "" && trip.Department != filter.Department {
			continue
		}
		if filter.RequesterID != "" && trip.RequesterID != filter.RequesterID {
			continue
		}
		cp := *trip
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakeTripRepo) Count(_ context.Context, filter port.TripFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matching(filter)), nil
}

func (r *fakeTripRepo) Fetch(_ context.Context, filter port.TripFilter, offset, limit int) ([]*entity.TripRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.matching(filter)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

type fakeRouteRepo struct {
	mu     sync.Mutex
	routes map[int64]*entity.RouteRequest
	nextID int64
}

func newFakeRouteRepo() *fakeRouteRepo {
	return &fakeRouteRepo{routes: map[int64]*entity.RouteRequest{}}
}

func (r *fakeRouteRepo) seed(route *entity.RouteRequest) *entity.RouteRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	route.ID = r.nextID
	cp := *route
	r.routes[route.ID] = &cp
	return route
}

func (r *fakeRouteRepo) status(id int64) domainwf.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.routes[id].Status
}

func (r *fakeRouteRepo) Create(_ context.Context, route *entity.RouteRequest) error {
	r.seed(route)
	return nil
}

func (r *fakeRouteRepo) GetByID(_ context.Context, id int64) (*entity.RouteRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	route, ok := r.routes[id]
	if !ok {
		return nil, nil
	}
	cp := *route
	return &cp, nil
}

func (r *fakeRouteRepo) UpdateStatus(_ context.Context, id int64, update port.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	route, ok := r.routes[id]
	if !ok || route.Status != update.From {
		return apperror.ErrAlreadyTerminal
	}
	route.Status = update.To
	route.Comment = update.Comment
	route.BatchID = update.BatchID
	return nil
}

func (r *fakeRouteRepo) Count(ctx context.Context, filter port.RouteFilter) (int, error) {
	all, err := r.Fetch(ctx, filter, 0, 1<<30)
	return len(all), err
}

func (r *fakeRouteRepo) Fetch(_ context.Context, filter port.RouteFilter, offset, limit int) ([]*entity.RouteRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*entity.RouteRequest
	for _, route := range r.routes {
		if filter.Status != "" && route.Status != filter.Status {
			continue
		}
		if filter.RequesterID != "" && route.RequesterID != filter.RequesterID {
			continue
		}
		cp := *route
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

type fakeBatchRepo struct {
	mu        sync.Mutex
	batches   map[int64]*entity.Batch
	members   map[int64][]string
	nextID    int64
	createErr error
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{batches: map[int64]*entity.Batch{}, members: map[int64][]string{}}
}

func (r *fakeBatchRepo) Create(_ context.Context, batch *entity.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	batch.ID = r.nextID
	cp := *batch
	r.batches[batch.ID] = &cp
	return nil
}

func (r *fakeBatchRepo) GetByID(_ context.Context, id int64) (*entity.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches[id], nil
}

func (r *fakeBatchRepo) LatestLabel(_ context.Context, routeName string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	latest := ""
	for _, b := range r.batches {
		if b.RouteName != routeName {
			continue
		}
		if len(b.Label) > len(latest) || (len(b.Label) == len(latest) && b.Label > latest) {
			latest = b.Label
		}
	}
	return latest, nil
}

func (r *fakeBatchRepo) AddMember(_ context.Context, batchID int64, actorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members[batchID] {
		if m == actorID {
			return nil
		}
	}
	r.members[batchID] = append(r.members[batchID], actorID)
	return nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	changes []*entity.StatusChange
}

func (r *fakeHistoryRepo) Create(_ context.Context, change *entity.StatusChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
	return nil
}

func (r *fakeHistoryRepo) ListByRequest(_ context.Context, kind domainwf.Kind, id int64) ([]*entity.StatusChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.StatusChange
	for _, c := range r.changes {
		if c.RequestKind == kind && c.RequestID == id {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeDepartmentRepo struct {
	departments map[string]*entity.Department
	getErr      error
}

func (r *fakeDepartmentRepo) GetByName(_ context.Context, name string) (*entity.Department, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.departments[name], nil
}

func (r *fakeDepartmentRepo) Upsert(_ context.Context, d *entity.Department) error {
	r.departments[d.Name] = d
	return nil
}

// passThroughTx runs fn without isolation
type passThroughTx struct {
	calls int
}

func (m *passThroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

type publishedEffects struct {
	kind    domainwf.Kind
	id      int64
	actor   string
	effects []domainwf.SideEffect
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []publishedEffects
}

func (p *recordingPublisher) DispatchEffects(_ context.Context, kind domainwf.Kind, id int64, actor string, effects []domainwf.SideEffect) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, publishedEffects{kind: kind, id: id, actor: actor, effects: effects})
	return "corr-1"
}

type recordingMetrics struct {
	mu          sync.Mutex
	transitions []string
	created     []string
}

func (m *recordingMetrics) TransitionAttempted(kind, trigger, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, kind+"/"+trigger+"/"+result)
}

func (m *recordingMetrics) RequestCreated(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, kind)
}

type coordinatorFixture struct {
	coordinator ApprovalCoordinator
	sessions    *session.Store
	trips       *fakeTripRepo
	routes      *fakeRouteRepo
	batches     *fakeBatchRepo
	history     *fakeHistoryRepo
	departments *fakeDepartmentRepo
	tx          *passThroughTx
	publisher   *recordingPublisher
	metrics     *recordingMetrics
	now         time.Time
}

func newCoordinatorFixture() *coordinatorFixture {
	f := &coordinatorFixture{
		sessions: session.NewStore(session.NewMemoryBackend(time.Hour)),
		trips:    newFakeTripRepo(),
		routes:   newFakeRouteRepo(),
		batches:  newFakeBatchRepo(),
		history:  &fakeHistoryRepo{},
		departments: &fakeDepartmentRepo{departments: map[string]*entity.Department{
			"Operations": {ID: 1, Name: "Operations", HeadID: "UHEAD"},
			"Orphans":    {ID: 2, Name: "Orphans"},
		}},
		tx:        &passThroughTx{},
		publisher: &recordingPublisher{},
		metrics:   &recordingMetrics{},
		now:       testNow,
	}

	clock := func() time.Time { return f.now }
	f.coordinator = NewApprovalCoordinator(Dependencies{
		Sessions:    f.sessions,
		Machine:     appwf.NewRequestStateMachine(appwf.WithClock(clock)),
		Trips:       f.trips,
		Routes:      f.routes,
		Batches:     f.batches,
		History:     f.history,
		Departments: f.departments,
		TxManager:   f.tx,
		Logger:      nopLogger{},
	}, WithClock(clock), WithMetrics(f.metrics), WithPublisher(f.publisher))
	return f
}

func (f *coordinatorFixture) pendingTrip() *entity.TripRequest {
	return f.trips.seed(&entity.TripRequest{
		Status:        domainwf.StatePending,
		RequesterID:   "UREQ",
		RiderID:       "URIDER",
		ApproverID:    "UHEAD",
		Department:    "Operations",
		Origin:        "Head Office",
		Destination:   "Airport",
		DepartureTime: testNow.Add(48 * time.Hour),
		Passengers:    1,
		Reason:        "client visit",
		TripType:      entity.TripTypeAirport,
	})
}

func (f *coordinatorFixture) tripAt(status domainwf.State, departure time.Time) *entity.TripRequest {
	trip := f.pendingTrip()
	f.trips.mu.Lock()
	f.trips.trips[trip.ID].Status = status
	f.trips.trips[trip.ID].DepartureTime = departure
	f.trips.mu.Unlock()
	trip.Status = status
	trip.DepartureTime = departure
	return trip
}

func (f *coordinatorFixture) pendingRoute(requester string) *entity.RouteRequest {
	return f.routes.seed(&entity.RouteRequest{
		Status:      domainwf.StatePending,
		RequesterID: requester,
		ManagerID:   "UMGR",
		HomeAddress: "12 Palm Avenue",
		BusStop:     "Main Gate",
		TakeOffTime: "17:30",
	})
}

func validRouteApproval(name string) *RouteApproval {
	return &RouteApproval{
		RouteName:    name,
		TakeOffTime:  "17:30",
		Capacity:     "4",
		CabRegNumber: "lnd 123 xy",
		Provider:     "Uber",
	}
}
