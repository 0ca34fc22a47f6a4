package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/commute-approvals/internal/application/port"
	"github.com/garyjia/commute-approvals/internal/domain/apperror"
	"github.com/garyjia/commute-approvals/internal/domain/entity"
	"github.com/garyjia/commute-approvals/internal/domain/workflow"
	"github.com/garyjia/commute-approvals/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/commute-approvals/pkg/database"
	"github.com/garyjia/commute-approvals/pkg/utils"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{Path: database.InMemory}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).RunMigrations(database.EmbeddedMigrations()))
	return db.DB
}

func newTrip(departure time.Time, requester string) *entity.TripRequest {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &entity.TripRequest{
		Status:        workflow.StatePending,
		RequesterID:   requester,
		ApproverID:    "UHEAD",
		Department:    "Operations",
		Origin:        "Head Office",
		Destination:   "Airport",
		DepartureTime: departure,
		Passengers:    1,
		Reason:        "Client visit",
		TripType:      entity.TripTypeAirport,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestTripRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewTripRepository(openTestDB(t), zap.NewNop())

	departure := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)
	trip := newTrip(departure, "UREQ")
	require.NoError(t, repo.Create(ctx, trip))
	require.NotZero(t, trip.ID)

	got, err := repo.GetByID(ctx, trip.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, workflow.StatePending, got.Status)
	assert.Equal(t, "UREQ", got.RequesterID)
	assert.True(t, departure.Equal(got.DepartureTime))
	assert.Nil(t, got.Fulfillment)

	missing, err := repo.GetByID(ctx, trip.ID+100)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTripRepository_UpdateStatusIsConditional(t *testing.T) {
	ctx := context.Background()
	repo := NewTripRepository(openTestDB(t), zap.NewNop())

	trip := newTrip(time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC), "UREQ")
	require.NoError(t, repo.Create(ctx, trip))

	approve := port.StatusUpdate{From: workflow.StatePending, To: workflow.StateApproved, ActorID: "UHEAD"}
	require.NoError(t, repo.UpdateStatus(ctx, trip.ID, approve))

	err := repo.UpdateStatus(ctx, trip.ID, port.StatusUpdate{From: workflow.StatePending, To: workflow.StateDeclined, ActorID: "UHEAD"})
	assert.ErrorIs(t, err, apperror.ErrAlreadyTerminal)

	confirm := port.StatusUpdate{
		From:        workflow.StateApproved,
		To:          workflow.StateConfirmed,
		ActorID:     "UOPS",
		Fulfillment: &entity.Fulfillment{DriverName: "John Doe", DriverPhone: "08012345678", CabModel: "Camry", RegNumber: "LND 1"},
	}
	require.NoError(t, repo.UpdateStatus(ctx, trip.ID, confirm))

	got, err := repo.GetByID(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateConfirmed, got.Status)
	assert.Equal(t, "UHEAD", got.DecidedBy)
	assert.Equal(t, "UOPS", got.ConfirmedBy)
	require.NotNil(t, got.Fulfillment)
	assert.Equal(t, "LND 1", got.Fulfillment.RegNumber)
}

func TestTripRepository_FilterAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewTripRepository(openTestDB(t), zap.NewNop())

	for day := 1; day <= 5; day++ {
		requester := "UA"
		if day%2 == 0 {
			requester = "UB"
		}
		require.NoError(t, repo.Create(ctx, newTrip(time.Date(2026, 4, day, 9, 0, 0, 0, time.UTC), requester)))
	}

	total, err := repo.Count(ctx, port.TripFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	page, err := repo.Fetch(ctx, port.TripFilter{}, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 5, page[0].DepartureTime.Day())
	assert.Equal(t, 4, page[1].DepartureTime.Day())

	byRequester, err := repo.Count(ctx, port.TripFilter{RequesterID: "UB"})
	require.NoError(t, err)
	assert.Equal(t, 2, byRequester)

	start := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)
	ranged, err := repo.Fetch(ctx, port.TripFilter{Departure: utils.DateRange{After: &start, Before: &end}}, 0, 10)
	require.NoError(t, err)
	require.Len(t, ranged, 2, "the before day is inclusive")
	assert.Equal(t, 3, ranged[0].DepartureTime.Day())
	assert.Equal(t, 2, ranged[1].DepartureTime.Day())
}

func TestTripRepository_JoinsTransaction(t *testing.T) {
	sqlDB := openTestDB(t)
	repo := NewTripRepository(sqlDB, zap.NewNop())
	tx := sqlite.NewDB(sqlDB, zap.NewNop())
	ctx := context.Background()

	boom := errors.New("boom")
	err := tx.WithTransaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, repo.Create(txCtx, newTrip(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC), "UA")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	total, err := repo.Count(ctx, port.TripFilter{})
	require.NoError(t, err)
	assert.Zero(t, total, "rolled back insert must not be visible")
}

func TestRouteRepository_LifecycleWithBatch(t *testing.T) {
	ctx := context.Background()
	sqlDB := openTestDB(t)
	routes := NewRouteRepository(sqlDB, zap.NewNop())
	batches := NewBatchRepository(sqlDB, zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	route := &entity.RouteRequest{
		Status:      workflow.StatePending,
		RequesterID: "UR1",
		ManagerID:   "UMGR",
		HomeAddress: "12 Palm Avenue",
		BusStop:     "Main Gate",
		TakeOffTime: "07:45",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, routes.Create(ctx, route))

	batch := &entity.Batch{RouteRequestID: route.ID, RouteName: "Lekki", Label: "A", TakeOffTime: "07:45", Capacity: 4, CabRegNumber: "LND 1", Provider: "Uber", CreatedAt: now}
	require.NoError(t, batches.Create(ctx, batch))

	require.NoError(t, routes.UpdateStatus(ctx, route.ID, port.StatusUpdate{From: workflow.StatePending, To: workflow.StateApproved, ActorID: "UMGR", BatchID: &batch.ID}))
	require.NoError(t, routes.UpdateStatus(ctx, route.ID, port.StatusUpdate{From: workflow.StateApproved, To: workflow.StateConfirmed, ActorID: "UOPS"}))

	got, err := routes.GetByID(ctx, route.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateConfirmed, got.Status)
	require.NotNil(t, got.BatchID, "a later update keeps the batch")
	assert.Equal(t, batch.ID, *got.BatchID)

	err = routes.UpdateStatus(ctx, route.ID, port.StatusUpdate{From: workflow.StatePending, To: workflow.StateDeclined})
	assert.ErrorIs(t, err, apperror.ErrAlreadyTerminal)

	confirmed, err := routes.Fetch(ctx, port.RouteFilter{Status: workflow.StateConfirmed}, 0, 10)
	require.NoError(t, err)
	assert.Len(t, confirmed, 1)

	pending, err := routes.Count(ctx, port.RouteFilter{Status: workflow.StatePending})
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestBatchRepository_LabelsAndMembers(t *testing.T) {
	ctx := context.Background()
	repo := NewBatchRepository(openTestDB(t), zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	label, err := repo.LatestLabel(ctx, "Lekki")
	require.NoError(t, err)
	assert.Empty(t, label)

	var last *entity.Batch
	for _, l := range []string{"A", "Z", "AA", "B"} {
		last = &entity.Batch{RouteName: "Lekki", Label: l, TakeOffTime: "07:45", Capacity: 4, CabRegNumber: "LND 1", Provider: "Uber", CreatedAt: now}
		require.NoError(t, repo.Create(ctx, last))
	}

	label, err = repo.LatestLabel(ctx, "Lekki")
	require.NoError(t, err)
	assert.Equal(t, "AA", label, "longer labels sort after Z")

	dup := &entity.Batch{RouteName: "Lekki", Label: "A", TakeOffTime: "07:45", Capacity: 4, CabRegNumber: "LND 2", Provider: "Bolt", CreatedAt: now}
	assert.ErrorIs(t, repo.Create(ctx, dup), apperror.ErrDependency)

	require.NoError(t, repo.AddMember(ctx, last.ID, "UR1"))
	require.NoError(t, repo.AddMember(ctx, last.ID, "UR1"))
	require.NoError(t, repo.AddMember(ctx, last.ID, "UR2"))

	members, err := repo.(*BatchRepository).Members(ctx, last.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"UR1", "UR2"}, members)

	got, err := repo.GetByID(ctx, last.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", got.Label)
}

func TestHistoryRepository_ListByRequest(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository(openTestDB(t), zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	changes := []*entity.StatusChange{
		{RequestKind: workflow.KindTrip, RequestID: 1, ActorID: "UREQ", ToStatus: workflow.StatePending, CreatedAt: now},
		{RequestKind: workflow.KindTrip, RequestID: 1, ActorID: "UHEAD", FromStatus: workflow.StatePending, ToStatus: workflow.StateApproved, Trigger: workflow.TriggerApprove, CreatedAt: now.Add(time.Minute)},
		{RequestKind: workflow.KindRoute, RequestID: 1, ActorID: "UR1", ToStatus: workflow.StatePending, CreatedAt: now},
	}
	for _, c := range changes {
		require.NoError(t, repo.Create(ctx, c))
	}

	trail, err := repo.ListByRequest(ctx, workflow.KindTrip, 1)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, workflow.StatePending, trail[0].ToStatus)
	assert.Equal(t, workflow.TriggerApprove, trail[1].Trigger)
	assert.Equal(t, "UHEAD", trail[1].ActorID)
}

func TestDepartmentRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	repo := NewDepartmentRepository(openTestDB(t), zap.NewNop())

	missing, err := repo.GetByName(ctx, "Operations")
	require.NoError(t, err)
	assert.Nil(t, missing)

	dept := &entity.Department{Name: "Operations", HeadID: "UHEAD"}
	require.NoError(t, repo.Upsert(ctx, dept))
	require.NotZero(t, dept.ID)

	replaced := &entity.Department{Name: "Operations", HeadID: "UNEW"}
	require.NoError(t, repo.Upsert(ctx, replaced))
	assert.Equal(t, dept.ID, replaced.ID)

	got, err := repo.GetByName(ctx, "Operations")
	require.NoError(t, err)
	assert.Equal(t, "UNEW", got.HeadID)
}

func TestTripRepository_DriverErrors(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	repo := NewTripRepository(sqlDB, zap.NewNop())
	ctx := context.Background()

	mock.ExpectExec("UPDATE trip_requests").WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.UpdateStatus(ctx, 7, port.StatusUpdate{From: workflow.StatePending, To: workflow.StateApproved})
	assert.ErrorIs(t, err, apperror.ErrAlreadyTerminal)

	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("disk I/O error"))
	_, err = repo.Count(ctx, port.TripFilter{Status: workflow.StatePending})
	assert.ErrorIs(t, err, apperror.ErrDependency)
	assert.ErrorContains(t, err, "disk I/O error")

	mock.ExpectQuery("SELECT id").WillReturnError(errors.New("database is locked"))
	_, err = repo.GetByID(ctx, 7)
	assert.ErrorIs(t, err, apperror.ErrDependency)

	assert.NoError(t, mock.ExpectationsWereMet())
}
