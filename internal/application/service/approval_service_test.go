package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/commute-approvals/internal/application/pagination"
	"github.com/garyjia/commute-approvals/internal/application/port"
	appwf "github.com/garyjia/commute-approvals/internal/application/workflow"
	"github.com/garyjia/commute-approvals/internal/domain/apperror"
	"github.com/garyjia/commute-approvals/internal/domain/entity"
	domainwf "github.com/garyjia/commute-approvals/internal/domain/workflow"
)

func TestProcessApprovalAction_ApproveTrip(t *testing.T) {
	f := newCoordinatorFixture()
	trip := f.pendingTrip()

	result, err := f.coordinator.ProcessApprovalAction(context.Background(), domainwf.KindTrip, trip.ID, domainwf.TriggerApprove, "UHEAD", ActionPayload{Comment: "  enjoy  "})
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.Equal(t, domainwf.StateApproved, result.Status)
	assert.Equal(t, []domainwf.SideEffect{domainwf.NotifyRequester(), domainwf.NotifyApprovalChannel()}, result.SideEffects)
	assert.Equal(t, "enjoy", result.Trip.Comment)
	assert.Equal(t, "UHEAD", result.Trip.DecidedBy)
	assert.Equal(t, domainwf.StateApproved, f.trips.status(trip.ID))

	changes, _ := f.history.ListByRequest(context.Background(), domainwf.KindTrip, trip.ID)
	require.Len(t, changes, 1)
	assert.Equal(t, domainwf.StatePending, changes[0].FromStatus)
	assert.Equal(t, domainwf.StateApproved, changes[0].ToStatus)
	assert.Equal(t, domainwf.TriggerApprove, changes[0].Trigger)

	require.Len(t, f.publisher.published, 1)
	assert.Equal(t, "UHEAD", f.publisher.published[0].actor)
	assert.Equal(t, []string{"TRIP/APPROVE/applied"}, f.metrics.transitions)
}

func TestProcessApprovalAction_DuplicateApproveIsIdempotent(t *testing.T) {
	f := newCoordinatorFixture()
	trip := f.pendingTrip()
	ctx := context.Background()

	_, err := f.coordinator.ProcessApprovalAction(ctx, domainwf.KindTrip, trip.ID, domainwf.TriggerApprove, "UHEAD", ActionPayload{})
	require.NoError(t, err)

	second, err := f.coordinator.ProcessApprovalAction(ctx, domainwf.KindTrip, trip.ID, domainwf.TriggerApprove, "UOTHER", ActionPayload{})
	require.NoError(t, err)

	assert.False(t, second.Applied)
	assert.Equal(t, appwf.ReasonAlreadyTerminal, second.Reason)
	assert.Equal(t, domainwf.StateApproved, second.Status)
	assert.Equal(t, []domainwf.SideEffect{domainwf.InformActor(domainwf.StateApproved)}, second.SideEffects)

	changes, _ := f.history.ListByRequest(ctx, domainwf.KindTrip, trip.ID)
	assert.Len(t, changes, 1, "a settled action must not write history")
	assert.Equal(t, "UOTHER", f.publisher.published[1].actor)
	assert.Equal(t, "TRIP/APPROVE/already_terminal", f.metrics.transitions[1])
}

func TestProcessApprovalAction_DeclineAfterApproveInformsActor(t *testing.T) {
	f := newCoordinatorFixture()
	trip := f.tripAt(domainwf.StateApproved, testNow.Add(time.Hour))

	result, err := f.coordinator.ProcessApprovalAction(context.Background(), domainwf.KindTrip, trip.ID, domainwf.TriggerDecline, "UHEAD", ActionPayload{Comment: "too late"})
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Equal(t, domainwf.StateApproved, result.Status)
}

func TestProcessApprovalAction_TerminalRequestIsImmutable(t *testing.T) {
	f := newCoordinatorFixture()
	trip := f.tripAt(domainwf.StateDeclined, testNow.Add(time.Hour))

	for _, action := range []domainwf.Trigger{domainwf.TriggerApprove, domainwf.TriggerCancel, domainwf.TriggerComplete} {
		result, err := f.coordinator.ProcessApprovalAction(context.Background(), domainwf.KindTrip, trip.ID, action, "UHEAD", ActionPayload{Comment: "x"})
		require.NoError(t, err, action)
		assert.False(t, result.Applied, action)
		assert.Equal(t, domainwf.StateDeclined, f.trips.status(trip.ID))
	}
}

func TestProcessApprovalAction_DeclineRequiresReason(t *testing.T) {
	f := newCoordinatorFixture()
	trip := f.pendingTrip()

	_, err := f.coordinator.ProcessApprovalAction(context.Background(), domainwf.KindTrip, trip.ID, domainwf.TriggerDecline, "UHEAD", ActionPayload{Comment: " \t "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
	assert.Equal(t, []apperror.FieldProblem{{Field: "rationale", Message: "This field cannot be empty"}}, apperror.Problems(err))
	assert.Equal(t, domainwf.StatePending, f.trips.status(trip.ID))
	assert.Empty(t, f.history.changes)
	assert.Empty(t, f.publisher.published)
	assert.Equal(t, []string{"TRIP/DECLINE/rejected"}, f.metrics.transitions)
}

func TestProcessApprovalAction_LostRaceReportsWinner(t *testing.T) {
	f := newCoordinatorFixture()
	trip := f.pendingTrip()
	f.trips.beforeUpdate = func(stored *entity.TripRequest) {
		stored.Status = domainwf.StateDeclined
	}

	result, err := f.coordinator.ProcessApprovalAction(context.Background(), domainwf.KindTrip, trip.ID, domainwf.TriggerApprove, "UHEAD", ActionPayload{})
	require.NoError(t, err)

	assert.False(t, result.Applied)
	assert.Equal(t, appwf.ReasonAlreadyTerminal, result.Reason)
	assert.Equal(t, domainwf.StateDeclined, result.Status)
	assert.Equal(t, []domainwf.SideEffect{domainwf.InformActor(domainwf.StateDeclined)}, result.SideEffects)
}

func TestProcessApprovalAction_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown trip", func(t *testing.T) {
		f := newCoordinatorFixture()
		_, err := f.coordinator.ProcessApprovalAction(ctx, domainwf.KindTrip, 404, domainwf.TriggerApprove, "UHEAD", ActionPayload{})
		assert.True(t, errors.Is(err, apperror.ErrNotFound))
	})

	t.Run("never applicable trigger", func(t *testing.T) {
		f := newCoordinatorFixture()
		trip := f.pendingTrip()
		_, err := f.coordinator.ProcessApprovalAction(ctx, domainwf.KindTrip, trip.ID, domainwf.TriggerComplete, "UHEAD", ActionPayload{})
		assert.True(t, errors.Is(err, domainwf.ErrInvalidTransition))
	})

	t.Run("missing actor", func(t *testing.T) {
		f := newCoordinatorFixture()
		trip := f.pendingTrip()
		_, err := f.coordinator.ProcessApprovalAction(ctx, domainwf.KindTrip, trip.ID, domainwf.TriggerApprove, "", ActionPayload{})
		assert.True(t, errors.Is(err, apperror.ErrValidation))
	})

	t.Run("unknown kind", func(t *testing.T) {
		f := newCoordinatorFixture()
		_, err := f.coordinator.ProcessApprovalAction(ctx, domainwf.Kind("SHUTTLE"), 1, domainwf.TriggerApprove, "UHEAD", ActionPayload{})
		assert.True(t, errors.Is(err, apperror.ErrValidation))
	})

	t.Run("store failure", func(t *testing.T) {
		f := newCoordinatorFixture()
		trip := f.pendingTrip()
		f.trips.updateErr = errors.New("database is locked")
		_, err := f.coordinator.ProcessApprovalAction(ctx, domainwf.KindTrip, trip.ID, domainwf.TriggerApprove, "UHEAD", ActionPayload{})
		assert.True(t, errors.Is(err, apperror.ErrDependency))
		assert.Equal(t, []string{"TRIP/APPROVE/error"}, f.metrics.transitions)
	})

	t.Run("load failure", func(t *testing.T) {
		f := newCoordinatorFixture()
		f.trips.getErr = errors.New("connection reset")
		_, err := f.coordinator.ProcessApprovalAction(ctx, domainwf.KindTrip, 1, domainwf.TriggerApprove, "UHEAD", ActionPayload{})
		assert.True(t, errors.Is(err, apperror.ErrDependency))
	})
}

func TestProcessApprovalAction_ApproveRouteBuildsBatch(t *testing.T) {
	f := newCoordinatorFixture()
	ctx := context.Background()
	first := f.pendingRoute("UR1")
	second := f.pendingRoute("UR2")

	result, err := f.coordinator.ProcessApprovalAction(ctx, domainwf.KindRoute, first.ID, domainwf.TriggerApprove, "UOPS", ActionPayload{Route: validRouteApproval("Lekki")})
	require.NoError(t, err)

	require.NotNil(t, result.Batch)
	assert.True(t, result.Applied)
	assert.Equal(t, domainwf.StateApproved, result.Status)
	assert.Equal(t, "A", result.Batch.Label)
	assert.Equal(t, "LND 123 XY", result.Batch.CabRegNumber)
	assert.Equal(t, 4, result.Batch.Capacity)
	assert.Equal(t, first.ID, result.Batch.RouteRequestID)
	assert.Equal(t, []domainwf.SideEffect{domainwf.AssignFulfillment(result.Batch.ID), domainwf.NotifyRequester()}, result.SideEffects)
	require.NotNil(t, result.Route.BatchID)
	assert.Equal(t, result.Batch.ID, *result.Route.BatchID)

	next, err := f.coordinator.ProcessApprovalAction(ctx, domainwf.KindRoute, second.ID, domainwf.TriggerApprove, "UOPS", ActionPayload{Route: validRouteApproval("Lekki")})
	require.NoError(t, err)
	assert.Equal(t, "B", next.Batch.Label)

	again, err := f.coordinator.ProcessApprovalAction(ctx, domainwf.KindRoute, first.ID, domainwf.TriggerApprove, "UOPS", ActionPayload{Route: validRouteApproval("Lekki")})
	require.NoError(t, err)
	assert.False(t, again.Applied)
	assert.Len(t, f.batches.batches, 2, "a settled approval must not create a batch")
}

func TestProcessApprovalAction_RouteApprovalValidation(t *testing.T) {
	f := newCoordinatorFixture()
	route := f.pendingRoute("UR1")

	_, err := f.coordinator.ProcessApprovalAction(context.Background(), domainwf.KindRoute, route.ID, domainwf.TriggerApprove, "UOPS", ActionPayload{})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	invalid := &RouteApproval{RouteName: "Lekki", TakeOffTime: "25:00", Capacity: "0", CabRegNumber: "", Provider: ""}
	_, err = f.coordinator.ProcessApprovalAction(context.Background(), domainwf.KindRoute, route.ID, domainwf.TriggerApprove, "UOPS", ActionPayload{Route: invalid})
	require.Error(t, err)

	var ve *apperror.ValidationError
	require.True(t, errors.As(err, &ve))
	for _, field := range []string{"takeOffTime", "capacity", "cabRegNumber", "provider"} {
		assert.True(t, ve.Has(field), field)
	}
	assert.False(t, ve.Has("routeName"))
	assert.Equal(t, domainwf.StatePending, f.routes.status(route.ID))
}

func TestProcessApprovalAction_RouteBatchFailureLeavesPending(t *testing.T) {
	f := newCoordinatorFixture()
	route := f.pendingRoute("UR1")
	f.batches.createErr = errors.New("disk full")

	_, err := f.coordinator.ProcessApprovalAction(context.Background(), domainwf.KindRoute, route.ID, domainwf.TriggerApprove, "UOPS", ActionPayload{Route: validRouteApproval("Lekki")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrDependency))
	assert.Equal(t, domainwf.StatePending, f.routes.status(route.ID))
	assert.Empty(t, f.history.changes)
	assert.Empty(t, f.publisher.published)
}

func TestProcessApprovalAction_DeclineRoute(t *testing.T) {
	f := newCoordinatorFixture()
	route := f.pendingRoute("UR1")

	result, err := f.coordinator.ProcessApprovalAction(context.Background(), domainwf.KindRoute, route.ID, domainwf.TriggerDecline, "UMGR", ActionPayload{Comment: "No capacity"})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateDeclined, result.Status)
	assert.Equal(t, []domainwf.SideEffect{domainwf.NotifyRequester()}, result.SideEffects)
	assert.Nil(t, result.Batch)
}

func TestCompleteCabAssignment(t *testing.T) {
	f := newCoordinatorFixture()
	departure := testNow.Add(48 * time.Hour)
	trip := f.tripAt(domainwf.StateApproved, departure)

	result, err := f.coordinator.CompleteCabAssignment(context.Background(), trip.ID, "UOPS", CabAssignment{
		DriverName:  "John Doe",
		DriverPhone: "08012345678",
		CabModel:    "Toyota Camry",
		RegNumber:   "lnd 123 xy",
		Comment:     "Driver will call",
	})
	require.NoError(t, err)

	assert.Equal(t, domainwf.StateConfirmed, result.Status)
	assert.Equal(t, []domainwf.SideEffect{
		domainwf.NotifyRequester(),
		domainwf.NotifyRider(),
		domainwf.ScheduleCompletionCheck(48*time.Hour + appwf.DefaultCompletionGrace),
	}, result.SideEffects)
	require.NotNil(t, result.Trip.Fulfillment)
	assert.Equal(t, "LND 123 XY", result.Trip.Fulfillment.RegNumber)
	assert.Equal(t, "UOPS", result.Trip.ConfirmedBy)
}

func TestCompleteCabAssignment_InvalidSubmission(t *testing.T) {
	f := newCoordinatorFixture()
	trip := f.tripAt(domainwf.StateApproved, testNow.Add(time.Hour))

	_, err := f.coordinator.CompleteCabAssignment(context.Background(), trip.ID, "UOPS", CabAssignment{
		DriverName:  "J0hn",
		DriverPhone: "12ab",
		RegNumber:   "lnd-123",
	})
	var ve *apperror.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.True(t, ve.Has("driverName"))
	assert.True(t, ve.Has("driverPhoneNo"))
	assert.True(t, ve.Has("cab"))
	assert.True(t, ve.Has("regNumber"))
	assert.Equal(t, domainwf.StateApproved, f.trips.status(trip.ID))
}

func TestHandleCompletionCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("before departure reschedules", func(t *testing.T) {
		f := newCoordinatorFixture()
		trip := f.tripAt(domainwf.StateConfirmed, testNow.Add(2*time.Hour))

		result, err := f.coordinator.HandleCompletionCheck(ctx, trip.ID)
		require.NoError(t, err)
		assert.Equal(t, []domainwf.SideEffect{domainwf.ScheduleCompletionCheck(2*time.Hour + appwf.DefaultCompletionGrace)}, result.SideEffects,
			"the retry keeps the grace after departure")
	})

	t.Run("after departure prompts rider", func(t *testing.T) {
		f := newCoordinatorFixture()
		trip := f.tripAt(domainwf.StateConfirmed, testNow.Add(-time.Hour))

		result, err := f.coordinator.HandleCompletionCheck(ctx, trip.ID)
		require.NoError(t, err)
		assert.Equal(t, []domainwf.SideEffect{domainwf.PromptCompletion()}, result.SideEffects)
		require.Len(t, f.publisher.published, 1)
		assert.Equal(t, "URIDER", f.publisher.published[0].actor)
	})

	t.Run("cancelled trip yields nothing", func(t *testing.T) {
		f := newCoordinatorFixture()
		trip := f.tripAt(domainwf.StateCancelled, testNow.Add(-time.Hour))

		result, err := f.coordinator.HandleCompletionCheck(ctx, trip.ID)
		require.NoError(t, err)
		assert.Empty(t, result.SideEffects)
		assert.Empty(t, f.publisher.published)
	})

	t.Run("unknown trip", func(t *testing.T) {
		f := newCoordinatorFixture()
		_, err := f.coordinator.HandleCompletionCheck(ctx, 77)
		assert.True(t, errors.Is(err, apperror.ErrNotFound))
	})
}

func TestListTrips(t *testing.T) {
	f := newCoordinatorFixture()
	for i := 0; i < 5; i++ {
		f.pendingTrip()
	}
	f.tripAt(domainwf.StateApproved, testNow)

	page, err := f.coordinator.ListTrips(context.Background(), pagination.PageRequest{Page: 2, Size: 2}, port.TripFilter{Status: domainwf.StatePending})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, int64(3), page.Data[0].ID)
	assert.Equal(t, int64(4), page.Data[1].ID)
	assert.Equal(t, pagination.PageMeta{TotalPages: 3, Page: 2, TotalResults: 5, PageSize: 2}, page.PageMeta)

	_, err = f.coordinator.ListTrips(context.Background(), pagination.PageRequest{Page: 0, Size: 2}, port.TripFilter{})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestGetRoute_NotFound(t *testing.T) {
	f := newCoordinatorFixture()
	_, err := f.coordinator.GetRoute(context.Background(), 12)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}
