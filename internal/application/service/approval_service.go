package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/commute-approvals/internal/application/port"
	appwf "github.com/garyjia/commute-approvals/internal/application/workflow"
	"github.com/garyjia/commute-approvals/internal/domain/apperror"
	"github.com/garyjia/commute-approvals/internal/domain/entity"
	domainwf "github.com/garyjia/commute-approvals/internal/domain/workflow"
	"github.com/garyjia/commute-approvals/pkg/utils"
)

// ProcessApprovalAction applies an actor's decision to a request
func (c *coordinatorImpl) ProcessApprovalAction(ctx context.Context, kind domainwf.Kind, requestID int64, action domainwf.Trigger, actor string, payload ActionPayload) (*ActionResult, error) {
	if actor == "" {
		return nil, apperror.NewValidationError("actorId", "Please provide actorId.")
	}

	var (
		result *ActionResult
		err    error
	)
	switch kind {
	case domainwf.KindTrip:
		result, err = c.processTripAction(ctx, requestID, action, actor, payload)
	case domainwf.KindRoute:
		result, err = c.processRouteAction(ctx, requestID, action, actor, payload)
	default:
		return nil, apperror.NewValidationError("kind", fmt.Sprintf("unknown request kind %q", kind))
	}

	c.metrics.TransitionAttempted(kind.String(), action.String(), resultLabel(result, err))
	if err != nil {
		if !errors.Is(err, apperror.ErrValidation) && !errors.Is(err, apperror.ErrNotFound) {
			c.logger.Error("Approval action failed", "error", err, "kind", kind, "id", requestID, "action", action, "actor", actor)
		}
		return nil, err
	}

	c.publish(ctx, kind, requestID, actor, result.SideEffects)
	if result.Applied {
		c.logger.Info("Request transitioned", "kind", kind, "id", requestID, "action", action, "actor", actor, "status", result.Status)
	} else {
		c.logger.Info("Request already decided", "kind", kind, "id", requestID, "action", action, "actor", actor, "status", result.Status)
	}
	return result, nil
}

// CompleteCabAssignment stores the driver and cab of an approved trip and confirms it
func (c *coordinatorImpl) CompleteCabAssignment(ctx context.Context, tripID int64, actor string, submission CabAssignment) (*ActionResult, error) {
	return c.ProcessApprovalAction(ctx, domainwf.KindTrip, tripID, domainwf.TriggerConfirm, actor, ActionPayload{
		Comment:    submission.Comment,
		Assignment: &submission,
	})
}

// HandleCompletionCheck re-evaluates a confirmed trip once its completion check fires
func (c *coordinatorImpl) HandleCompletionCheck(ctx context.Context, tripID int64) (*ActionResult, error) {
	trip, err := c.loadTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	result := &ActionResult{
		Kind:      domainwf.KindTrip,
		RequestID: trip.ID,
		ActorID:   trip.Rider(),
		Status:    trip.Status,
		Trip:      trip,
	}
	if trip.Status != domainwf.StateConfirmed {
		return result, nil
	}

	now := c.now()
	if now.Before(trip.DepartureTime) {
		result.SideEffects = []domainwf.SideEffect{domainwf.ScheduleCompletionCheck(c.machine.CompletionDelay(trip.DepartureTime))}
		c.publish(ctx, domainwf.KindTrip, trip.ID, result.ActorID, result.SideEffects)
		return result, nil
	}

	result.SideEffects = []domainwf.SideEffect{domainwf.PromptCompletion()}
	c.publish(ctx, domainwf.KindTrip, trip.ID, result.ActorID, result.SideEffects)
	c.logger.Info("Trip due for completion", "id", trip.ID, "departure", trip.DepartureTime)
	return result, nil
}

func (c *coordinatorImpl) processTripAction(ctx context.Context, id int64, action domainwf.Trigger, actor string, payload ActionPayload) (*ActionResult, error) {
	trip, err := c.loadTrip(ctx, id)
	if err != nil {
		return nil, err
	}

	settled, err := c.machine.Settled(domainwf.KindTrip, trip.Status, action)
	if err != nil {
		return nil, err
	}
	if settled != nil {
		return settledResult(domainwf.KindTrip, id, actor, settled), nil
	}

	transition := appwf.Transition{
		Trigger:     action,
		Rationale:   payload.Comment,
		ScheduledAt: trip.DepartureTime,
	}
	var fulfillment *entity.Fulfillment
	if action == domainwf.TriggerConfirm {
		if payload.Assignment == nil {
			return nil, apperror.NewValidationError("assignment", "Please provide driver and cab details.")
		}
		fulfillment, err = parseCabAssignment(*payload.Assignment)
		if err != nil {
			return nil, err
		}
		transition.Fulfilled = true
	}

	outcome, err := c.machine.AttemptTransition(ctx, domainwf.KindTrip, trip.Status, transition, actor)
	if err != nil {
		return nil, err
	}
	if !outcome.Applied {
		return settledResult(domainwf.KindTrip, id, actor, outcome), nil
	}

	update := port.StatusUpdate{
		From:        outcome.PreviousStatus,
		To:          outcome.NewStatus,
		Comment:     outcome.Rationale,
		ActorID:     actor,
		Fulfillment: fulfillment,
	}
	err = c.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := c.trips.UpdateStatus(txCtx, id, update); err != nil {
			return err
		}
		return c.history.Create(txCtx, statusChange(domainwf.KindTrip, id, action, update, c.now()))
	})
	if errors.Is(err, apperror.ErrAlreadyTerminal) {
		return c.lostRace(ctx, domainwf.KindTrip, id, actor)
	}
	if err != nil {
		return nil, apperror.Dependency("persist trip transition", err)
	}

	applyTripUpdate(trip, update, c.now())
	return &ActionResult{
		Kind:        domainwf.KindTrip,
		RequestID:   id,
		ActorID:     actor,
		Applied:     true,
		Status:      outcome.NewStatus,
		SideEffects: outcome.SideEffects,
		Trip:        trip,
	}, nil
}

func (c *coordinatorImpl) processRouteAction(ctx context.Context, id int64, action domainwf.Trigger, actor string, payload ActionPayload) (*ActionResult, error) {
	route, err := c.loadRoute(ctx, id)
	if err != nil {
		return nil, err
	}

	settled, err := c.machine.Settled(domainwf.KindRoute, route.Status, action)
	if err != nil {
		return nil, err
	}
	if settled != nil {
		return settledResult(domainwf.KindRoute, id, actor, settled), nil
	}

	if _, err := appwf.CleanRationale(payload.Comment, action.RequiresRationale()); err != nil {
		return nil, err
	}

	var batch *entity.Batch
	if action == domainwf.TriggerApprove {
		if payload.Route == nil {
			return nil, apperror.NewValidationError("route", "Please provide route details.")
		}
		batch, err = parseRouteApproval(*payload.Route)
		if err != nil {
			return nil, err
		}
		batch.RouteRequestID = id
	}

	var (
		outcome *appwf.Outcome
		update  port.StatusUpdate
	)
	// The batch and the status change commit together; a failed batch leaves the request pending.
	err = c.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		transition := appwf.Transition{Trigger: action, Rationale: payload.Comment}
		if batch != nil {
			if err := c.buildBatch(txCtx, batch); err != nil {
				return err
			}
			transition.BatchID = batch.ID
		}

		var err error
		outcome, err = c.machine.AttemptTransition(txCtx, domainwf.KindRoute, route.Status, transition, actor)
		if err != nil {
			return err
		}
		if !outcome.Applied {
			return apperror.ErrAlreadyTerminal
		}

		update = port.StatusUpdate{
			From:    outcome.PreviousStatus,
			To:      outcome.NewStatus,
			Comment: outcome.Rationale,
			ActorID: actor,
		}
		if batch != nil {
			update.BatchID = &batch.ID
		}
		if err := c.routes.UpdateStatus(txCtx, id, update); err != nil {
			return err
		}
		return c.history.Create(txCtx, statusChange(domainwf.KindRoute, id, action, update, c.now()))
	})
	switch {
	case errors.Is(err, apperror.ErrAlreadyTerminal):
		return c.lostRace(ctx, domainwf.KindRoute, id, actor)
	case errors.Is(err, apperror.ErrValidation), errors.Is(err, domainwf.ErrGuardFailed), errors.Is(err, domainwf.ErrInvalidTransition):
		return nil, err
	case err != nil:
		return nil, apperror.Dependency("persist route transition", err)
	}

	route.Status = update.To
	route.Comment = update.Comment
	route.DecidedBy = actor
	route.BatchID = update.BatchID
	route.UpdatedAt = c.now()

	return &ActionResult{
		Kind:        domainwf.KindRoute,
		RequestID:   id,
		ActorID:     actor,
		Applied:     true,
		Status:      outcome.NewStatus,
		SideEffects: outcome.SideEffects,
		Route:       route,
		Batch:       batch,
	}, nil
}

// buildBatch labels batch with the next free letter of its route and stores it
func (c *coordinatorImpl) buildBatch(ctx context.Context, batch *entity.Batch) error {
	latest, err := c.batches.LatestLabel(ctx, batch.RouteName)
	if err != nil {
		return fmt.Errorf("build batch: %w", err)
	}
	batch.Label = utils.NextLabel(latest)
	batch.CreatedAt = c.now()
	if err := c.batches.Create(ctx, batch); err != nil {
		return fmt.Errorf("build batch: %w", err)
	}
	return nil
}

// lostRace reports the status a concurrent writer left behind after a conditional update matched nothing
func (c *coordinatorImpl) lostRace(ctx context.Context, kind domainwf.Kind, id int64, actor string) (*ActionResult, error) {
	var status domainwf.State
	switch kind {
	case domainwf.KindTrip:
		trip, err := c.loadTrip(ctx, id)
		if err != nil {
			return nil, err
		}
		status = trip.Status
	default:
		route, err := c.loadRoute(ctx, id)
		if err != nil {
			return nil, err
		}
		status = route.Status
	}

	return &ActionResult{
		Kind:        kind,
		RequestID:   id,
		ActorID:     actor,
		Applied:     false,
		Status:      status,
		Reason:      appwf.ReasonAlreadyTerminal,
		SideEffects: []domainwf.SideEffect{domainwf.InformActor(status)},
	}, nil
}

func (c *coordinatorImpl) loadTrip(ctx context.Context, id int64) (*entity.TripRequest, error) {
	trip, err := c.trips.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Dependency("load trip request", err)
	}
	if trip == nil {
		return nil, apperror.NewNotFound("trip request", id)
	}
	return trip, nil
}

func (c *coordinatorImpl) loadRoute(ctx context.Context, id int64) (*entity.RouteRequest, error) {
	route, err := c.routes.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Dependency("load route request", err)
	}
	if route == nil {
		return nil, apperror.NewNotFound("route request", id)
	}
	return route, nil
}

func settledResult(kind domainwf.Kind, id int64, actor string, outcome *appwf.Outcome) *ActionResult {
	return &ActionResult{
		Kind:        kind,
		RequestID:   id,
		ActorID:     actor,
		Applied:     false,
		Status:      outcome.NewStatus,
		Reason:      outcome.Reason,
		SideEffects: outcome.SideEffects,
	}
}

func statusChange(kind domainwf.Kind, id int64, action domainwf.Trigger, update port.StatusUpdate, at time.Time) *entity.StatusChange {
	return &entity.StatusChange{
		RequestKind: kind,
		RequestID:   id,
		ActorID:     update.ActorID,
		FromStatus:  update.From,
		ToStatus:    update.To,
		Trigger:     action,
		Comment:     update.Comment,
		CreatedAt:   at,
	}
}

func applyTripUpdate(trip *entity.TripRequest, update port.StatusUpdate, at time.Time) {
	trip.Status = update.To
	trip.Comment = update.Comment
	trip.UpdatedAt = at
	switch update.To {
	case domainwf.StateApproved, domainwf.StateDeclined:
		trip.DecidedBy = update.ActorID
	case domainwf.StateConfirmed:
		trip.ConfirmedBy = update.ActorID
		trip.Fulfillment = update.Fulfillment
	}
}

func resultLabel(result *ActionResult, err error) string {
	switch {
	case err != nil && (errors.Is(err, apperror.ErrValidation) || errors.Is(err, domainwf.ErrInvalidTransition) || errors.Is(err, domainwf.ErrGuardFailed)):
		return ResultRejected
	case err != nil:
		return ResultError
	case result.Applied:
		return ResultApplied
	default:
		return ResultAlreadyTerminal
	}
}

func parseCabAssignment(submission CabAssignment) (*entity.Fulfillment, error) {
	problems := &apperror.ValidationError{}
	f := &entity.Fulfillment{
		DriverName:  utils.SanitizeText(submission.DriverName),
		DriverPhone: utils.SanitizeText(submission.DriverPhone),
		CabModel:    utils.SanitizeText(submission.CabModel),
		RegNumber:   strings.ToUpper(utils.SanitizeText(submission.RegNumber)),
	}

	switch {
	case f.DriverName == "":
		problems.Add("driverName", "Please provide driverName.")
	case !utils.IsPersonName(f.DriverName):
		problems.Add("driverName", "Invalid driver name")
	}
	switch {
	case f.DriverPhone == "":
		problems.Add("driverPhoneNo", "Please provide driverPhoneNo.")
	case !utils.IsPhoneNumber(f.DriverPhone):
		problems.Add("driverPhoneNo", "Phone number must be 6 to 16 digits")
	}
	if f.CabModel == "" {
		problems.Add("cab", "Please provide cab.")
	}
	switch {
	case f.RegNumber == "":
		problems.Add("regNumber", "Please provide regNumber.")
	case !utils.IsNumberPlate(f.RegNumber):
		problems.Add("regNumber", "Invalid registration number")
	}

	if err := problems.OrNil(); err != nil {
		return nil, err
	}
	return f, nil
}

func parseRouteApproval(submission RouteApproval) (*entity.Batch, error) {
	problems := &apperror.ValidationError{}
	batch := &entity.Batch{
		RouteName:    utils.SanitizeText(submission.RouteName),
		TakeOffTime:  utils.SanitizeText(submission.TakeOffTime),
		CabRegNumber: strings.ToUpper(utils.SanitizeText(submission.CabRegNumber)),
		Provider:     utils.SanitizeText(submission.Provider),
	}

	if batch.RouteName == "" {
		problems.Add("routeName", "Please provide routeName.")
	}
	switch {
	case batch.TakeOffTime == "":
		problems.Add("takeOffTime", "Please provide takeOffTime.")
	case !utils.IsClockTime(batch.TakeOffTime):
		problems.Add("takeOffTime", "Take-off time must be in HH:MM format")
	}
	if capacity, ok := utils.ParsePositiveInt(submission.Capacity); ok {
		batch.Capacity = capacity
	} else {
		problems.Add("capacity", "Capacity must be a positive integer")
	}
	switch {
	case batch.CabRegNumber == "":
		problems.Add("cabRegNumber", "Please provide cabRegNumber.")
	case !utils.IsNumberPlate(batch.CabRegNumber):
		problems.Add("cabRegNumber", "Invalid registration number")
	}
	if batch.Provider == "" {
		problems.Add("provider", "Please provide provider.")
	}

	if err := problems.OrNil(); err != nil {
		return nil, err
	}
	return batch, nil
}
