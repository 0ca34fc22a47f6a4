package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/commute-approvals/internal/application/session"
	"github.com/garyjia/commute-approvals/internal/domain/apperror"
	"github.com/garyjia/commute-approvals/internal/domain/entity"
	domainwf "github.com/garyjia/commute-approvals/internal/domain/workflow"
	"github.com/garyjia/commute-approvals/pkg/utils"
)

// Session fields of the trip request flow
const (
	FieldRider             = "riderId"
	FieldApprover          = "approverId"
	FieldDepartment        = "department"
	FieldPickup            = "pickup"
	FieldOthersPickup      = "othersPickup"
	FieldDestination       = "destination"
	FieldOthersDestination = "othersDestination"
	FieldDateTime          = "dateTime"
	FieldPassengers        = "passengers"
	FieldReason            = "reason"
	FieldTripType          = "tripType"
)

// Session fields of the route request flow
const (
	FieldManager     = "managerId"
	FieldHomeAddress = "homeAddress"
	FieldBusStop     = "busStop"
	FieldTakeOffTime = "takeOffTime"
)

// BeginMultiStepRequest merges fields into the session under key and returns the merged session
func (c *coordinatorImpl) BeginMultiStepRequest(ctx context.Context, key session.Key, fields session.Values) (session.Values, error) {
	if len(fields) > 0 {
		if err := c.sessions.SaveFields(ctx, key, sanitizeValues(fields)); err != nil {
			c.logger.Error("Failed to merge session", "error", err, "key", key.String())
			return nil, err
		}
	}
	return c.sessions.Fetch(ctx, key)
}

// RestartMultiStepRequest replaces the whole session under key with fields
func (c *coordinatorImpl) RestartMultiStepRequest(ctx context.Context, key session.Key, fields session.Values) (session.Values, error) {
	if err := c.sessions.SaveObject(ctx, key, sanitizeValues(fields)); err != nil {
		c.logger.Error("Failed to replace session", "error", err, "key", key.String())
		return nil, err
	}
	return c.sessions.Fetch(ctx, key)
}

// FinalizeTripRequest validates the trip session, creates the trip and clears the session
func (c *coordinatorImpl) FinalizeTripRequest(ctx context.Context, key session.Key, remaining session.Values) (*TripCreation, error) {
	if key.Flow != session.FlowTripRequest {
		return nil, apperror.NewValidationError("flow", fmt.Sprintf("expected flow %s", session.FlowTripRequest))
	}

	values, err := c.BeginMultiStepRequest(ctx, key, remaining)
	if err != nil {
		return nil, err
	}

	trip, err := c.tripFromSession(ctx, key.ActorID, values)
	if err != nil {
		return nil, err
	}

	err = c.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := c.trips.Create(txCtx, trip); err != nil {
			return fmt.Errorf("create trip: %w", err)
		}
		return c.history.Create(txCtx, &entity.StatusChange{
			RequestKind: domainwf.KindTrip,
			RequestID:   trip.ID,
			ActorID:     trip.RequesterID,
			ToStatus:    domainwf.StatePending,
			Comment:     "request created",
			CreatedAt:   trip.CreatedAt,
		})
	})
	if err != nil {
		c.logger.Error("Failed to create trip request", "error", err, "requester", key.ActorID)
		return nil, apperror.Dependency("create trip request", err)
	}

	c.clearSession(ctx, key)
	c.metrics.RequestCreated(domainwf.KindTrip.String())
	c.logger.Info("Trip request created", "id", trip.ID, "requester", trip.RequesterID, "approver", trip.ApproverID)

	effects := []domainwf.SideEffect{domainwf.NotifyApprover()}
	c.publish(ctx, domainwf.KindTrip, trip.ID, trip.RequesterID, effects)
	return &TripCreation{Trip: trip, SideEffects: effects}, nil
}

// FinalizeRouteRequest validates the route session, creates the route request and clears the session
func (c *coordinatorImpl) FinalizeRouteRequest(ctx context.Context, key session.Key, remaining session.Values) (*RouteCreation, error) {
	if key.Flow != session.FlowRouteRequest {
		return nil, apperror.NewValidationError("flow", fmt.Sprintf("expected flow %s", session.FlowRouteRequest))
	}

	values, err := c.BeginMultiStepRequest(ctx, key, remaining)
	if err != nil {
		return nil, err
	}

	route, err := c.routeFromSession(key.ActorID, values)
	if err != nil {
		return nil, err
	}

	err = c.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := c.routes.Create(txCtx, route); err != nil {
			return fmt.Errorf("create route request: %w", err)
		}
		return c.history.Create(txCtx, &entity.StatusChange{
			RequestKind: domainwf.KindRoute,
			RequestID:   route.ID,
			ActorID:     route.RequesterID,
			ToStatus:    domainwf.StatePending,
			Comment:     "request created",
			CreatedAt:   route.CreatedAt,
		})
	})
	if err != nil {
		c.logger.Error("Failed to create route request", "error", err, "requester", key.ActorID)
		return nil, apperror.Dependency("create route request", err)
	}

	c.clearSession(ctx, key)
	c.metrics.RequestCreated(domainwf.KindRoute.String())
	c.logger.Info("Route request created", "id", route.ID, "requester", route.RequesterID)

	effects := []domainwf.SideEffect{domainwf.NotifyApprovalChannel()}
	c.publish(ctx, domainwf.KindRoute, route.ID, route.RequesterID, effects)
	return &RouteCreation{Route: route, SideEffects: effects}, nil
}

// clearSession drops the session once its record exists. A failure is logged only:
// the record is already durable and the backend TTL evicts the leftover.
func (c *coordinatorImpl) clearSession(ctx context.Context, key session.Key) {
	if err := c.sessions.Delete(ctx, key); err != nil {
		c.logger.Error("Failed to delete session", "error", err, "key", key.String())
	}
}

func (c *coordinatorImpl) tripFromSession(ctx context.Context, requester string, values session.Values) (*entity.TripRequest, error) {
	problems := &apperror.ValidationError{}
	requireFields(problems, values, FieldDepartment, FieldPickup, FieldDestination, FieldDateTime, FieldPassengers, FieldReason)

	origin := resolveLocation(problems, values, FieldPickup, FieldOthersPickup)
	destination := resolveLocation(problems, values, FieldDestination, FieldOthersDestination)
	if origin != "" && destination != "" && strings.EqualFold(origin, destination) {
		problems.Add(FieldDestination, "Destination cannot be the same as origin")
	}

	now := c.now()
	departure := now
	if raw := values.String(FieldDateTime); raw != "" {
		parsed, err := utils.ParseDateTime(raw, entity.DepartureLayout, c.location)
		switch {
		case err != nil:
			problems.Add(FieldDateTime, "Date format must be DD/MM/YYYY HH:mm")
		case parsed.Before(now):
			problems.Add(FieldDateTime, "Date cannot be in the past")
		default:
			departure = parsed
		}
	}

	passengers := 0
	if values.Has(FieldPassengers) {
		n, ok := values.Int(FieldPassengers)
		if !ok || n < 1 {
			problems.Add(FieldPassengers, "Passengers must be a positive number")
		}
		passengers = n
	}

	tripType := values.String(FieldTripType)
	if tripType == "" {
		tripType = entity.TripTypeRegular
	} else if !entity.IsValidTripType(tripType) {
		problems.Add(FieldTripType, fmt.Sprintf("Unknown trip type %q", tripType))
	}

	department := values.String(FieldDepartment)
	approver := values.String(FieldApprover)
	if approver == "" && department != "" {
		head, err := c.departments.GetByName(ctx, department)
		if err != nil {
			return nil, apperror.Dependency("resolve department head", err)
		}
		switch {
		case head == nil:
			problems.Add(FieldDepartment, fmt.Sprintf("Department %s does not exist", department))
		case head.HeadID == "":
			problems.Add(FieldDepartment, fmt.Sprintf("Department %s has no manager", department))
		default:
			approver = head.HeadID
		}
	}

	if err := problems.OrNil(); err != nil {
		return nil, err
	}

	rider := values.String(FieldRider)
	if rider == "" {
		rider = requester
	}

	return &entity.TripRequest{
		Status:        domainwf.StatePending,
		RequesterID:   requester,
		RiderID:       rider,
		ApproverID:    approver,
		Department:    department,
		Origin:        origin,
		Destination:   destination,
		DepartureTime: departure,
		Passengers:    passengers,
		Reason:        values.String(FieldReason),
		TripType:      tripType,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (c *coordinatorImpl) routeFromSession(requester string, values session.Values) (*entity.RouteRequest, error) {
	problems := &apperror.ValidationError{}
	requireFields(problems, values, FieldManager, FieldHomeAddress, FieldBusStop, FieldTakeOffTime)

	takeOff := values.String(FieldTakeOffTime)
	if takeOff != "" && !utils.IsClockTime(takeOff) {
		problems.Add(FieldTakeOffTime, "Take-off time must be in HH:MM format")
	}
	if manager := values.String(FieldManager); manager != "" && manager == requester {
		problems.Add(FieldManager, "You cannot approve your own route request")
	}

	if err := problems.OrNil(); err != nil {
		return nil, err
	}

	now := c.now()
	return &entity.RouteRequest{
		Status:      domainwf.StatePending,
		RequesterID: requester,
		ManagerID:   values.String(FieldManager),
		HomeAddress: values.String(FieldHomeAddress),
		BusStop:     values.String(FieldBusStop),
		TakeOffTime: takeOff,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func requireFields(problems *apperror.ValidationError, values session.Values, fields ...string) {
	for _, field := range fields {
		if !values.Has(field) {
			problems.Add(field, fmt.Sprintf("Please provide %s.", field))
		}
	}
}

// resolveLocation returns the chosen location, or its free-text companion when the
// choice is Others. Missing values are reported by requireFields.
func resolveLocation(problems *apperror.ValidationError, values session.Values, field, othersField string) string {
	choice := values.String(field)
	if choice == "" {
		return ""
	}
	if choice == entity.LocationOthers {
		other := values.String(othersField)
		if other == "" {
			problems.Add(othersField, fmt.Sprintf("Please provide %s.", othersField))
			return ""
		}
		if !utils.IsWord(other) {
			problems.Add(othersField, "Only alphabets, dashes, commas and spaces are allowed")
			return ""
		}
		return other
	}
	if values.Has(othersField) {
		problems.Add(othersField, fmt.Sprintf("%s must only be set when %s is %s", othersField, field, entity.LocationOthers))
	}
	if !utils.IsWord(choice) {
		problems.Add(field, "Only alphabets, dashes, commas and spaces are allowed")
		return ""
	}
	return choice
}

func sanitizeValues(fields session.Values) session.Values {
	cleaned := make(session.Values, len(fields))
	for k, v := range fields {
		if s, ok := v.(string); ok {
			cleaned[k] = utils.SanitizeText(s)
			continue
		}
		cleaned[k] = v
	}
	return cleaned
}
