package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/garyjia/commute-approvals/internal/application/dispatcher"
	"github.com/garyjia/commute-approvals/internal/application/port"
	"github.com/garyjia/commute-approvals/internal/domain/apperror"
	"github.com/garyjia/commute-approvals/internal/domain/entity"
	"github.com/garyjia/commute-approvals/internal/domain/event"
	domainwf "github.com/garyjia/commute-approvals/internal/domain/workflow"
)

// NotificationService executes the side effects published by the coordinator
type NotificationService interface {
	// Register subscribes one handler per effect event type
	Register(d dispatcher.Dispatcher)

	// Handle executes a single effect event
	Handle(ctx context.Context, evt *event.Event) error
}

// NotificationDependencies groups the collaborators of the effect handlers
type NotificationDependencies struct {
	Trips     port.TripRepository
	Routes    port.RouteRepository
	Batches   port.BatchRepository
	Notifier  port.Notifier
	Scheduler port.Scheduler
	Logger    Logger

	// Failures counts handler errors per event type; optional
	Failures EffectFailureRecorder

	// ApprovalChannel receives operations notifications; empty disables them
	ApprovalChannel string
	Now             func() time.Time
}

// EffectFailureRecorder records side effects whose handler failed
type EffectFailureRecorder interface {
	EffectFailed(eventType string)
}

type notificationServiceImpl struct {
	trips     port.TripRepository
	routes    port.RouteRepository
	batches   port.BatchRepository
	notifier  port.Notifier
	scheduler port.Scheduler
	logger    Logger
	failures  EffectFailureRecorder
	channel   string
	now       func() time.Time
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(deps NotificationDependencies) NotificationService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	failures := deps.Failures
	if failures == nil {
		failures = noopFailures{}
	}
	return &notificationServiceImpl{
		trips:     deps.Trips,
		routes:    deps.Routes,
		batches:   deps.Batches,
		notifier:  deps.Notifier,
		scheduler: deps.Scheduler,
		logger:    deps.Logger,
		failures:  failures,
		channel:   deps.ApprovalChannel,
		now:       now,
	}
}

var effectEventTypes = []event.Type{
	event.TypeNotifyRequester,
	event.TypeNotifyRider,
	event.TypeNotifyApprover,
	event.TypeNotifyChannel,
	event.TypeInformActor,
	event.TypeScheduleCompletion,
	event.TypeAssignFulfillment,
	event.TypePromptCompletion,
}

// Register subscribes one handler per effect event type
func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	for _, t := range effectEventTypes {
		d.SubscribeNamed(t, "effects:"+string(t), s.Handle)
	}
}

type noopFailures struct{}

func (noopFailures) EffectFailed(string) {}

// Handle executes a single effect event
func (s *notificationServiceImpl) Handle(ctx context.Context, evt *event.Event) error {
	err := s.handle(ctx, evt)
	if err != nil {
		s.failures.EffectFailed(string(evt.Type))
	}
	return err
}

func (s *notificationServiceImpl) handle(ctx context.Context, evt *event.Event) error {
	switch evt.Type {
	case event.TypeNotifyRequester:
		return s.notifyParty(ctx, evt, partyRequester)
	case event.TypeNotifyRider:
		return s.notifyParty(ctx, evt, partyRider)
	case event.TypeNotifyApprover:
		return s.notifyParty(ctx, evt, partyApprover)
	case event.TypeNotifyChannel:
		return s.notifyChannel(ctx, evt)
	case event.TypeInformActor:
		return s.informActor(ctx, evt)
	case event.TypeScheduleCompletion:
		return s.scheduleCompletion(ctx, evt)
	case event.TypeAssignFulfillment:
		return s.assignFulfillment(ctx, evt)
	case event.TypePromptCompletion:
		return s.promptCompletion(ctx, evt)
	default:
		return fmt.Errorf("unsupported effect event %s", evt.Type)
	}
}

type party int

const (
	partyRequester party = iota
	partyRider
	partyApprover
)

func (s *notificationServiceImpl) notifyParty(ctx context.Context, evt *event.Event, who party) error {
	summary, err := s.summarize(ctx, evt.Kind, evt.RequestID)
	if err != nil {
		return err
	}

	var recipient string
	switch who {
	case partyRequester:
		recipient = summary.requester
	case partyRider:
		// A rider travelling on their own request already hears it as requester
		if summary.rider == "" || summary.rider == summary.requester {
			return nil
		}
		recipient = summary.rider
	case partyApprover:
		recipient = summary.approver
	}
	if recipient == "" {
		s.logger.Info("No recipient for notification", "event_type", evt.Type, "kind", evt.Kind, "id", evt.RequestID)
		return nil
	}

	msg := summary.message(partyTitle(who, summary))
	if who == partyApprover && summary.status == domainwf.StatePending {
		msg.Actions = []port.MessageAction{
			{Label: "Approve", Kind: evt.Kind, RequestID: evt.RequestID, Trigger: domainwf.TriggerApprove},
			{Label: "Decline", Kind: evt.Kind, RequestID: evt.RequestID, Trigger: domainwf.TriggerDecline},
		}
	}
	return s.send(ctx, evt, recipient, msg)
}

func (s *notificationServiceImpl) notifyChannel(ctx context.Context, evt *event.Event) error {
	if s.channel == "" {
		s.logger.Info("Approval channel not configured, skipping", "kind", evt.Kind, "id", evt.RequestID)
		return nil
	}
	summary, err := s.summarize(ctx, evt.Kind, evt.RequestID)
	if err != nil {
		return err
	}
	return s.send(ctx, evt, s.channel, summary.message(fmt.Sprintf("%s request #%d is %s", summary.label, evt.RequestID, summary.status)))
}

func (s *notificationServiceImpl) informActor(ctx context.Context, evt *event.Event) error {
	if evt.ActorID == "" {
		return nil
	}
	status := evt.GetPayloadString(event.PayloadStatus)
	return s.send(ctx, evt, evt.ActorID, port.Message{
		Title: "No action taken",
		Body:  fmt.Sprintf("This request has already been %s.", statusPhrase(domainwf.State(status))),
	})
}

func (s *notificationServiceImpl) scheduleCompletion(ctx context.Context, evt *event.Event) error {
	if evt.Kind != domainwf.KindTrip {
		return fmt.Errorf("completion checks apply to trips, got %s", evt.Kind)
	}
	runAt := s.now().Add(evt.GetPayloadDuration(event.PayloadDelay))
	if err := s.scheduler.ScheduleCompletionCheck(ctx, evt.RequestID, runAt); err != nil {
		return apperror.Dependency("schedule completion check", err)
	}
	s.logger.Info("Completion check scheduled", "id", evt.RequestID, "run_at", runAt)
	return nil
}

func (s *notificationServiceImpl) assignFulfillment(ctx context.Context, evt *event.Event) error {
	batchID := evt.GetPayloadInt(event.PayloadBatchID)
	if batchID == 0 {
		return fmt.Errorf("assign fulfillment for %s %d: missing batch id", evt.Kind, evt.RequestID)
	}
	route, err := s.routes.GetByID(ctx, evt.RequestID)
	if err != nil {
		return apperror.Dependency("load route request", err)
	}
	if route == nil {
		return apperror.NewNotFound("route request", evt.RequestID)
	}
	if err := s.batches.AddMember(ctx, batchID, route.RequesterID); err != nil {
		return apperror.Dependency("add batch member", err)
	}
	s.logger.Info("Requester assigned to batch", "route_request_id", route.ID, "batch_id", batchID, "requester", route.RequesterID)
	return nil
}

func (s *notificationServiceImpl) promptCompletion(ctx context.Context, evt *event.Event) error {
	trip, err := s.loadTrip(ctx, evt.RequestID)
	if err != nil {
		return err
	}
	summary := summarizeTrip(trip)
	msg := summary.message("Did you take this trip?")
	msg.Body = "Please confirm whether the trip took place so it can be closed."
	msg.Actions = []port.MessageAction{
		{Label: "Yes, completed", Kind: domainwf.KindTrip, RequestID: trip.ID, Trigger: domainwf.TriggerComplete},
	}
	return s.send(ctx, evt, trip.Rider(), msg)
}

func (s *notificationServiceImpl) send(ctx context.Context, evt *event.Event, recipient string, msg port.Message) error {
	if err := s.notifier.Send(ctx, recipient, msg); err != nil {
		s.logger.Error("Failed to send notification", "error", err, "event_type", evt.Type, "kind", evt.Kind, "id", evt.RequestID, "recipient", recipient)
		return fmt.Errorf("send %s: %w", evt.Type, err)
	}
	s.logger.Info("Notification sent", "event_type", evt.Type, "kind", evt.Kind, "id", evt.RequestID, "recipient", recipient, "correlation_id", evt.CorrelationID)
	return nil
}

func (s *notificationServiceImpl) loadTrip(ctx context.Context, id int64) (*entity.TripRequest, error) {
	trip, err := s.trips.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Dependency("load trip request", err)
	}
	if trip == nil {
		return nil, apperror.NewNotFound("trip request", id)
	}
	return trip, nil
}

// requestSummary is the part of a request every notification renders
type requestSummary struct {
	label     string
	status    domainwf.State
	requester string
	rider     string
	approver  string
	comment   string
	fields    []port.MessageField
}

func (s *notificationServiceImpl) summarize(ctx context.Context, kind domainwf.Kind, id int64) (*requestSummary, error) {
	switch kind {
	case domainwf.KindTrip:
		trip, err := s.loadTrip(ctx, id)
		if err != nil {
			return nil, err
		}
		return summarizeTrip(trip), nil
	case domainwf.KindRoute:
		route, err := s.routes.GetByID(ctx, id)
		if err != nil {
			return nil, apperror.Dependency("load route request", err)
		}
		if route == nil {
			return nil, apperror.NewNotFound("route request", id)
		}
		return summarizeRoute(route), nil
	default:
		return nil, fmt.Errorf("unknown request kind %q", kind)
	}
}

func summarizeTrip(trip *entity.TripRequest) *requestSummary {
	fields := []port.MessageField{
		{Label: "Pickup", Value: trip.Origin},
		{Label: "Destination", Value: trip.Destination},
		{Label: "Departure", Value: trip.DepartureTime.Format(entity.DepartureLayout)},
		{Label: "Passengers", Value: strconv.Itoa(trip.Passengers)},
		{Label: "Trip type", Value: trip.TripType},
	}
	if f := trip.Fulfillment; f != nil {
		fields = append(fields,
			port.MessageField{Label: "Driver", Value: f.DriverName},
			port.MessageField{Label: "Driver phone", Value: f.DriverPhone},
			port.MessageField{Label: "Cab", Value: f.CabModel + " " + f.RegNumber},
		)
	}
	return &requestSummary{
		label:     "Trip",
		status:    trip.Status,
		requester: trip.RequesterID,
		rider:     trip.Rider(),
		approver:  trip.ApproverID,
		comment:   trip.Comment,
		fields:    fields,
	}
}

func summarizeRoute(route *entity.RouteRequest) *requestSummary {
	return &requestSummary{
		label:     "Route",
		status:    route.Status,
		requester: route.RequesterID,
		approver:  route.ManagerID,
		comment:   route.Comment,
		fields: []port.MessageField{
			{Label: "Home address", Value: route.HomeAddress},
			{Label: "Bus stop", Value: route.BusStop},
			{Label: "Take-off time", Value: route.TakeOffTime},
		},
	}
}

func (r *requestSummary) message(title string) port.Message {
	msg := port.Message{Title: title, Fields: r.fields}
	if r.comment != "" {
		msg.Body = "Comment: " + r.comment
	}
	return msg
}

func partyTitle(who party, r *requestSummary) string {
	switch {
	case who == partyApprover && r.status == domainwf.StatePending:
		return fmt.Sprintf("%s request awaiting your approval", r.label)
	case who == partyApprover:
		return fmt.Sprintf("%s request was %s", r.label, statusPhrase(r.status))
	case who == partyRider:
		return fmt.Sprintf("A trip was booked for you and is %s", statusPhrase(r.status))
	default:
		return fmt.Sprintf("Your %s request was %s", r.label, statusPhrase(r.status))
	}
}

func statusPhrase(status domainwf.State) string {
	switch status {
	case domainwf.StatePending:
		return "submitted"
	case domainwf.StateApproved:
		return "approved"
	case domainwf.StateDeclined:
		return "declined"
	case domainwf.StateConfirmed:
		return "confirmed"
	case domainwf.StateCancelled:
		return "cancelled"
	case domainwf.StateCompleted:
		return "completed"
	default:
		return "processed"
	}
}
