package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/commute-approvals/internal/domain/workflow"
)

// Payload keys set by FromSideEffect
const (
	PayloadStatus  = "status"
	PayloadDelay   = "delay"
	PayloadBatchID = "batch_id"
)

// Event represents a domain event
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	Kind          workflow.Kind          `json:"kind"`
	RequestID     int64                  `json:"request_id"`
	ActorID       string                 `json:"actor_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with auto-generated ID and timestamp
func NewEvent(eventType Type, kind workflow.Kind, requestID int64, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, kind, requestID, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, kind workflow.Kind, requestID int64, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Kind:          kind,
		RequestID:     requestID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// FromSideEffect converts a side-effect descriptor into the event its handler consumes
func FromSideEffect(kind workflow.Kind, requestID int64, actorID string, effect workflow.SideEffect, correlationID string) *Event {
	payload := map[string]interface{}{}
	if effect.Status != "" {
		payload[PayloadStatus] = effect.Status.String()
	}
	if effect.Type == workflow.EffectScheduleCompletionCheck {
		payload[PayloadDelay] = effect.Delay
	}
	if effect.BatchID != 0 {
		payload[PayloadBatchID] = effect.BatchID
	}

	evt := NewEventWithCorrelation(TypeForEffect(effect.Type), kind, requestID, payload, correlationID)
	evt.ActorID = actorID
	return evt
}

// WithPayload returns a new Event with an added payload key-value pair (immutable operation)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	clone := *e
	clone.Payload = newPayload
	return &clone
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

// GetPayloadDuration retrieves a duration value from the payload
func (e *Event) GetPayloadDuration(key string) time.Duration {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case time.Duration:
			return v
		case int64:
			return time.Duration(v)
		case float64:
			return time.Duration(v)
		}
	}
	return 0
}
