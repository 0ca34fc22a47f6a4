package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	"go.uber.org/zap"

	"github.com/garyjia/commute-approvals/internal/application/service"
	"github.com/garyjia/commute-approvals/internal/domain/apperror"
	"github.com/garyjia/commute-approvals/internal/domain/workflow"
)

// EventTypeCardAction is the callback Lark sends when a card button is pressed
const EventTypeCardAction = "card.action.trigger"

// ActionHandler applies a button press to a request
type ActionHandler interface {
	ProcessApprovalAction(ctx context.Context, kind workflow.Kind, requestID int64, action workflow.Trigger, actor string, payload service.ActionPayload) (*service.ActionResult, error)
}

// CardActionEvent represents a Lark card action callback payload
type CardActionEvent struct {
	Header EventHeader `json:"header"`
	Event  struct {
		Operator struct {
			OpenID string `json:"open_id"`
			UserID string `json:"user_id"`
		} `json:"operator"`
		Action struct {
			Value      map[string]string `json:"value"`
			InputValue string            `json:"input_value"`
			FormValue  map[string]string `json:"form_value"`
		} `json:"action"`
	} `json:"event"`
}

// EventHeader contains event metadata
type EventHeader struct {
	EventType string `json:"event_type"`
}

// Toast is the feedback Lark shows to whoever pressed the button
type Toast struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// CardActionResponse is the synchronous reply to a card action callback
type CardActionResponse struct {
	Toast Toast `json:"toast"`
}

// EventProcessor routes Lark card actions into the approval coordinator
type EventProcessor struct {
	handler ActionHandler
	logger  *zap.Logger
}

// NewEventProcessor creates a new EventProcessor
func NewEventProcessor(handler ActionHandler, logger *zap.Logger) *EventProcessor {
	return &EventProcessor{
		handler: handler,
		logger:  logger,
	}
}

// HandleCustomizedEvent adapts the SDK event payload for processing
func (p *EventProcessor) HandleCustomizedEvent(ctx context.Context, event *larkevent.EventReq) (*CardActionResponse, error) {
	return p.ProcessEvent(ctx, event.Body)
}

// ProcessEvent parses a card action payload and applies it.
// Outcomes the user should see come back as a toast; only undecodable payloads
// and dependency failures are errors.
func (p *EventProcessor) ProcessEvent(ctx context.Context, payload []byte) (*CardActionResponse, error) {
	var event CardActionEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse card action payload: %w", err)
	}
	if event.Header.EventType != EventTypeCardAction {
		p.logger.Info("Ignoring Lark event", zap.String("event_type", event.Header.EventType))
		return nil, nil
	}

	value := event.Event.Action.Value
	kind := workflow.Kind(value[valueKind])
	trigger := workflow.Trigger(value[valueTrigger])
	requestID, err := strconv.ParseInt(value[valueRequestID], 10, 64)
	if err != nil || !kind.IsValid() || trigger == "" {
		p.logger.Warn("Card action without a request binding", zap.Any("value", value))
		return warning("This button is no longer valid."), nil
	}

	actor := event.Event.Operator.OpenID
	if actor == "" {
		actor = event.Event.Operator.UserID
	}

	comment := strings.TrimSpace(event.Event.Action.FormValue[fieldReason])
	if comment == "" {
		comment = strings.TrimSpace(event.Event.Action.InputValue)
	}

	result, err := p.handler.ProcessApprovalAction(ctx, kind, requestID, trigger, actor, service.ActionPayload{Comment: comment})
	var ve *apperror.ValidationError
	switch {
	case errors.As(err, &ve):
		return warning(ve.Error()), nil
	case errors.Is(err, apperror.ErrNotFound):
		return warning("This request no longer exists."), nil
	case err != nil:
		p.logger.Error("Card action failed",
			zap.String("kind", kind.String()),
			zap.Int64("request_id", requestID),
			zap.String("trigger", string(trigger)),
			zap.Error(err))
		return nil, err
	}

	p.logger.Info("Card action processed",
		zap.String("kind", kind.String()),
		zap.Int64("request_id", requestID),
		zap.String("trigger", string(trigger)),
		zap.String("actor", actor),
		zap.Bool("applied", result.Applied))

	if !result.Applied {
		return &CardActionResponse{Toast: Toast{Type: "info", Content: fmt.Sprintf("No action taken, the request is %s.", strings.ToLower(result.Status.String()))}}, nil
	}
	return &CardActionResponse{Toast: Toast{Type: "success", Content: fmt.Sprintf("Request is now %s.", strings.ToLower(result.Status.String()))}}, nil
}

func warning(content string) *CardActionResponse {
	return &CardActionResponse{Toast: Toast{Type: "warning", Content: content}}
}
