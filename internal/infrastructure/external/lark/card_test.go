package lark

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/commute-approvals/internal/application/port"
	"github.com/garyjia/commute-approvals/internal/application/service"
	"github.com/garyjia/commute-approvals/internal/domain/workflow"
)

func approverMessage() port.Message {
	return port.Message{
		Title: "Trip request awaiting your approval",
		Actions: []port.MessageAction{
			{Label: "Approve", Kind: workflow.KindTrip, RequestID: 12, Trigger: workflow.TriggerApprove},
			{Label: "Decline", Kind: workflow.KindTrip, RequestID: 12, Trigger: workflow.TriggerDecline},
		},
	}
}

// lastElement decodes the card and returns its final element
func lastElement(t *testing.T, msg port.Message) map[string]interface{} {
	t.Helper()
	content, err := buildCard(msg)
	require.NoError(t, err)

	var card struct {
		Elements []map[string]interface{} `json:"elements"`
	}
	require.NoError(t, json.Unmarshal([]byte(content), &card))
	require.NotEmpty(t, card.Elements)
	return card.Elements[len(card.Elements)-1]
}

func formButton(t *testing.T, form map[string]interface{}, trigger workflow.Trigger) map[string]interface{} {
	t.Helper()
	for _, el := range form["elements"].([]interface{}) {
		el := el.(map[string]interface{})
		if el["tag"] != "button" {
			continue
		}
		if el["value"].(map[string]interface{})[valueTrigger] == string(trigger) {
			return el
		}
	}
	t.Fatalf("no %s button in form", trigger)
	return nil
}

func TestBuildCard_DeclineRendersReasonForm(t *testing.T) {
	form := lastElement(t, approverMessage())
	require.Equal(t, "form", form["tag"])

	elements := form["elements"].([]interface{})
	require.Len(t, elements, 3)
	input := elements[0].(map[string]interface{})
	assert.Equal(t, "input", input["tag"])
	assert.Equal(t, fieldReason, input["name"])
	assert.EqualValues(t, reasonMaxLength, input["max_length"])

	decline := formButton(t, form, workflow.TriggerDecline)
	assert.Equal(t, "form_submit", decline["action_type"])
	assert.Equal(t, "danger", decline["type"])
	assert.Equal(t, "form_submit", formButton(t, form, workflow.TriggerApprove)["action_type"])
}

func TestBuildCard_ButtonsWithoutReason(t *testing.T) {
	action := lastElement(t, port.Message{
		Title: "Did you take this trip?",
		Actions: []port.MessageAction{
			{Label: "Yes, completed", Kind: workflow.KindTrip, RequestID: 3, Trigger: workflow.TriggerComplete},
		},
	})
	assert.Equal(t, "action", action["tag"])
	buttons := action["actions"].([]interface{})
	require.Len(t, buttons, 1)
	assert.NotContains(t, buttons[0].(map[string]interface{}), "action_type")
}

func TestEventProcessor_DeclineSubmittedFromCard(t *testing.T) {
	decline := formButton(t, lastElement(t, approverMessage()), workflow.TriggerDecline)

	// Lark echoes the pressed button's value and the form inputs by name
	callback := map[string]interface{}{
		"schema": "2.0",
		"header": map[string]interface{}{"event_type": EventTypeCardAction},
		"event": map[string]interface{}{
			"operator": map[string]interface{}{"open_id": "ou_head"},
			"action": map[string]interface{}{
				"tag":        "button",
				"name":       decline["name"],
				"value":      decline["value"],
				"form_value": map[string]string{fieldReason: " No budget this quarter "},
			},
		},
	}
	payload, err := json.Marshal(callback)
	require.NoError(t, err)

	handler := &mockActionHandler{result: &service.ActionResult{Applied: true, Status: workflow.StateDeclined}}
	resp, err := NewEventProcessor(handler, zap.NewNop()).ProcessEvent(context.Background(), payload)
	require.NoError(t, err)
	require.Len(t, handler.calls, 1)
	assert.Equal(t, workflow.TriggerDecline, handler.calls[0].trigger)
	assert.Equal(t, int64(12), handler.calls[0].id)
	assert.Equal(t, "No budget this quarter", handler.calls[0].payload.Comment)
	assert.Equal(t, "success", resp.Toast.Type)
}
