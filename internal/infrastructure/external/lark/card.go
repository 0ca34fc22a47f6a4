package lark

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/garyjia/commute-approvals/internal/application/port"
	"github.com/garyjia/commute-approvals/internal/domain/workflow"
)

// Button values carried back by card action callbacks
const (
	valueKind      = "kind"
	valueRequestID = "request_id"
	valueTrigger   = "trigger"
)

// Form field names carried back in form_value
const (
	formName    = "decision"
	fieldReason = "reason"
)

// reasonMaxLength matches the rationale cap applied by the state machine
const reasonMaxLength = 100

// buildCard renders msg as an interactive card
func buildCard(msg port.Message) (string, error) {
	var elements []interface{}

	if msg.Body != "" {
		elements = append(elements, map[string]interface{}{
			"tag": "div",
			"text": map[string]interface{}{
				"tag":     "lark_md",
				"content": msg.Body,
			},
		})
	}

	if len(msg.Fields) > 0 {
		fields := make([]map[string]interface{}, 0, len(msg.Fields))
		for _, f := range msg.Fields {
			fields = append(fields, map[string]interface{}{
				"is_short": true,
				"text": map[string]interface{}{
					"tag":     "lark_md",
					"content": fmt.Sprintf("**%s**\n%s", f.Label, f.Value),
				},
			})
		}
		elements = append(elements, map[string]interface{}{
			"tag":    "div",
			"fields": fields,
		})
	}

	if len(msg.Actions) > 0 {
		elements = append(elements, map[string]interface{}{"tag": "hr"}, actionElement(msg.Actions))
	}

	card := map[string]interface{}{
		"config": map[string]interface{}{
			"wide_screen_mode": true,
		},
		"header": map[string]interface{}{
			"template": "blue",
			"title": map[string]interface{}{
				"tag":     "plain_text",
				"content": msg.Title,
			},
		},
		"elements": elements,
	}

	b, err := json.Marshal(card)
	if err != nil {
		return "", fmt.Errorf("failed to marshal card content: %w", err)
	}
	return string(b), nil
}

// actionElement renders the buttons. When any trigger needs a reason the
// buttons submit a form holding a reason input, and the callback carries the
// text as form_value.reason.
func actionElement(actions []port.MessageAction) map[string]interface{} {
	needsReason := false
	for _, a := range actions {
		if a.Trigger.RequiresRationale() {
			needsReason = true
		}
	}

	buttons := make([]interface{}, 0, len(actions))
	for _, a := range actions {
		button := map[string]interface{}{
			"tag":  "button",
			"type": buttonType(a.Trigger),
			"text": map[string]interface{}{
				"tag":     "plain_text",
				"content": a.Label,
			},
			"value": map[string]string{
				valueKind:      string(a.Kind),
				valueRequestID: strconv.FormatInt(a.RequestID, 10),
				valueTrigger:   string(a.Trigger),
			},
		}
		if needsReason {
			button["name"] = "submit_" + strings.ToLower(string(a.Trigger))
			button["action_type"] = "form_submit"
		}
		buttons = append(buttons, button)
	}

	if !needsReason {
		return map[string]interface{}{
			"tag":     "action",
			"actions": buttons,
		}
	}

	input := map[string]interface{}{
		"tag":        "input",
		"name":       fieldReason,
		"max_length": reasonMaxLength,
		"placeholder": map[string]interface{}{
			"tag":     "plain_text",
			"content": "Reason (required to decline or cancel)",
		},
	}
	return map[string]interface{}{
		"tag":      "form",
		"name":     formName,
		"elements": append([]interface{}{input}, buttons...),
	}
}

func buttonType(trigger workflow.Trigger) string {
	switch trigger {
	case workflow.TriggerDecline, workflow.TriggerCancel:
		return "danger"
	case workflow.TriggerApprove, workflow.TriggerComplete:
		return "primary"
	default:
		return "default"
	}
}
