package port

import (
	"context"
	"time"

	"github.com/garyjia/commute-approvals/internal/domain/entity"
	"github.com/garyjia/commute-approvals/internal/domain/workflow"
)

// Message is an outbound notification
type Message struct {
	Title  string
	Body   string
	Fields []MessageField

	// Actions render as buttons; pressing one fires Trigger on the request as the recipient
	Actions []MessageAction
}

// MessageField is a labelled value rendered under the message body
type MessageField struct {
	Label string
	Value string
}

// MessageAction is a button bound to a state machine trigger
type MessageAction struct {
	Label     string
	Kind      workflow.Kind
	RequestID int64
	Trigger   workflow.Trigger
}

// Notifier delivers messages to a user or channel
type Notifier interface {
	Send(ctx context.Context, recipient string, message Message) error
}

// Scheduler registers a deferred completion check for a trip
type Scheduler interface {
	ScheduleCompletionCheck(ctx context.Context, tripID int64, runAt time.Time) error
}

// TripExporter renders trips as a downloadable report
type TripExporter interface {
	ExportTrips(trips []*entity.TripRequest) ([]byte, error)
}
