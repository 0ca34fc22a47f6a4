package entity

import (
	"time"

	"github.com/garyjia/commute-approvals/internal/domain/workflow"
)

// TripRequest is a one-off trip proposed by a requester and approved by a manager
type TripRequest struct {
	ID            int64          `json:"id"`
	Status        workflow.State `json:"status"`
	Comment       string         `json:"comment"`
	RequesterID   string         `json:"requester_id"`
	RiderID       string         `json:"rider_id"`
	ApproverID    string         `json:"approver_id"`
	Department    string         `json:"department"`
	Origin        string         `json:"origin"`
	Destination   string         `json:"destination"`
	DepartureTime time.Time      `json:"departure_time"`
	Passengers    int            `json:"passengers"`
	Reason        string         `json:"reason"`
	TripType      string         `json:"trip_type"`
	Fulfillment   *Fulfillment   `json:"fulfillment,omitempty"`
	DecidedBy     string         `json:"decided_by,omitempty"`
	ConfirmedBy   string         `json:"confirmed_by,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Fulfillment holds the driver and cab assigned to a trip
type Fulfillment struct {
	DriverName  string `json:"driver_name"`
	DriverPhone string `json:"driver_phone"`
	CabModel    string `json:"cab_model"`
	RegNumber   string `json:"reg_number"`
}

// RiderIsRequester reports whether the requester travels themself
func (t *TripRequest) RiderIsRequester() bool {
	return t.RiderID == "" || t.RiderID == t.RequesterID
}

// Rider returns the effective rider of the trip
func (t *TripRequest) Rider() string {
	if t.RiderID == "" {
		return t.RequesterID
	}
	return t.RiderID
}
