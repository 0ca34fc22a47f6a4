package entity

import (
	"time"

	"github.com/garyjia/commute-approvals/internal/domain/workflow"
)

// RouteRequest asks operations to add the requester to a recurring commute route
type RouteRequest struct {
	ID          int64          `json:"id"`
	Status      workflow.State `json:"status"`
	Comment     string         `json:"comment"`
	RequesterID string         `json:"requester_id"`
	ManagerID   string         `json:"manager_id"`
	HomeAddress string         `json:"home_address"`
	BusStop     string         `json:"bus_stop"`
	TakeOffTime string         `json:"take_off_time"`
	BatchID     *int64         `json:"batch_id,omitempty"`
	DecidedBy   string         `json:"decided_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Batch groups the trips of one departure on a route
type Batch struct {
	ID             int64     `json:"id"`
	RouteRequestID int64     `json:"route_request_id"`
	RouteName      string    `json:"route_name"`
	Label          string    `json:"label"`
	TakeOffTime    string    `json:"take_off_time"`
	Capacity       int       `json:"capacity"`
	CabRegNumber   string    `json:"cab_reg_number"`
	Provider       string    `json:"provider"`
	CreatedAt      time.Time `json:"created_at"`
}

// Department maps a department to the manager who approves its trips
type Department struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	HeadID string `json:"head_id"`
}
