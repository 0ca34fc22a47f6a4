// Package session accumulates partial form data across disconnected interaction rounds.
package session

import (
	"strings"

	"github.com/garyjia/commute-approvals/internal/domain/apperror"
)

// Flow names the multi-step interaction a session belongs to
type Flow string

const (
	FlowTripRequest        Flow = "trip_request"
	FlowRouteRequest       Flow = "route_request"
	FlowDriverRegistration Flow = "driver_registration"
)

const keyPrefix = "session"

// Key identifies one in-flight session. Two flows of the same actor never share a key.
type Key struct {
	Flow    Flow
	ActorID string
}

// NewKey creates a session key for actorID in flow
func NewKey(flow Flow, actorID string) Key {
	return Key{Flow: flow, ActorID: actorID}
}

// String renders the key as stored in the backend
func (k Key) String() string {
	return keyPrefix + ":" + string(k.Flow) + ":" + k.ActorID
}

// Validate checks both parts are present and the flow cannot bleed into the actor part
func (k Key) Validate() error {
	problems := &apperror.ValidationError{}
	if strings.TrimSpace(string(k.Flow)) == "" {
		problems.Add("flow", "Please provide flow.")
	} else if strings.Contains(string(k.Flow), ":") {
		problems.Add("flow", "flow must not contain ':'")
	}
	if strings.TrimSpace(k.ActorID) == "" {
		problems.Add("actorId", "Please provide actorId.")
	}
	return problems.OrNil()
}
