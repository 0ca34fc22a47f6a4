package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/commute-approvals/internal/application/pagination"
	"github.com/garyjia/commute-approvals/internal/application/port"
	"github.com/garyjia/commute-approvals/internal/application/service"
	"github.com/garyjia/commute-approvals/internal/application/session"
	"github.com/garyjia/commute-approvals/internal/domain/apperror"
	"github.com/garyjia/commute-approvals/internal/domain/entity"
	"github.com/garyjia/commute-approvals/internal/domain/workflow"
	"github.com/garyjia/commute-approvals/internal/infrastructure/external/lark"
	"github.com/garyjia/commute-approvals/pkg/utils"
)

// filterDateLayout is the date format of the departureTime range filter
const filterDateLayout = "2006-01-02"

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// tripResponse adds presentation flags to a trip
type tripResponse struct {
	*entity.TripRequest
	Reschedulable bool `json:"reschedulable"`
}

// actionRequest is the body accepted by the action endpoints
type actionRequest struct {
	Comment    string                 `json:"comment"`
	Route      *service.RouteApproval `json:"route,omitempty"`
	Assignment *service.CabAssignment `json:"assignment,omitempty"`
}

// bindOptionalJSON decodes the body into obj, treating an empty body as no input
func bindOptionalJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return apperror.NewValidationError("body", "request body must be valid JSON")
	}
	return nil
}

// SaveSession merges the posted fields into the caller's session for :flow
func (h *Handlers) SaveSession(c *gin.Context) {
	var fields session.Values
	if err := bindOptionalJSON(c, &fields); err != nil {
		h.writeError(c, err)
		return
	}

	key := session.NewKey(session.Flow(c.Param("flow")), actorOf(c))
	merged, err := h.deps.Coordinator.BeginMultiStepRequest(c.Request.Context(), key, fields)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: merged})
}

// ReplaceSession starts the caller's session for a flow over from the body
func (h *Handlers) ReplaceSession(c *gin.Context) {
	var fields session.Values
	if err := bindOptionalJSON(c, &fields); err != nil {
		h.writeError(c, err)
		return
	}

	key := session.NewKey(session.Flow(c.Param("flow")), actorOf(c))
	replaced, err := h.deps.Coordinator.RestartMultiStepRequest(c.Request.Context(), key, fields)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: replaced})
}

// FinalizeTrip creates a trip request from the caller's trip session
func (h *Handlers) FinalizeTrip(c *gin.Context) {
	var remaining session.Values
	if err := bindOptionalJSON(c, &remaining); err != nil {
		h.writeError(c, err)
		return
	}

	key := session.NewKey(session.FlowTripRequest, actorOf(c))
	created, err := h.deps.Coordinator.FinalizeTripRequest(c.Request.Context(), key, remaining)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: h.tripView(created.Trip)})
}

// FinalizeRoute creates a route request from the caller's route session
func (h *Handlers) FinalizeRoute(c *gin.Context) {
	var remaining session.Values
	if err := bindOptionalJSON(c, &remaining); err != nil {
		h.writeError(c, err)
		return
	}

	key := session.NewKey(session.FlowRouteRequest, actorOf(c))
	created, err := h.deps.Coordinator.FinalizeRouteRequest(c.Request.Context(), key, remaining)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: created.Route})
}

// GetTrip returns a single trip request
func (h *Handlers) GetTrip(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	trip, err := h.deps.Coordinator.GetTrip(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: h.tripView(trip)})
}

// GetRoute returns a single route request
func (h *Handlers) GetRoute(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	route, err := h.deps.Coordinator.GetRoute(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: route})
}

// ListTrips returns one page of trips
func (h *Handlers) ListTrips(c *gin.Context) {
	req, err := pagination.ParsePageRequest(c.Query("page"), c.Query("size"), h.config.DefaultPageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	filter, err := tripFilter(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	page, err := h.deps.Coordinator.ListTrips(c.Request.Context(), req, filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	views := make([]tripResponse, 0, len(page.Data))
	for _, trip := range page.Data {
		views = append(views, h.tripView(trip))
	}
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    pagination.PageResult[tripResponse]{Data: views, PageMeta: page.PageMeta},
	})
}

// ListRoutes returns one page of route requests
func (h *Handlers) ListRoutes(c *gin.Context) {
	req, err := pagination.ParsePageRequest(c.Query("page"), c.Query("size"), h.config.DefaultPageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	status, err := statusFilter(c.Query("status"))
	if err != nil {
		h.writeError(c, apperror.NewValidationError("status", err.Error()))
		return
	}

	page, err := h.deps.Coordinator.ListRoutes(c.Request.Context(), req, port.RouteFilter{
		Status:      status,
		RequesterID: strings.TrimSpace(c.Query("requester")),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: page})
}

// ExportTrips downloads the filtered trip list as a spreadsheet
func (h *Handlers) ExportTrips(c *gin.Context) {
	filter, err := tripFilter(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	data, err := h.deps.Reports.ExportTrips(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	filename := fmt.Sprintf("trips-%s.xlsx", time.Now().In(h.config.Location).Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// TripAction applies :trigger to a trip request
func (h *Handlers) TripAction(c *gin.Context) {
	h.applyAction(c, workflow.KindTrip)
}

// RouteAction applies :trigger to a route request
func (h *Handlers) RouteAction(c *gin.Context) {
	h.applyAction(c, workflow.KindRoute)
}

func (h *Handlers) applyAction(c *gin.Context, kind workflow.Kind) {
	id, err := parseID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	var body actionRequest
	if err := bindOptionalJSON(c, &body); err != nil {
		h.writeError(c, err)
		return
	}

	trigger := workflow.Trigger(strings.ToUpper(c.Param("trigger")))
	result, err := h.deps.Coordinator.ProcessApprovalAction(c.Request.Context(), kind, id, trigger, actorOf(c), service.ActionPayload{
		Comment:    body.Comment,
		Route:      body.Route,
		Assignment: body.Assignment,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toActionResponse(result)})
}

// AssignCab stores the driver and cab of an approved trip
func (h *Handlers) AssignCab(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	var submission service.CabAssignment
	if err := c.ShouldBindJSON(&submission); err != nil {
		h.writeError(c, apperror.NewValidationError("body", "request body must be valid JSON"))
		return
	}

	result, err := h.deps.Coordinator.CompleteCabAssignment(c.Request.Context(), id, actorOf(c), submission)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toActionResponse(result)})
}

// CardAction answers Lark card callbacks, including the URL verification handshake
func (h *Handlers) CardAction(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.writeError(c, apperror.NewValidationError("body", "request body could not be read"))
		return
	}

	if h.deps.Callbacks != nil {
		body, err = h.deps.Callbacks.Open(
			c.GetHeader(lark.HeaderTimestamp),
			c.GetHeader(lark.HeaderNonce),
			c.GetHeader(lark.HeaderSignature),
			body,
		)
		switch {
		case errors.Is(err, lark.ErrUnverifiedCallback):
			h.deps.Logger.Error("Rejected unverified callback", "error", err)
			c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "callback verification failed"})
			return
		case err != nil:
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "malformed card action"})
			return
		}
	}

	var handshake struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(body, &handshake); err == nil && handshake.Type == "url_verification" {
		c.JSON(http.StatusOK, gin.H{"challenge": handshake.Challenge})
		return
	}

	resp, err := h.deps.CardActions.ProcessEvent(c.Request.Context(), body)
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		h.deps.Logger.Error("Rejected card action", "error", err)
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "malformed card action"})
		return
	case err != nil:
		h.writeError(c, err)
		return
	case resp == nil:
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) tripView(trip *entity.TripRequest) tripResponse {
	return tripResponse{
		TripRequest:   trip,
		Reschedulable: !utils.IsRescheduleTimedOut(trip.DepartureTime, time.Now()),
	}
}

// tripFilter reads the trip listing filters from the query string
func tripFilter(c *gin.Context) (port.TripFilter, error) {
	problems := &apperror.ValidationError{}

	status, err := statusFilter(c.Query("status"))
	if err != nil {
		problems.Add("status", err.Error())
	}
	departure, err := utils.ParseDateRange(c.Query("departureTime"), filterDateLayout)
	if err != nil {
		problems.Add("departureTime", err.Error())
	}

	if err := problems.OrNil(); err != nil {
		return port.TripFilter{}, err
	}
	return port.TripFilter{
		Status:      status,
		Department:  strings.TrimSpace(c.Query("department")),
		RequesterID: strings.TrimSpace(c.Query("requester")),
		Departure:   departure,
	}, nil
}

func statusFilter(raw string) (workflow.State, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	status := workflow.State(strings.ToUpper(raw))
	if !status.IsValid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return status, nil
}
