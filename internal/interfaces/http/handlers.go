package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/commute-approvals/internal/application/service"
	"github.com/garyjia/commute-approvals/internal/domain/apperror"
	"github.com/garyjia/commute-approvals/internal/domain/workflow"
)

// ActorHeader carries the chat user ID of whoever issues the request
const ActorHeader = "X-Actor-ID"

const actorKey = "actor"

// healthTimeout bounds each dependency ping
const healthTimeout = 2 * time.Second

// Handlers contains HTTP request handlers
type Handlers struct {
	deps   Dependencies
	config ServerConfig
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, config ServerConfig) *Handlers {
	return &Handlers{
		deps:   deps,
		config: config,
	}
}

// Response represents a standard API response
type Response struct {
	Success  bool                    `json:"success"`
	Data     interface{}             `json:"data,omitempty"`
	Error    string                  `json:"error,omitempty"`
	Problems []apperror.FieldProblem `json:"problems,omitempty"`
}

// HealthCheck pings every registered dependency
func (h *Handlers) HealthCheck(c *gin.Context) {
	checks := make(map[string]string, len(h.deps.HealthChecks))
	healthy := true

	for name, check := range h.deps.HealthChecks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			healthy = false
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}

	c.JSON(status, Response{
		Success: healthy,
		Data: gin.H{
			"status": state,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// requireActor rejects API calls that do not name their actor
func requireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := c.GetHeader(ActorHeader)
		if actor == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   ActorHeader + " header is required",
			})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorOf(c *gin.Context) string {
	return c.GetString(actorKey)
}

// parseID reads the :id path parameter
func parseID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.NewValidationError("id", "id must be a positive integer")
	}
	return id, nil
}

// writeError maps an application error to its HTTP status
func (h *Handlers) writeError(c *gin.Context, err error) {
	var ve *apperror.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, Response{
			Success:  false,
			Error:    "validation failed",
			Problems: ve.Problems,
		})
	case errors.Is(err, apperror.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error()})
	case errors.Is(err, workflow.ErrInvalidTransition), errors.Is(err, workflow.ErrGuardFailed),
		errors.Is(err, workflow.ErrInvalidState):
		c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error()})
	case errors.Is(err, apperror.ErrDependency):
		h.deps.Logger.Error("Dependency failure", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Error: "please retry later"})
	default:
		h.deps.Logger.Error("Unhandled error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal error"})
	}
}

// actionResponse is the JSON view of a service.ActionResult
type actionResponse struct {
	Kind      workflow.Kind         `json:"kind"`
	RequestID int64                 `json:"request_id"`
	Applied   bool                  `json:"applied"`
	Status    workflow.State        `json:"status"`
	Reason    string                `json:"reason,omitempty"`
	Effects   []workflow.SideEffect `json:"effects,omitempty"`
	Trip      interface{}           `json:"trip,omitempty"`
	Route     interface{}           `json:"route,omitempty"`
	Batch     interface{}           `json:"batch,omitempty"`
}

func toActionResponse(result *service.ActionResult) actionResponse {
	resp := actionResponse{
		Kind:      result.Kind,
		RequestID: result.RequestID,
		Applied:   result.Applied,
		Status:    result.Status,
		Reason:    string(result.Reason),
		Effects:   result.SideEffects,
	}
	if result.Trip != nil {
		resp.Trip = result.Trip
	}
	if result.Route != nil {
		resp.Route = result.Route
	}
	if result.Batch != nil {
		resp.Batch = result.Batch
	}
	return resp
}
