package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/cliff-rosen/adam-bot/internal/repository"
	"github.com/cliff-rosen/adam-bot/pkg/models"
)

// StartInstanceRequest is the payload for starting a workflow instance.
type StartInstanceRequest struct {
	DefinitionID   string         `json:"definition_id"`
	Input          map[string]any `json:"input,omitempty"`
	ConversationID *int64         `json:"conversation_id,omitempty"`
	// Wait makes the request block until the instance suspends or
	// finishes, instead of returning the pending instance immediately.
	Wait bool `json:"wait,omitempty"`
}

// StartInstance creates and starts a workflow instance.
// (POST /api/v1/instances)
func (s *Server) StartInstance(c echo.Context) error {
	ctx := c.Request().Context()

	var req StartInstanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.DefinitionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "definition_id is required")
	}

	var (
		inst *models.WorkflowInstance
		err  error
	)
	if req.Wait {
		inst, err = s.Engine.Start(ctx, req.DefinitionID, req.Input, req.ConversationID)
	} else {
		inst, err = s.Engine.StartAsync(ctx, req.DefinitionID, req.Input, req.ConversationID)
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, inst)
}

// ListInstances returns instances filtered by the query parameters.
// (GET /api/v1/instances)
func (s *Server) ListInstances(c echo.Context) error {
	opts := repository.InstanceListOpts{
		Status:     models.InstanceStatus(c.QueryParam("status")),
		WorkflowID: c.QueryParam("workflow_id"),
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		opts.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "offset must be a non-negative integer")
		}
		opts.Offset = n
	}

	instances, err := s.Engine.List(c.Request().Context(), opts)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, instances)
}

// GetInstance returns the current state of an instance.
// (GET /api/v1/instances/:id)
func (s *Server) GetInstance(c echo.Context) error {
	inst, err := s.Engine.State(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, inst)
}

// ResumeInstance applies a checkpoint decision to a waiting instance.
// (POST /api/v1/instances/:id/resume)
func (s *Server) ResumeInstance(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.ResumeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.Action == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "action is required")
	}

	inst, err := s.Engine.ResumeAsync(ctx, c.Param("id"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, inst)
}

// CancelInstance cancels an instance.
// (POST /api/v1/instances/:id/cancel)
func (s *Server) CancelInstance(c echo.Context) error {
	inst, err := s.Engine.Cancel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, inst)
}

// PauseInstance pauses a running instance.
// (POST /api/v1/instances/:id/pause)
func (s *Server) PauseInstance(c echo.Context) error {
	inst, err := s.Engine.Pause(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, inst)
}

// ContinueInstance resumes a paused instance.
// (POST /api/v1/instances/:id/continue)
func (s *Server) ContinueInstance(c echo.Context) error {
	inst, err := s.Engine.ContinueAsync(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, inst)
}
