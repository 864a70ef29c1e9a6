// Package api contains the HTTP handlers for the workflow service.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cliff-rosen/adam-bot/internal/stream"
	"github.com/cliff-rosen/adam-bot/internal/workflow"
	"github.com/cliff-rosen/adam-bot/pkg/models"
)

// Server holds the dependencies for the API server.
type Server struct {
	Engine   *workflow.Engine
	Registry *workflow.Registry
	Broker   *stream.Broker
}

// NewServer creates a new Server.
func NewServer(engine *workflow.Engine, registry *workflow.Registry, broker *stream.Broker) *Server {
	return &Server{Engine: engine, Registry: registry, Broker: broker}
}

// Register mounts the API routes on the echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.HandleHealth)

	v1 := e.Group("/api/v1")
	v1.GET("/workflows", s.ListWorkflows)
	v1.GET("/workflows/categories", s.ListCategories)
	v1.GET("/workflows/:id", s.GetWorkflow)
	v1.PUT("/workflows", s.PutWorkflow)

	v1.POST("/instances", s.StartInstance)
	v1.GET("/instances", s.ListInstances)
	v1.GET("/instances/:id", s.GetInstance)
	v1.POST("/instances/:id/resume", s.ResumeInstance)
	v1.POST("/instances/:id/cancel", s.CancelInstance)
	v1.POST("/instances/:id/pause", s.PauseInstance)
	v1.POST("/instances/:id/continue", s.ContinueInstance)
	v1.GET("/instances/:id/events", s.StreamEvents)
}

// HealthStatus represents the health check response.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HandleHealth returns basic health status (always returns 200 OK).
func (s *Server) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "adam-bot",
		Version:   "1.0.0",
	})
}

// httpError maps domain errors onto HTTP status codes.
func httpError(err error) error {
	var schemaErr *models.SchemaValidationError
	var designErr *models.GraphDesignError

	switch {
	case errors.As(err, &schemaErr), errors.Is(err, models.ErrInvalidAction):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrDefinitionNotFound), errors.Is(err, models.ErrInstanceNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidState), errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrDefinitionExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &designErr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
