package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cliff-rosen/adam-bot/pkg/models"
)

// ListWorkflows returns the latest version of every workflow definition,
// optionally filtered by category.
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		defs []*models.GraphDefinition
		err  error
	)
	if category := c.QueryParam("category"); category != "" {
		defs, err = s.Registry.ByCategory(ctx, category)
	} else {
		defs, err = s.Registry.List(ctx)
	}
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, defs)
}

// ListCategories returns the distinct workflow categories.
// (GET /api/v1/workflows/categories)
func (s *Server) ListCategories(c echo.Context) error {
	categories, err := s.Registry.Categories(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, categories)
}

// GetWorkflow returns one definition version by id.
// (GET /api/v1/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	def, err := s.Registry.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, def)
}

// PutWorkflow publishes a workflow definition version.
// (PUT /api/v1/workflows)
func (s *Server) PutWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	var def models.GraphDefinition
	if err := c.Bind(&def); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	// A new workflow concept gets a fresh stable id. An existing
	// WorkflowID publishes the next version of that concept.
	if def.WorkflowID == "" {
		def.WorkflowID = uuid.New().String()
	}

	published, err := s.Registry.Register(ctx, &def)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, published)
}
