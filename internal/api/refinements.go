// Package api contains the HTTP handlers for the refinement service.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"adversarial-mcp/backend/internal/ratelimit"
	"adversarial-mcp/backend/internal/repository"
	"adversarial-mcp/backend/internal/services"
)

// Server holds the dependencies for the API server.
type Server struct {
	Service *services.RefinementService
	Store   repository.EntryStore
}

// NewServer creates a new Server.
func NewServer(service *services.RefinementService, store repository.EntryStore) *Server {
	return &Server{Service: service, Store: store}
}

// RegisterHandlers mounts the refinement routes on a route group.
func RegisterHandlers(g *echo.Group, s *Server) {
	g.POST("/refinements", s.CreateRefinement)
	g.GET("/refinements/:id", s.GetRefinement)
}

// RefinementRequest is the trigger payload.
type RefinementRequest struct {
	Prompt   string   `json:"prompt"`
	Language string   `json:"language,omitempty"`
	Features []string `json:"features,omitempty"`
}

// CreateRefinement runs a refinement workflow synchronously and returns the
// result. A non-empty features list selects the feature-enhanced path.
// (POST /api/v1/refinements)
func (s *Server) CreateRefinement(c echo.Context) error {
	ctx := c.Request().Context()

	var req RefinementRequest
	if err := c.Bind(&req); err != nil {
		return problem(c, http.StatusBadRequest, "Invalid request", err.Error())
	}
	if req.Prompt == "" {
		return problem(c, http.StatusBadRequest, "Invalid request", "prompt is required")
	}

	var result any
	var err error
	if len(req.Features) > 0 {
		result, err = s.Service.GenerateFeatureEnhancedCode(ctx, req.Prompt, req.Features, req.Language)
	} else {
		result, err = s.Service.RunWorkflow(ctx, req.Prompt, req.Language)
	}
	if err != nil {
		var rlErr *ratelimit.Error
		if errors.As(err, &rlErr) {
			return problem(c, http.StatusTooManyRequests, "Rate limit exceeded", err.Error())
		}
		return problem(c, http.StatusInternalServerError, "Refinement failed", err.Error())
	}

	return c.JSON(http.StatusOK, result)
}

// GetRefinement returns a stored refinement entry.
// (GET /api/v1/refinements/:id)
func (s *Server) GetRefinement(c echo.Context) error {
	ctx := c.Request().Context()

	entry, err := s.Store.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return problem(c, http.StatusNotFound, "Not found", err.Error())
		}
		return problem(c, http.StatusInternalServerError, "Lookup failed", err.Error())
	}
	return c.JSON(http.StatusOK, entry)
}

// problem writes an RFC 7807 Problem Details response.
func problem(c echo.Context, status int, title, detail string) error {
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	return c.JSON(status, ProblemDetails{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
