package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adversarial-mcp/backend/internal/analytics"
	"adversarial-mcp/backend/internal/logging"
	"adversarial-mcp/backend/internal/repository"
	"adversarial-mcp/backend/internal/selector"
	"adversarial-mcp/backend/internal/services"
	"adversarial-mcp/backend/pkg/models"
)

type stubLLM struct{}

func (stubLLM) Call(_ context.Context, _ models.ModelConfig, input, action, _ string) (string, error) {
	if action == services.ActionGenerate {
		return "def add(x, y):\n    return x + y", nil
	}
	return "", nil
}

func newTestServer(t *testing.T) (*echo.Echo, *repository.MemoryEntryStore) {
	t.Helper()
	pool := []models.ModelConfig{{ID: "m"}}
	sel, err := selector.New(selector.StrategyRoundRobin, map[models.TaskType][]models.ModelConfig{
		models.TaskGeneration: pool,
		models.TaskChecking:   pool,
		models.TaskFixing:     pool,
		models.TaskFeature:    pool,
	})
	require.NoError(t, err)

	store := repository.NewMemoryEntryStore()
	svc := services.NewRefinementService(store, stubLLM{}, sel,
		analytics.NopSink{}, logging.NewNop(),
		services.Config{MaxIterations: 5, IterationLimit: 3})

	e := echo.New()
	RegisterHandlers(e.Group("/api/v1"), NewServer(svc, store))
	return e, store
}

func TestCreateRefinement(t *testing.T) {
	e, _ := newTestServer(t)

	body := `{"prompt": "add two numbers", "language": "python"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/refinements", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.RefinementResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Iterations)
	assert.Contains(t, result.Code, "def add")
	assert.NotEmpty(t, result.ID)
}

func TestCreateRefinement_MissingPrompt(t *testing.T) {
	e, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/refinements", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/problem+json")
}

func TestCreateRefinement_FeaturePath(t *testing.T) {
	e, _ := newTestServer(t)

	body := `{"prompt": "add two numbers", "features": ["logging", "validation", "caching"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/refinements", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.RefinementResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 5, result.Iterations, "feature path consumes the full budget")
	assert.Equal(t, 1, result.FeaturesImplemented, "one stride fits in five iterations")
}

func TestGetRefinement(t *testing.T) {
	e, store := newTestServer(t)

	entry := &models.RefinementEntry{Prompt: "p", Status: models.StatusCompleted}
	require.NoError(t, store.Create(context.Background(), entry))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/refinements/"+entry.ID, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.RefinementEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, entry.ID, got.ID)
}

func TestGetRefinement_NotFound(t *testing.T) {
	e, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/refinements/missing", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	h := NewHandler()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.HandleHealth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "adversarial-mcp", status.Service)
}
