package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Pinger checks connectivity to a backing database
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	postgres Pinger
	corpus   TicketIngester
	backend  string
}

// NewHealthHandler creates a new health handler. A nil postgres reports
// the database as not configured.
func NewHealthHandler(postgres Pinger, corpus TicketIngester, backend string) *HealthHandler {
	return &HealthHandler{postgres: postgres, corpus: corpus, backend: backend}
}

// HealthResponse is the response for basic health check
type HealthResponse struct {
	Status string `json:"status"`
}

// DatabaseHealthResponse is the response for database health check
type DatabaseHealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// CorpusHealthResponse is the response for corpus health check
type CorpusHealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Records int    `json:"records"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status: "healthy",
	})
}

// PostgresHealth handles GET /health/postgres
func (h *HealthHandler) PostgresHealth(c echo.Context) error {
	if h.postgres == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not_configured",
			"error":  "PostgreSQL is not configured",
		})
	}

	if err := h.postgres.PingContext(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "error",
			"error":  err.Error(),
		})
	}

	return c.JSON(http.StatusOK, DatabaseHealthResponse{
		Status:   "connected",
		Database: "postgres",
	})
}

// CorpusHealth handles GET /health/corpus
func (h *HealthHandler) CorpusHealth(c echo.Context) error {
	n, err := h.corpus.CorpusSize(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"backend": h.backend,
			"error":   err.Error(),
		})
	}
	return c.JSON(http.StatusOK, CorpusHealthResponse{
		Status:  "ok",
		Backend: h.backend,
		Records: n,
	})
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/health", h.Health)
	g.GET("/health/postgres", h.PostgresHealth)
	g.GET("/health/corpus", h.CorpusHealth)
}
