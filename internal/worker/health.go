package worker

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agendaclin/agendaclin/internal/api/middleware"
	"github.com/agendaclin/agendaclin/internal/api/response"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string        `json:"status"`
	Version string        `json:"version"`
	Events  StatsSnapshot `json:"events"`
}

// NewHealthRouter serves GET /health for the platform's liveness checks.
func NewHealthRouter(version string, stats *Stats) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.ContentTypeJSON)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, HealthResponse{
			Status:  "healthy",
			Version: version,
			Events:  stats.Snapshot(),
		})
	})
	return r
}
