package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"tremor/internal/causal"
	"tremor/internal/storage"
	"tremor/pkg/contracts"
	api "tremor/pkg/contracts/api/v1"
)

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	repo    *storage.Repository
	network *causal.Network
	logger  *slog.Logger
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(repo *storage.Repository, network *causal.Network, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		repo:    repo,
		network: network,
		logger:  logger.With(slog.String("component", "health_handler")),
	}
}

// Health handles GET /healthz. The database check is a cheap count query;
// a failure degrades the status instead of failing the endpoint.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	components := map[string]any{
		"network_nodes": len(h.network.Nodes()),
		"network_edges": h.network.NumEdges(),
		"build":         contracts.GetVersionInfo(),
	}

	if _, err := h.repo.ListTransforms(r.Context()); err != nil {
		status = "degraded"
		components["database"] = "unavailable"
		h.logger.WarnContext(r.Context(), "health check database probe failed",
			slog.String("error", err.Error()))
	} else {
		components["database"] = "ok"
	}

	if status != "healthy" {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, api.HealthResponse{
		Status:     status,
		Version:    contracts.Version,
		Components: components,
	})
}
