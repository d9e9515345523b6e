package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"tremor/internal/causal"
	apierrors "tremor/internal/errors"
	api "tremor/pkg/contracts/api/v1"
)

// NetworkHandler serves causal network queries.
type NetworkHandler struct {
	network *causal.Network
	logger  *slog.Logger
}

// NewNetworkHandler creates a network handler.
func NewNetworkHandler(network *causal.Network, logger *slog.Logger) *NetworkHandler {
	return &NetworkHandler{
		network: network,
		logger:  logger.With(slog.String("component", "network_handler")),
	}
}

// Routes returns the network routes.
func (h *NetworkHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/downstream/{node}", h.Downstream)
	r.Get("/upstream/{node}", h.Upstream)
	r.Get("/edge", h.Edge)
	return r
}

// Downstream handles GET /api/network/downstream/{node}.
func (h *NetworkHandler) Downstream(w http.ResponseWriter, r *http.Request) {
	node := chi.URLParam(r, "node")
	if !h.network.HasNode(node) {
		respondError(w, r, apierrors.NotFoundError("network node"))
		return
	}
	nodes := h.network.Downstream(node)
	render.JSON(w, r, api.ListResponse[string]{Items: nodes, Total: len(nodes)})
}

// Upstream handles GET /api/network/upstream/{node}.
func (h *NetworkHandler) Upstream(w http.ResponseWriter, r *http.Request) {
	node := chi.URLParam(r, "node")
	if !h.network.HasNode(node) {
		respondError(w, r, apierrors.NotFoundError("network node"))
		return
	}
	nodes := h.network.Upstream(node)
	render.JSON(w, r, api.ListResponse[string]{Items: nodes, Total: len(nodes)})
}

// edgeResponse carries one directed edge with its metadata.
type edgeResponse struct {
	Cause      string  `json:"cause"`
	Effect     string  `json:"effect"`
	FStatistic float64 `json:"f_statistic"`
	PValue     float64 `json:"p_value"`
	Lag        int     `json:"lag"`
}

// Edge handles GET /api/network/edge?cause=&effect=.
func (h *NetworkHandler) Edge(w http.ResponseWriter, r *http.Request) {
	cause := r.URL.Query().Get("cause")
	effect := r.URL.Query().Get("effect")
	if cause == "" || effect == "" {
		respondError(w, r, apierrors.ErrValidation("cause", "cause and effect are required"))
		return
	}
	meta, ok := h.network.Edge(cause, effect)
	if !ok {
		respondError(w, r, apierrors.NotFoundError("network edge"))
		return
	}
	render.JSON(w, r, edgeResponse{
		Cause:      cause,
		Effect:     effect,
		FStatistic: meta.FStatistic,
		PValue:     meta.PValue,
		Lag:        meta.Lag,
	})
}
