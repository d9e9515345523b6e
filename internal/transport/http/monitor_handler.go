package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"tremor/internal/causal"
	apierrors "tremor/internal/errors"
	"tremor/internal/services"
	"tremor/internal/storage"
	api "tremor/pkg/contracts/api/v1"
	"tremor/pkg/contracts/domain"
)

// MonitorHandler serves the live monitoring surface: recent shocks, the
// causal network snapshot and the propagation monitors.
type MonitorHandler struct {
	signals     *services.SignalService
	propagation *services.PropagationService
	transforms  *services.TransformService
	network     *causal.Network
	logger      *slog.Logger
}

// NewMonitorHandler creates a monitor handler.
func NewMonitorHandler(
	signals *services.SignalService,
	propagation *services.PropagationService,
	transforms *services.TransformService,
	network *causal.Network,
	logger *slog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		signals:     signals,
		propagation: propagation,
		transforms:  transforms,
		network:     network,
		logger:      logger.With(slog.String("component", "monitor_handler")),
	}
}

// Routes returns the monitor routes.
func (h *MonitorHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/shocks", h.Shocks)
	r.Get("/network", h.Network)
	r.Get("/propagations", h.Propagations)
	r.Post("/propagations/{id}/check", h.CheckPropagation)
	r.Post("/propagations/check-all", h.CheckAllPropagations)
	return r
}

// Shocks handles GET /api/monitor/shocks?node=&from=&to=. Node and period
// filters apply to the transform's mapped node and the signal timestamp;
// they narrow the query itself, so the limit counts matching shocks.
func (h *MonitorHandler) Shocks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.ShockFilter{
		Node:  q.Get("node"),
		Limit: queryLimit(r),
	}
	var err error
	if v := q.Get("from"); v != "" {
		if filter.From, err = parseTimestamp(v); err != nil {
			respondError(w, r, apierrors.ErrValidation("from", "must be RFC 3339 or YYYY-MM-DD"))
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if filter.To, err = parseTimestamp(v); err != nil {
			respondError(w, r, apierrors.ErrValidation("to", "must be RFC 3339 or YYYY-MM-DD"))
			return
		}
	}

	shocks, err := h.signals.ListShocks(r.Context(), filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, api.ListResponse[domain.Shock]{Items: shocks, Total: len(shocks)})
}

// networkNode is one node of the monitor snapshot. HasTransform reports
// whether any registered transform feeds the node, i.e. whether shocks
// can originate there.
type networkNode struct {
	Name         string `json:"name"`
	HasTransform bool   `json:"has_transform"`
}

// networkSnapshot is the monitor view of the causal network.
type networkSnapshot struct {
	Nodes []networkNode        `json:"nodes"`
	Edges []domain.GrangerEdge `json:"edges"`
}

// Network handles GET /api/monitor/network.
func (h *MonitorHandler) Network(w http.ResponseWriter, r *http.Request) {
	transforms, err := h.transforms.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	mapped := make(map[string]bool, len(transforms))
	for _, t := range transforms {
		mapped[t.NodeMapping] = true
	}

	names := h.network.Nodes()
	nodes := make([]networkNode, 0, len(names))
	for _, name := range names {
		nodes = append(nodes, networkNode{Name: name, HasTransform: mapped[name]})
	}
	render.JSON(w, r, networkSnapshot{
		Nodes: nodes,
		Edges: h.network.Edges(),
	})
}

// Propagations handles GET /api/monitor/propagations?signal_id=. Without
// a signal filter it lists every monitor still open.
func (h *MonitorHandler) Propagations(w http.ResponseWriter, r *http.Request) {
	var (
		results []domain.PropagationResult
		err     error
	)
	if signalID := r.URL.Query().Get("signal_id"); signalID != "" {
		results, err = h.propagation.ListBySignal(r.Context(), signalID)
	} else {
		results, err = h.propagation.ListOpen(r.Context())
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, api.ListResponse[domain.PropagationResult]{Items: results, Total: len(results)})
}

// CheckPropagation handles POST /api/monitor/propagations/{id}/check.
func (h *MonitorHandler) CheckPropagation(w http.ResponseWriter, r *http.Request) {
	result, err := h.propagation.Check(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// CheckAllPropagations handles POST /api/monitor/propagations/check-all.
func (h *MonitorHandler) CheckAllPropagations(w http.ResponseWriter, r *http.Request) {
	results, err := h.propagation.CheckAllOpen(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, api.ListResponse[domain.PropagationResult]{Items: results, Total: len(results)})
}
