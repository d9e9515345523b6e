package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "tremor/internal/errors"
	"tremor/internal/services"
	"tremor/internal/storage"
	api "tremor/pkg/contracts/api/v1"
	"tremor/pkg/contracts/domain"
)

// SignalHandler serves computed signals and the shock feed.
type SignalHandler struct {
	signals *services.SignalService
	logger  *slog.Logger
}

// NewSignalHandler creates a signal handler.
func NewSignalHandler(signals *services.SignalService, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{
		signals: signals,
		logger:  logger.With(slog.String("component", "signal_handler")),
	}
}

// Routes returns the signal routes.
func (h *SignalHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	return r
}

// List handles GET /api/signals?transform_id=&shocks_only=. The shock
// view joins events and transforms; the per-transform view is the raw
// signal history in timestamp order.
func (h *SignalHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("shocks_only") == "true" {
		shocks, err := h.signals.ListShocks(r.Context(), storage.ShockFilter{Limit: queryLimit(r)})
		if err != nil {
			respondError(w, r, err)
			return
		}
		render.JSON(w, r, api.ListResponse[domain.Shock]{Items: shocks, Total: len(shocks)})
		return
	}

	transformID := q.Get("transform_id")
	if transformID == "" {
		respondError(w, r, apierrors.ErrValidation("transform_id", "required unless shocks_only=true"))
		return
	}
	signals, err := h.signals.SignalsByTransform(r.Context(), transformID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, api.ListResponse[domain.Signal]{Items: signals, Total: len(signals)})
}

// Get handles GET /api/signals/{id}.
func (h *SignalHandler) Get(w http.ResponseWriter, r *http.Request) {
	signal, err := h.signals.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, signal)
}
