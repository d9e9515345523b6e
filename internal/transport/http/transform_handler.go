package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "tremor/internal/errors"
	"tremor/internal/services"
	api "tremor/pkg/contracts/api/v1"
	"tremor/pkg/contracts/domain"
)

// TransformHandler serves the signal transform catalog.
type TransformHandler struct {
	transforms *services.TransformService
	logger     *slog.Logger
}

// NewTransformHandler creates a transform handler.
func NewTransformHandler(transforms *services.TransformService, logger *slog.Logger) *TransformHandler {
	return &TransformHandler{
		transforms: transforms,
		logger:     logger.With(slog.String("component", "transform_handler")),
	}
}

// Routes returns the transform routes.
func (h *TransformHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	return r
}

// Create handles POST /api/transforms.
func (h *TransformHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req api.TransformCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	transform, err := h.transforms.Create(r.Context(), domain.SignalTransform{
		Name:        req.Name,
		Description: req.Description,
		EventTypes:  req.EventTypes,
		Expression:  req.Expression,
		NodeMapping: req.NodeMapping,
		Unit:        req.Unit,
		ThresholdSD: req.ThresholdSD,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, transform)
}

// List handles GET /api/transforms.
func (h *TransformHandler) List(w http.ResponseWriter, r *http.Request) {
	transforms, err := h.transforms.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, api.ListResponse[domain.SignalTransform]{Items: transforms, Total: len(transforms)})
}

// Get handles GET /api/transforms/{id}.
func (h *TransformHandler) Get(w http.ResponseWriter, r *http.Request) {
	transform, err := h.transforms.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, transform)
}
