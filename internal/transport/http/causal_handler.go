package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "tremor/internal/errors"
	"tremor/internal/exporter"
	"tremor/internal/services"
	api "tremor/pkg/contracts/api/v1"
	"tremor/pkg/contracts/domain"
)

// CausalHandler serves event-study runs, stored results and exports.
type CausalHandler struct {
	studies    *services.StudyService
	transforms *services.TransformService
	exporter   *exporter.StudyExporter
	logger     *slog.Logger
}

// NewCausalHandler creates a causal test handler.
func NewCausalHandler(
	studies *services.StudyService,
	transforms *services.TransformService,
	studyExporter *exporter.StudyExporter,
	logger *slog.Logger,
) *CausalHandler {
	return &CausalHandler{
		studies:    studies,
		transforms: transforms,
		exporter:   studyExporter,
		logger:     logger.With(slog.String("component", "causal_handler")),
	}
}

// Routes returns the causal test routes.
func (h *CausalHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/run", h.Run)
	r.Post("/run-all", h.RunAll)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/export", h.Export)
	return r
}

// Run handles POST /api/causal-tests/run.
func (h *CausalHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req api.CausalTestRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	result, err := h.studies.Run(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// RunAll handles POST /api/causal-tests/run-all. An empty body is allowed
// and runs with configured defaults.
func (h *CausalHandler) RunAll(w http.ResponseWriter, r *http.Request) {
	var req api.CausalTestRunAllRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, r, apierrors.InvalidRequestWithError(err))
			return
		}
	}
	outcomes, err := h.studies.RunAll(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, api.ListResponse[api.RunAllOutcome]{Items: outcomes, Total: len(outcomes)})
}

// List handles GET /api/causal-tests?transform_id=&limit=.
func (h *CausalHandler) List(w http.ResponseWriter, r *http.Request) {
	results, err := h.studies.List(r.Context(), r.URL.Query().Get("transform_id"), queryLimit(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, api.ListResponse[domain.CausalTestResult]{Items: results, Total: len(results)})
}

// Get handles GET /api/causal-tests/{id}.
func (h *CausalHandler) Get(w http.ResponseWriter, r *http.Request) {
	result, err := h.studies.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// Export handles GET /api/causal-tests/{id}/export, streaming the result
// as an xlsx workbook.
func (h *CausalHandler) Export(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.studies.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	transform, err := h.transforms.Get(r.Context(), result.TransformID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "causal_test_"+id+".xlsx"))
	if err := h.exporter.WriteWorkbook(result, transform, w); err != nil {
		// Headers are already out; log instead of attempting a JSON error.
		h.logger.ErrorContext(r.Context(), "workbook export failed",
			slog.String("result_id", id),
			slog.String("error", err.Error()))
	}
}
