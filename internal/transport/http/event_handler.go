package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "tremor/internal/errors"
	"tremor/internal/services"
	api "tremor/pkg/contracts/api/v1"
	"tremor/pkg/contracts/domain"
)

// EventHandler serves event ingestion and lookup.
type EventHandler struct {
	events *services.EventService
	logger *slog.Logger
}

// NewEventHandler creates an event handler.
func NewEventHandler(events *services.EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		events: events,
		logger: logger.With(slog.String("component", "event_handler")),
	}
}

// Routes returns the event routes.
func (h *EventHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	return r
}

// Create handles POST /api/events: it ingests the event and returns the
// signals computed for it in the same response.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req api.EventCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	ts, err := parseTimestamp(req.Timestamp)
	if err != nil {
		respondError(w, r, apierrors.ErrValidation("timestamp", "must be RFC 3339 or YYYY-MM-DD"))
		return
	}

	result, err := h.events.Ingest(r.Context(), domain.Event{
		Timestamp:   ts,
		Type:        req.Type,
		Subtype:     req.Subtype,
		Description: req.Description,
		Tags:        req.Tags,
		RawData:     req.RawData,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// List handles GET /api/events with type/date filters.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var from, to time.Time
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = parseTimestamp(v); err != nil {
			respondError(w, r, apierrors.ErrValidation("from", "must be RFC 3339 or YYYY-MM-DD"))
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = parseTimestamp(v); err != nil {
			respondError(w, r, apierrors.ErrValidation("to", "must be RFC 3339 or YYYY-MM-DD"))
			return
		}
	}

	events, err := h.events.List(r.Context(), q.Get("type"), from, to, queryLimit(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, api.ListResponse[domain.Event]{Items: events, Total: len(events)})
}

// Get handles GET /api/events/{id}.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, event)
}

// parseTimestamp accepts RFC 3339 timestamps and bare dates.
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02", s)
}

// queryLimit reads the limit parameter; zero means no limit.
func queryLimit(r *http.Request) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
