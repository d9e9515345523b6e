package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"tremor/internal/signals"
	"tremor/internal/storage"
	"tremor/pkg/contracts/domain"
)

// EventService ingests events and triggers synchronous signal
// computation for each one.
type EventService struct {
	repo     *storage.Repository
	signals  *SignalService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewEventService creates an event service.
func NewEventService(repo *storage.Repository, signalSvc *SignalService, logger *slog.Logger) *EventService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventService{
		repo:     repo,
		signals:  signalSvc,
		validate: validator.New(),
		logger:   logger.With(slog.String("component", "event_service")),
	}
}

// IngestResult pairs the stored event with the signals it produced.
type IngestResult struct {
	Event   domain.Event   `json:"event"`
	Signals signals.Result `json:"signals"`
}

// Ingest validates and persists an event, then computes its signals in
// the same call so callers observe signal effects synchronously.
func (s *EventService) Ingest(ctx context.Context, event domain.Event) (IngestResult, error) {
	if err := s.validate.Struct(event); err != nil {
		return IngestResult{}, err
	}
	if event.Timestamp.IsZero() {
		return IngestResult{}, fmt.Errorf("event timestamp is required")
	}

	stored, err := s.repo.CreateEvent(ctx, event)
	if err != nil {
		return IngestResult{}, err
	}
	s.logger.InfoContext(ctx, "event ingested",
		slog.String("event_id", stored.ID),
		slog.String("type", stored.Type),
		slog.Time("timestamp", stored.Timestamp))

	computed, err := s.signals.ComputeForEvent(ctx, stored)
	if err != nil {
		// The event is already stored; surface the computation failure.
		return IngestResult{Event: stored}, err
	}
	return IngestResult{Event: stored, Signals: computed}, nil
}

// Get fetches one event.
func (s *EventService) Get(ctx context.Context, id string) (domain.Event, error) {
	return s.repo.GetEvent(ctx, id)
}

// List returns events matching the filter.
func (s *EventService) List(ctx context.Context, eventType string, from, to time.Time, limit int) ([]domain.Event, error) {
	return s.repo.ListEvents(ctx, storage.EventFilter{
		Type:  eventType,
		From:  from,
		To:    to,
		Limit: limit,
	})
}
