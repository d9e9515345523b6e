package services

import (
	"context"
	"log/slog"
	"time"

	"tremor/internal/infrastructure"
	"tremor/internal/propagation"
	"tremor/internal/storage"
	"tremor/pkg/contracts/domain"
	"tremor/pkg/contracts/events"
)

// PropagationBroadcaster pushes monitor state changes to connected clients.
type PropagationBroadcaster interface {
	BroadcastPropagationUpdate(payload events.PropagationUpdatePayload, traceID string)
}

// NoopPropagationBroadcaster discards propagation broadcasts.
type NoopPropagationBroadcaster struct{}

// BroadcastPropagationUpdate implements PropagationBroadcaster.
func (NoopPropagationBroadcaster) BroadcastPropagationUpdate(events.PropagationUpdatePayload, string) {
}

// PropagationService drives the open shock-propagation monitors: it runs
// checks against current market data, persists state transitions, and
// broadcasts the outcome.
type PropagationService struct {
	repo        *storage.Repository
	monitor     *propagation.Monitor
	broadcaster PropagationBroadcaster
	metrics     *infrastructure.Metrics
	logger      *slog.Logger
}

// NewPropagationService creates a propagation service.
func NewPropagationService(
	repo *storage.Repository,
	monitor *propagation.Monitor,
	broadcaster PropagationBroadcaster,
	metrics *infrastructure.Metrics,
	logger *slog.Logger,
) *PropagationService {
	if broadcaster == nil {
		broadcaster = NoopPropagationBroadcaster{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PropagationService{
		repo:        repo,
		monitor:     monitor,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger.With(slog.String("component", "propagation_service")),
	}
}

// Check runs one monitor check and persists any state change.
func (s *PropagationService) Check(ctx context.Context, id string) (domain.PropagationResult, error) {
	result, err := s.repo.GetPropagationResult(ctx, id)
	if err != nil {
		return domain.PropagationResult{}, err
	}
	return s.checkOne(ctx, result, time.Now().UTC())
}

// CheckAllOpen sweeps every monitor that has not reached a terminal
// state. Per-monitor errors are logged and skipped so one broken node
// cannot stall the sweep.
func (s *PropagationService) CheckAllOpen(ctx context.Context) ([]domain.PropagationResult, error) {
	open, err := s.repo.ListOpenPropagationResults(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	checked := make([]domain.PropagationResult, 0, len(open))
	for _, result := range open {
		updated, err := s.checkOne(ctx, result, now)
		if err != nil {
			s.logger.WarnContext(ctx, "propagation check failed",
				slog.String("result_id", result.ID),
				slog.String("target_node", result.TargetNode),
				slog.Any("error", err))
			continue
		}
		checked = append(checked, updated)
	}
	return checked, nil
}

// ListBySignal returns the monitors spawned by one shock signal.
func (s *PropagationService) ListBySignal(ctx context.Context, signalID string) ([]domain.PropagationResult, error) {
	return s.repo.ListPropagationResultsBySignal(ctx, signalID)
}

// ListOpen returns every monitor still awaiting a terminal state.
func (s *PropagationService) ListOpen(ctx context.Context) ([]domain.PropagationResult, error) {
	return s.repo.ListOpenPropagationResults(ctx)
}

func (s *PropagationService) checkOne(ctx context.Context, result domain.PropagationResult, now time.Time) (domain.PropagationResult, error) {
	before := result.Status
	updated, err := s.monitor.Check(ctx, result, now)
	if err != nil {
		return domain.PropagationResult{}, err
	}
	if updated.Status == before && updated.PropagationMatched == nil {
		return updated, nil
	}
	if err := s.repo.UpdatePropagationResult(ctx, updated); err != nil {
		return domain.PropagationResult{}, err
	}
	s.metrics.RecordPropagationCheck(ctx, string(updated.Status))
	s.logger.InfoContext(ctx, "propagation monitor updated",
		slog.String("result_id", updated.ID),
		slog.String("source_node", updated.SourceNode),
		slog.String("target_node", updated.TargetNode),
		slog.String("status", string(updated.Status)))

	s.broadcaster.BroadcastPropagationUpdate(events.PropagationUpdatePayload{
		ResultID:   updated.ID,
		SignalID:   updated.SignalID,
		SourceNode: updated.SourceNode,
		TargetNode: updated.TargetNode,
		Status:     string(updated.Status),
		Matched:    updated.PropagationMatched,
		Change:     updated.ActualChange,
	}, infrastructure.GetTraceID(ctx))

	return updated, nil
}
