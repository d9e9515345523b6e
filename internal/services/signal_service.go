package services

import (
	"context"
	"fmt"
	"log/slog"

	"tremor/internal/infrastructure"
	"tremor/internal/propagation"
	"tremor/internal/signals"
	"tremor/internal/storage"
	"tremor/pkg/contracts/domain"
	"tremor/pkg/contracts/events"
)

// ShockBroadcaster pushes computed signals and shock alerts to connected
// clients. Satisfied by the websocket hub; nil-safe via the noop
// implementation.
type ShockBroadcaster interface {
	BroadcastSignalComputed(payload events.SignalComputedPayload, traceID string)
	BroadcastShock(payload events.ShockAlertPayload, traceID string)
}

// NoopBroadcaster discards broadcasts; used when no hub is wired.
type NoopBroadcaster struct{}

// BroadcastSignalComputed implements ShockBroadcaster.
func (NoopBroadcaster) BroadcastSignalComputed(events.SignalComputedPayload, string) {}

// BroadcastShock implements ShockBroadcaster.
func (NoopBroadcaster) BroadcastShock(events.ShockAlertPayload, string) {}

// SignalService computes signals for events and owns the follow-on
// effects of a shock: persistence, alert broadcast and propagation
// monitor creation.
type SignalService struct {
	repo        *storage.Repository
	factory     *signals.Factory
	monitor     *propagation.Monitor
	broadcaster ShockBroadcaster
	metrics     *infrastructure.Metrics
	logger      *slog.Logger
}

// NewSignalService wires a signal service. monitor, broadcaster and
// metrics may be nil.
func NewSignalService(
	repo *storage.Repository,
	factory *signals.Factory,
	monitor *propagation.Monitor,
	broadcaster ShockBroadcaster,
	metrics *infrastructure.Metrics,
	logger *slog.Logger,
) *SignalService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SignalService{
		repo:        repo,
		factory:     factory,
		monitor:     monitor,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger.With(slog.String("component", "signal_service")),
	}
}

// historyProvider adapts the repository to the factory's history
// interface while excluding the event being recomputed.
type historyProvider struct {
	repo           *storage.Repository
	excludeEventID string
}

func (p historyProvider) SignalValues(ctx context.Context, transformID string) ([]float64, error) {
	return p.repo.SignalValuesByTransformExcluding(ctx, transformID, p.excludeEventID)
}

// ComputeForEvent runs every registered transform against the event,
// upserts the resulting signals and fans out shocks. Recomputation is
// idempotent: the (event, transform) identity maps to one stored signal.
func (s *SignalService) ComputeForEvent(ctx context.Context, event domain.Event) (signals.Result, error) {
	transforms, err := s.repo.ListTransforms(ctx)
	if err != nil {
		return signals.Result{}, fmt.Errorf("listing transforms: %w", err)
	}

	result, err := s.factory.ComputeSignalsForEvent(ctx, event, transforms,
		historyProvider{repo: s.repo, excludeEventID: event.ID})
	if err != nil {
		return signals.Result{}, fmt.Errorf("computing signals for event %s: %w", event.ID, err)
	}

	byID := make(map[string]domain.SignalTransform, len(transforms))
	for _, t := range transforms {
		byID[t.ID] = t
	}

	stored := make([]domain.Signal, 0, len(result.Signals))
	for _, sig := range result.Signals {
		saved, err := s.repo.UpsertSignal(ctx, sig)
		if err != nil {
			return signals.Result{}, fmt.Errorf("persisting signal: %w", err)
		}
		stored = append(stored, saved)

		transform := byID[saved.TransformID]
		s.metrics.RecordSignal(ctx, transform.Name, saved.IsShock)

		s.broadcaster.BroadcastSignalComputed(events.SignalComputedPayload{
			SignalID:      saved.ID,
			EventID:       saved.EventID,
			TransformID:   saved.TransformID,
			TransformName: transform.Name,
			Value:         saved.Value,
			ZScore:        saved.ZScore,
			IsShock:       saved.IsShock,
			Timestamp:     saved.Timestamp,
		}, infrastructure.GetTraceID(ctx))

		if saved.IsShock {
			s.handleShock(ctx, saved, transform)
		}
	}
	for _, skip := range result.Skipped {
		s.metrics.RecordSkip(ctx, string(skip.Reason))
	}

	result.Signals = stored
	return result, nil
}

// handleShock broadcasts the alert and opens propagation monitors for
// every downstream node of the transform's mapped node.
func (s *SignalService) handleShock(ctx context.Context, sig domain.Signal, transform domain.SignalTransform) {
	s.logger.InfoContext(ctx, "shock detected",
		slog.String("signal_id", sig.ID),
		slog.String("transform", transform.Name),
		slog.String("node", transform.NodeMapping),
		slog.Float64("value", sig.Value))

	s.broadcaster.BroadcastShock(events.ShockAlertPayload{
		SignalID:      sig.ID,
		EventID:       sig.EventID,
		TransformID:   sig.TransformID,
		TransformName: transform.Name,
		Node:          transform.NodeMapping,
		Value:         sig.Value,
		ZScore:        sig.ZScore,
		Timestamp:     sig.Timestamp,
	}, infrastructure.GetTraceID(ctx))

	if s.monitor == nil {
		return
	}
	for _, monitor := range s.monitor.CreateMonitors(ctx, sig, transform) {
		if _, err := s.repo.SavePropagationResult(ctx, monitor); err != nil {
			s.logger.ErrorContext(ctx, "persisting propagation monitor",
				slog.String("signal_id", sig.ID),
				slog.String("target_node", monitor.TargetNode),
				slog.String("error", err.Error()))
		}
	}
}

// ListShocks returns recent shocks with their owning event and transform,
// narrowed by the filter's node and period bounds.
func (s *SignalService) ListShocks(ctx context.Context, filter storage.ShockFilter) ([]domain.Shock, error) {
	return s.repo.ListShocks(ctx, filter)
}

// Get fetches one signal by ID.
func (s *SignalService) Get(ctx context.Context, id string) (domain.Signal, error) {
	return s.repo.GetSignal(ctx, id)
}

// SignalsByTransform lists a transform's signals in timestamp order.
func (s *SignalService) SignalsByTransform(ctx context.Context, transformID string) ([]domain.Signal, error) {
	if _, err := s.repo.GetTransform(ctx, transformID); err != nil {
		return nil, err
	}
	return s.repo.SignalsByTransform(ctx, transformID)
}
