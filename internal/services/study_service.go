package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"tremor/internal/causal"
	"tremor/internal/config"
	"tremor/internal/exporter"
	"tremor/internal/infrastructure"
	"tremor/internal/storage"
	api "tremor/pkg/contracts/api/v1"
	"tremor/pkg/contracts/domain"
	"tremor/pkg/contracts/events"
)

// runAllConcurrency bounds the number of event studies running at once
// during a run-all sweep. Each study fetches and regresses a full price
// series, so unbounded fan-out would thrash the market data provider.
const runAllConcurrency = 4

// StudyBroadcaster pushes study completions to connected clients.
type StudyBroadcaster interface {
	BroadcastStudyCompleted(payload events.StudyCompletedPayload, traceID string)
}

// NoopStudyBroadcaster discards study broadcasts.
type NoopStudyBroadcaster struct{}

// BroadcastStudyCompleted implements StudyBroadcaster.
func (NoopStudyBroadcaster) BroadcastStudyCompleted(events.StudyCompletedPayload, string) {}

// StudyService orchestrates event-study runs: it gathers the transform's
// signal history and the system-wide event stamps from storage, hands them
// to the pure runner, and persists and broadcasts the outcome.
type StudyService struct {
	repo        *storage.Repository
	runner      *causal.Runner
	network     *causal.Network
	defaults    config.StudyConfig
	broadcaster StudyBroadcaster
	metrics     *infrastructure.Metrics
	exporter    *exporter.StudyExporter
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewStudyService creates a study service. A nil exporter disables the
// per-run CSV drop.
func NewStudyService(
	repo *storage.Repository,
	runner *causal.Runner,
	network *causal.Network,
	defaults config.StudyConfig,
	broadcaster StudyBroadcaster,
	metrics *infrastructure.Metrics,
	studyExporter *exporter.StudyExporter,
	logger *slog.Logger,
) *StudyService {
	if broadcaster == nil {
		broadcaster = NoopStudyBroadcaster{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StudyService{
		repo:        repo,
		runner:      runner,
		network:     network,
		defaults:    defaults,
		broadcaster: broadcaster,
		metrics:     metrics,
		exporter:    studyExporter,
		validate:    validator.New(),
		logger:      logger.With(slog.String("component", "study_service")),
	}
}

// Run executes one event study and persists its result. Window overrides
// of zero fall back to the configured defaults.
func (s *StudyService) Run(ctx context.Context, req api.CausalTestRunRequest) (domain.CausalTestResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return domain.CausalTestResult{}, err
	}
	transform, err := s.repo.GetTransform(ctx, req.TransformID)
	if err != nil {
		return domain.CausalTestResult{}, err
	}
	params := s.buildParams(req.PreWindowDays, req.PostWindowDays, req.GapDays)
	return s.runOne(ctx, transform, req.TargetNode, params)
}

// RunAll sweeps every registered transform against every node downstream
// of its mapped network node, running the studies concurrently. Individual
// failures are reported per outcome; the sweep itself only fails when no
// transforms exist or the context is cancelled.
func (s *StudyService) RunAll(ctx context.Context, req api.CausalTestRunAllRequest) ([]api.RunAllOutcome, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	transforms, err := s.repo.ListTransforms(ctx)
	if err != nil {
		return nil, err
	}
	params := s.buildParams(req.PreWindowDays, req.PostWindowDays, req.GapDays)

	type pair struct {
		transform domain.SignalTransform
		target    string
	}
	var pairs []pair
	var outcomes []api.RunAllOutcome
	for _, t := range transforms {
		targets := s.network.Downstream(t.NodeMapping)
		if len(targets) == 0 {
			outcomes = append(outcomes, api.RunAllOutcome{
				TransformID:   t.ID,
				TransformName: t.Name,
				Error:         "no downstream nodes for " + t.NodeMapping,
			})
			continue
		}
		for _, target := range targets {
			pairs = append(pairs, pair{transform: t, target: target})
		}
	}

	s.logger.InfoContext(ctx, "starting study sweep",
		slog.Int("transforms", len(transforms)),
		slog.Int("pairs", len(pairs)))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runAllConcurrency)
	for _, p := range pairs {
		g.Go(func() error {
			outcome := api.RunAllOutcome{
				TransformID:   p.transform.ID,
				TransformName: p.transform.Name,
				TargetNode:    p.target,
			}
			result, err := s.runOne(gctx, p.transform, p.target, params)
			if err != nil {
				outcome.Error = err.Error()
			} else {
				outcome.Result = &result
			}
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// Get fetches one stored result.
func (s *StudyService) Get(ctx context.Context, id string) (domain.CausalTestResult, error) {
	return s.repo.GetCausalTestResult(ctx, id)
}

// List returns stored results, newest first, optionally filtered by
// transform.
func (s *StudyService) List(ctx context.Context, transformID string, limit int) ([]domain.CausalTestResult, error) {
	return s.repo.ListCausalTestResults(ctx, transformID, limit)
}

func (s *StudyService) buildParams(pre, post, gap int) causal.StudyParams {
	params := causal.DefaultStudyParams()
	params.PreWindowDays = s.defaults.PreWindowDays
	params.PostWindowDays = s.defaults.PostWindowDays
	params.GapDays = s.defaults.GapDays
	params.MinEvents = s.defaults.MinEvents
	params.OverlapBufferDays = s.defaults.OverlapBufferDays
	params.SignificanceLevel = s.defaults.SignificanceLevel
	params.ConfoundEventTypes = s.defaults.ConfoundEventTypes
	if pre > 0 {
		params.PreWindowDays = pre
	}
	if post > 0 {
		params.PostWindowDays = post
	}
	if gap > 0 {
		params.GapDays = gap
	}
	return params
}

func (s *StudyService) runOne(ctx context.Context, transform domain.SignalTransform, targetNode string, params causal.StudyParams) (domain.CausalTestResult, error) {
	signals, err := s.repo.SignalsByTransform(ctx, transform.ID)
	if err != nil {
		return domain.CausalTestResult{}, err
	}
	studyEvents := make([]causal.StudyEvent, 0, len(signals))
	for _, sig := range signals {
		studyEvents = append(studyEvents, causal.StudyEvent{
			EventID:   sig.EventID,
			Timestamp: sig.Timestamp,
			Surprise:  sig.Value,
		})
	}
	stamps, err := s.repo.EventStamps(ctx)
	if err != nil {
		return domain.CausalTestResult{}, err
	}

	started := time.Now()
	result, err := s.runner.Run(ctx, causal.StudyInput{
		TransformID: transform.ID,
		TargetNode:  targetNode,
		Events:      studyEvents,
		AllEvents:   stamps,
		Params:      params,
	})
	elapsed := time.Since(started)
	if err != nil {
		s.logger.WarnContext(ctx, "study aborted",
			slog.String("transform_id", transform.ID),
			slog.String("target_node", targetNode),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err))
		return domain.CausalTestResult{}, err
	}

	stored, err := s.repo.SaveCausalTestResult(ctx, result)
	if err != nil {
		return domain.CausalTestResult{}, err
	}
	s.metrics.RecordStudy(ctx, transform.Name, elapsed.Seconds(), stored.IsCausal)

	// The event-detail CSV lands in the exports directory; a failure here
	// must not fail the study.
	if s.exporter != nil {
		if fileName, err := s.exporter.ExportEventDetailsCSV(stored); err != nil {
			s.logger.WarnContext(ctx, "event detail export failed",
				slog.String("result_id", stored.ID),
				slog.String("error", err.Error()))
		} else {
			s.logger.DebugContext(ctx, "event detail export written",
				slog.String("result_id", stored.ID),
				slog.String("file", fileName))
		}
	}

	s.logger.InfoContext(ctx, "study completed",
		slog.String("result_id", stored.ID),
		slog.String("transform_id", transform.ID),
		slog.String("target_node", targetNode),
		slog.Bool("is_causal", stored.IsCausal),
		slog.String("confidence", string(stored.ConfidenceLevel)),
		slog.Int("events_used", stored.NumEventsUsed),
		slog.Duration("elapsed", elapsed))

	s.broadcaster.BroadcastStudyCompleted(events.StudyCompletedPayload{
		ResultID:        stored.ID,
		TransformID:     stored.TransformID,
		TargetNode:      stored.TargetNode,
		IsCausal:        stored.IsCausal,
		ConfidenceLevel: string(stored.ConfidenceLevel),
		Coefficient:     stored.Regression.Coefficient,
		PValue:          stored.Regression.PValue,
	}, infrastructure.GetTraceID(ctx))

	return stored, nil
}
