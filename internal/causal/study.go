package causal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"tremor/internal/marketdata"
	"tremor/pkg/contracts/domain"
)

// Runner executes causal event studies. A Runner is stateless across runs
// and safe for concurrent use; each run is a deterministic sequential
// pipeline over in-memory arrays.
type Runner struct {
	provider marketdata.Provider
	logger   *slog.Logger
}

// NewRunner creates an event-study runner over the given market data
// provider.
func NewRunner(provider marketdata.Provider, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{provider: provider, logger: logger}
}

// Run executes one event study and returns the full result. Failures are
// typed: InsufficientDataError when the sample falls below the configured
// minimum at any stage, MarketDataError when the target's series cannot
// be obtained at all. Per-event problems never fail the run; they are
// recorded as exclusions in the result's event details.
func (r *Runner) Run(ctx context.Context, input StudyInput) (domain.CausalTestResult, error) {
	params := input.Params
	if params.MinEvents <= 0 {
		params.MinEvents = DefaultMinEvents
	}
	if params.SignificanceLevel <= 0 || params.SignificanceLevel >= 1 {
		params.SignificanceLevel = DefaultSignificanceLevel
	}

	r.logger.InfoContext(ctx, "event study started",
		"transform_id", input.TransformID,
		"target_node", input.TargetNode,
		"num_events", len(input.Events),
		"pre_window_days", params.PreWindowDays,
		"post_window_days", params.PostWindowDays,
		"gap_days", params.GapDays,
	)

	// Gather: the caller supplies the triples; order them for
	// deterministic downstream behavior.
	events := append([]StudyEvent(nil), input.Events...)
	sort.Slice(events, func(i, j int) bool {
		if events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].EventID < events[j].EventID
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	numEvents := len(events)
	if numEvents < params.MinEvents {
		return domain.CausalTestResult{}, &InsufficientDataError{
			Stage: StageGather, Available: numEvents, Required: params.MinEvents,
		}
	}

	// Detect confounds.
	exclusions := map[string]string{}
	if params.ExcludeOverlapping {
		exclusions = detectConfounds(events, input.AllEvents, params)
	}

	details := make([]domain.EventStudyDetail, 0, numEvents)
	var included []StudyEvent
	for _, ev := range events {
		reason, excluded := exclusions[ev.EventID]
		details = append(details, domain.EventStudyDetail{
			EventID:         ev.EventID,
			EventTimestamp:  ev.Timestamp,
			SurpriseValue:   ev.Surprise,
			Excluded:        excluded,
			ExclusionReason: reason,
		})
		if !excluded {
			included = append(included, ev)
		}
	}
	if len(included) < params.MinEvents {
		return domain.CausalTestResult{}, &InsufficientDataError{
			Stage: StageDetectConfounds, Available: len(included), Required: params.MinEvents,
		}
	}

	// Fetch one contiguous series spanning every surviving window.
	fetchStart, fetchEnd, _ := StudyWindowSpan(included, params)

	series, err := r.provider.DailySeries(ctx, input.TargetNode, fetchStart, fetchEnd)
	if err != nil {
		return domain.CausalTestResult{}, &MarketDataError{Node: input.TargetNode, Err: err}
	}
	if !series.CoversAny(fetchStart, fetchEnd) {
		return domain.CausalTestResult{}, &MarketDataError{Node: input.TargetNode}
	}
	r.logger.DebugContext(ctx, "market data fetched",
		"target_node", input.TargetNode,
		"observations", series.Len(),
	)

	// Resolve per-event windows; gaps exclude individual events.
	var surprises, preReturns, postReturns []float64
	for _, ev := range included {
		ret, err := computeWindowReturns(ev.Timestamp, series, params)
		if err != nil {
			var excl *exclusionError
			if errors.As(err, &excl) {
				markExcluded(details, ev.EventID, excl.reason)
				continue
			}
			return domain.CausalTestResult{}, err
		}
		surprises = append(surprises, ev.Surprise)
		preReturns = append(preReturns, ret.pre)
		postReturns = append(postReturns, ret.post)
		setReturns(details, ev.EventID, ret)
	}

	numUsed := len(surprises)
	if numUsed < params.MinEvents {
		return domain.CausalTestResult{}, &InsufficientDataError{
			Stage: StageComputeWindows, Available: numUsed, Required: params.MinEvents,
		}
	}

	// Dose-response regression with HC1 robust standard errors.
	fit, err := fitOLS(surprises, postReturns, true)
	if err != nil {
		return domain.CausalTestResult{}, fmt.Errorf("dose-response regression: %w", err)
	}
	ciLower, ciUpper := fit.confInterval(1, params.SignificanceLevel)
	regression := domain.RegressionResult{
		Coefficient:       fit.slope(),
		StdError:          fit.slopeStdErr(),
		TStatistic:        fit.slopeT(),
		PValue:            fit.slopeP(),
		RSquared:          fit.rSquared,
		ConfIntervalLower: ciLower,
		ConfIntervalUpper: ciUpper,
		Intercept:         fit.params[0],
		InterceptPValue:   fit.pValues[0],
		NumObservations:   fit.nobs,
	}

	preDrift, err := runPlaceboPreDrift(surprises, preReturns, params.SignificanceLevel)
	if err != nil {
		return domain.CausalTestResult{}, fmt.Errorf("pre-drift placebo: %w", err)
	}
	zeroSurprise := runPlaceboZeroSurprise(surprises, postReturns, params.SignificanceLevel)

	isCausal, confidence := assessConfidence(regression, preDrift, zeroSurprise, numUsed)

	var excludedIDs []string
	for _, d := range details {
		if d.Excluded {
			excludedIDs = append(excludedIDs, d.EventID)
		}
	}

	result := domain.CausalTestResult{
		TransformID:         input.TransformID,
		TargetNode:          input.TargetNode,
		PreWindowDays:       params.PreWindowDays,
		PostWindowDays:      params.PostWindowDays,
		GapDays:             params.GapDays,
		NumEvents:           numEvents,
		NumEventsUsed:       numUsed,
		NumEventsExcluded:   len(excludedIDs),
		ExcludedEventIDs:    excludedIDs,
		Regression:          regression,
		PlaceboPreDrift:     preDrift,
		PlaceboZeroSurprise: zeroSurprise,
		IsCausal:            isCausal,
		ConfidenceLevel:     confidence,
		EventDetails:        details,
	}

	r.logger.InfoContext(ctx, "event study completed",
		"transform_id", input.TransformID,
		"target_node", input.TargetNode,
		"num_events_used", numUsed,
		"num_events_excluded", len(excludedIDs),
		"coefficient", regression.Coefficient,
		"p_value", regression.PValue,
		"confidence", string(confidence),
		"is_causal", isCausal,
	)

	return result, nil
}

// detectConfounds returns exclusion reasons for study events that have any
// other event within the overlap buffer. The comparison is type-agnostic
// unless ConfoundEventTypes narrows it; the first qualifying other event
// in timestamp order wins, no ranking of multiple confounders.
func detectConfounds(events []StudyEvent, allEvents []EventStamp, params StudyParams) map[string]string {
	others := append([]EventStamp(nil), allEvents...)
	sort.Slice(others, func(i, j int) bool {
		if others[i].Timestamp.Equal(others[j].Timestamp) {
			return others[i].EventID < others[j].EventID
		}
		return others[i].Timestamp.Before(others[j].Timestamp)
	})

	typeFilter := map[string]bool{}
	for _, t := range params.ConfoundEventTypes {
		typeFilter[t] = true
	}

	bufferDays := float64(params.OverlapBufferDays)
	exclusions := make(map[string]string)
	for _, ev := range events {
		for _, other := range others {
			if other.EventID == ev.EventID {
				continue
			}
			if len(typeFilter) > 0 && !typeFilter[other.Type] {
				continue
			}
			gapDays := ev.Timestamp.Sub(other.Timestamp).Abs().Hours() / 24
			if gapDays <= bufferDays {
				exclusions[ev.EventID] = fmt.Sprintf(
					"overlapping with event '%s' (%s, %.1f days apart)",
					other.EventID, other.Type, gapDays,
				)
				break
			}
		}
	}
	return exclusions
}

func markExcluded(details []domain.EventStudyDetail, eventID, reason string) {
	for i := range details {
		if details[i].EventID == eventID {
			details[i].Excluded = true
			details[i].ExclusionReason = reason
			return
		}
	}
}

func setReturns(details []domain.EventStudyDetail, eventID string, ret windowReturns) {
	for i := range details {
		if details[i].EventID == eventID {
			pre, post := ret.pre, ret.post
			details[i].PreWindowReturn = &pre
			details[i].PostWindowReturn = &post
			return
		}
	}
}

// StudyWindowSpan reports the full calendar span a study over the given
// events will request from the market data provider. Exposed for
// pre-flight checks in callers.
func StudyWindowSpan(events []StudyEvent, params StudyParams) (time.Time, time.Time, bool) {
	if len(events) == 0 {
		return time.Time{}, time.Time{}, false
	}
	earliest, latest := events[0].Timestamp, events[0].Timestamp
	for _, ev := range events[1:] {
		if ev.Timestamp.Before(earliest) {
			earliest = ev.Timestamp
		}
		if ev.Timestamp.After(latest) {
			latest = ev.Timestamp
		}
	}
	pad := params.GapDays + fetchPadDays
	return earliest.AddDate(0, 0, -(params.PreWindowDays + pad)),
		latest.AddDate(0, 0, params.PostWindowDays+pad), true
}
