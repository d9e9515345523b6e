package causal

import (
	"fmt"
	"time"
)

// Stage names the steps of one event-study run. A run either walks every
// stage or stops at the first sample-level failure; stages are never
// retried.
type Stage string

const (
	StageGather              Stage = "gather"
	StageDetectConfounds     Stage = "detect_confounds"
	StageFetchMarketData     Stage = "fetch_market_data"
	StageComputeWindows      Stage = "compute_windows"
	StageRegress             Stage = "regress"
	StagePlaceboPreDrift     Stage = "placebo_pre_drift"
	StagePlaceboZeroSurprise Stage = "placebo_zero_surprise"
	StageAssessConfidence    Stage = "assess_confidence"
)

const (
	// DefaultMinEvents is the smallest usable sample for a study.
	DefaultMinEvents = 5

	// DefaultOverlapBufferDays is the confound exclusion window.
	DefaultOverlapBufferDays = 10

	// DefaultSignificanceLevel is the alpha for regression and placebos.
	DefaultSignificanceLevel = 0.05

	// maxBoundarySearchDays bounds the calendar-day search for the nearest
	// tradable price around a window boundary.
	maxBoundarySearchDays = 7

	// fetchPadDays extends the price fetch range beyond the outermost
	// window boundaries to absorb weekends and holidays.
	fetchPadDays = 10
)

// Exclusion reasons recorded in event details.
const (
	ReasonNoTradablePrice        = "no tradable price near boundary"
	ReasonInsufficientMarketData = "insufficient market data in window"
)

// StudyParams configures one event-study run.
type StudyParams struct {
	PreWindowDays  int `json:"pre_window_days" validate:"min=1,max=60"`
	PostWindowDays int `json:"post_window_days" validate:"min=1,max=60"`
	GapDays        int `json:"gap_days" validate:"min=0,max=10"`

	// ExcludeOverlapping toggles the confound stage. The documented
	// behavior compares against every other event regardless of type;
	// ConfoundEventTypes narrows the comparison set when non-empty.
	ExcludeOverlapping bool     `json:"exclude_overlapping"`
	OverlapBufferDays  int      `json:"overlap_buffer_days" validate:"min=0,max=60"`
	ConfoundEventTypes []string `json:"confound_event_types,omitempty"`

	SignificanceLevel float64 `json:"significance_level" validate:"gt=0,lt=1"`
	MinEvents         int     `json:"min_events" validate:"min=3"`
}

// DefaultStudyParams returns the reference configuration: five-day windows
// around a one-day gap, type-agnostic ten-day confound buffer, alpha 0.05.
func DefaultStudyParams() StudyParams {
	return StudyParams{
		PreWindowDays:      5,
		PostWindowDays:     5,
		GapDays:            1,
		ExcludeOverlapping: true,
		OverlapBufferDays:  DefaultOverlapBufferDays,
		SignificanceLevel:  DefaultSignificanceLevel,
		MinEvents:          DefaultMinEvents,
	}
}

// StudyEvent is one gathered observation: an event that produced a signal
// for the transform under study.
type StudyEvent struct {
	EventID   string
	Timestamp time.Time
	Surprise  float64
}

// EventStamp identifies any event in the system for confound detection.
type EventStamp struct {
	EventID   string
	Type      string
	Timestamp time.Time
}

// StudyInput carries everything one run consumes. The caller gathers the
// transform's signals and the system-wide event stamps; the run itself
// touches no store.
type StudyInput struct {
	TransformID string
	TargetNode  string
	Events      []StudyEvent
	AllEvents   []EventStamp
	Params      StudyParams
}

// InsufficientDataError aborts a run when too few observations survive a
// stage. It is the only sample-level failure.
type InsufficientDataError struct {
	Stage     Stage
	Available int
	Required  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient events at stage %s: %d available, %d required",
		e.Stage, e.Available, e.Required)
}

// MarketDataError aborts a run when the target node's series cannot be
// obtained at all. Per-event gaps inside an otherwise usable series do not
// raise it; they become exclusions.
type MarketDataError struct {
	Node string
	Err  error
}

func (e *MarketDataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no market data for node %q: %v", e.Node, e.Err)
	}
	return fmt.Sprintf("no market data for node %q", e.Node)
}

func (e *MarketDataError) Unwrap() error { return e.Err }
