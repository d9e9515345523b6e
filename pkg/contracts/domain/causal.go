package domain

import (
	"time"
)

// Confidence is the ordinal label assigned to one event-study run. The
// ladder deliberately demands corroborating evidence beyond a bare p-value
// so underpowered samples do not produce causal claims.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// RegressionResult holds the full output of the dose-response OLS with
// HC1 robust standard errors.
type RegressionResult struct {
	Coefficient       float64 `json:"coefficient"`
	StdError          float64 `json:"std_error"`
	TStatistic        float64 `json:"t_statistic"`
	PValue            float64 `json:"p_value"`
	RSquared          float64 `json:"r_squared"`
	ConfIntervalLower float64 `json:"conf_interval_lower"`
	ConfIntervalUpper float64 `json:"conf_interval_upper"`
	Intercept         float64 `json:"intercept"`
	InterceptPValue   float64 `json:"intercept_p_value"`
	NumObservations   int     `json:"num_observations"`
}

// PlaceboResult is one falsification test. All fields are nil when the
// placebo was inconclusive (e.g. too few zero-surprise events); Passed is
// true when the placebo found no effect, which is the clean outcome.
type PlaceboResult struct {
	Coefficient *float64 `json:"coefficient"`
	PValue      *float64 `json:"p_value"`
	Passed      *bool    `json:"passed"`
}

// Available reports whether the placebo produced a verdict at all.
func (p PlaceboResult) Available() bool { return p.Passed != nil }

// Clean reports whether the placebo ran and found no effect.
func (p PlaceboResult) Clean() bool { return p.Passed != nil && *p.Passed }

// EventStudyDetail records one study event's contribution to a run,
// including why it was excluded if it was.
type EventStudyDetail struct {
	EventID          string    `json:"event_id"`
	EventTimestamp   time.Time `json:"event_timestamp"`
	SurpriseValue    float64   `json:"surprise_value"`
	PreWindowReturn  *float64  `json:"pre_window_return"`
	PostWindowReturn *float64  `json:"post_window_return"`
	Excluded         bool      `json:"excluded"`
	ExclusionReason  string    `json:"exclusion_reason,omitempty"`
}

// CausalTestResult is the immutable output of one event-study run. A new
// run supersedes it; nothing mutates a persisted result.
type CausalTestResult struct {
	ID          string `json:"id"`
	TransformID string `json:"transform_id"`
	TargetNode  string `json:"target_node"`

	PreWindowDays  int `json:"pre_window_days"`
	PostWindowDays int `json:"post_window_days"`
	GapDays        int `json:"gap_days"`

	NumEvents         int      `json:"num_events"`
	NumEventsUsed     int      `json:"num_events_used"`
	NumEventsExcluded int      `json:"num_events_excluded"`
	ExcludedEventIDs  []string `json:"excluded_event_ids"`

	Regression          RegressionResult `json:"regression"`
	PlaceboPreDrift     PlaceboResult    `json:"placebo_pre_drift"`
	PlaceboZeroSurprise PlaceboResult    `json:"placebo_zero_surprise"`

	IsCausal        bool               `json:"is_causal"`
	ConfidenceLevel Confidence         `json:"confidence_level"`
	EventDetails    []EventStudyDetail `json:"event_details"`

	CreatedAt time.Time `json:"created_at"`
}
