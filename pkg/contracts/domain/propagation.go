package domain

import (
	"time"
)

// PropagationStatus tracks the lifecycle of a shock-propagation monitor.
type PropagationStatus string

const (
	PropagationStatusPending    PropagationStatus = "pending"
	PropagationStatusMonitoring PropagationStatus = "monitoring"
	PropagationStatusCompleted  PropagationStatus = "completed"
	PropagationStatusNoResponse PropagationStatus = "no_response"
)

// PropagationResult monitors whether a detected shock propagates to one
// downstream node within the lag window predicted by the causal network.
// Expected direction and magnitude come from the IRF baselines; actual
// values are filled in as the monitoring window is checked.
type PropagationResult struct {
	ID                 string            `json:"id"`
	SignalID           string            `json:"signal_id"`
	SourceNode         string            `json:"source_node"`
	TargetNode         string            `json:"target_node"`
	ExpectedLagWeeks   int               `json:"expected_lag_weeks"`
	ExpectedDirection  string            `json:"expected_direction"`
	ExpectedMagnitude  *float64          `json:"expected_magnitude"`
	ActualChange       *float64          `json:"actual_change"`
	ActualLagWeeks     *int              `json:"actual_lag_weeks"`
	PropagationMatched *bool             `json:"propagation_matched"`
	Status             PropagationStatus `json:"status"`
	MonitoredFrom      time.Time         `json:"monitored_from"`
	MonitoredUntil     time.Time         `json:"monitored_until"`
	CreatedAt          time.Time         `json:"created_at"`
}
