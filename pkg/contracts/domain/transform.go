package domain

import (
	"time"
)

// DefaultShockThresholdSD is the z-score magnitude above which a signal
// is flagged as a shock when a transform does not override it.
const DefaultShockThresholdSD = 2.0

// SignalTransform is a configuration record, not code: it describes how to
// turn an event's raw fields into one numeric surprise value. The
// expression is restricted arithmetic over raw_data field names and is
// evaluated by the signals package, never by a general-purpose evaluator.
type SignalTransform struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description,omitempty"`
	EventTypes  []string  `json:"event_types" validate:"required,min=1"`
	Expression  string    `json:"transform_expression" validate:"required"`
	NodeMapping string    `json:"node_mapping" validate:"required"`
	Unit        string    `json:"unit,omitempty"`
	ThresholdSD float64   `json:"threshold_sd"`
	CreatedAt   time.Time `json:"created_at"`
}

// AppliesTo reports whether the transform matches the given event type.
func (t SignalTransform) AppliesTo(eventType string) bool {
	for _, et := range t.EventTypes {
		if et == eventType {
			return true
		}
	}
	return false
}

// EffectiveThresholdSD returns the shock threshold, falling back to the
// system default for unset (zero) values.
func (t SignalTransform) EffectiveThresholdSD() float64 {
	if t.ThresholdSD <= 0 {
		return DefaultShockThresholdSD
	}
	return t.ThresholdSD
}
