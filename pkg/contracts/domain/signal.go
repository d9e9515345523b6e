package domain

import (
	"time"
)

// Signal is a derived fact: one evaluated transform for one event. At most
// one Signal exists per (event, transform) pair; recomputation upserts.
//
// ZScore is nil when the transform's history is too short or has zero
// variance. Callers must not conflate a nil z-score with zero.
type Signal struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id" validate:"required"`
	TransformID string    `json:"transform_id" validate:"required"`
	Timestamp   time.Time `json:"timestamp"`
	Value       float64   `json:"value"`
	ZScore      *float64  `json:"z_score,omitempty"`
	IsShock     bool      `json:"is_shock"`
	CreatedAt   time.Time `json:"created_at"`
}

// Shock pairs a shock signal with its owning event and transform for the
// monitor surface.
type Shock struct {
	Signal    Signal          `json:"signal"`
	Event     Event           `json:"event"`
	Transform SignalTransform `json:"transform"`
}
