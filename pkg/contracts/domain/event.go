package domain

import (
	"encoding/json"
	"time"
)

// EventType classifies the economic/financial events the system ingests.
// The set is open-ended; these are the types the reference transform
// catalog matches against.
type EventType string

const (
	EventTypeFedAnnouncement EventType = "fed_announcement"
	EventTypeEconomicData    EventType = "economic_data"
	EventTypeEarnings        EventType = "earnings"
	EventTypeGeopolitical    EventType = "geopolitical"
)

// Event is an immutable fact produced by ingestion. RawData holds the
// numeric (and occasionally string) fields extracted from the release;
// keys vary per event type, so transforms must tolerate absent fields.
type Event struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp" validate:"required"`
	Type        string         `json:"type" validate:"required"`
	Subtype     string         `json:"subtype,omitempty"`
	Description string         `json:"description" validate:"required"`
	Tags        []string       `json:"tags"`
	RawData     map[string]any `json:"raw_data"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NumericField returns the named raw_data field as a float64. String and
// missing values report ok=false; transforms treat both as "field absent".
func (e Event) NumericField(name string) (float64, bool) {
	v, present := e.RawData[name]
	if !present {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
