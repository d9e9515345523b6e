package propagation

import (
	"encoding/json"
	"fmt"
	"os"
)

// baselineEntry is the expected impulse response of one target to a unit
// shock in one source. Responses are indexed by lag in weeks.
type baselineEntry struct {
	Direction string    `json:"direction"`
	Responses []float64 `json:"responses"`
}

// Baselines holds the IRF reference surface keyed source → target. Like
// the causal network it is loaded once at startup and read-only after.
type Baselines struct {
	data map[string]map[string]baselineEntry
}

// LoadBaselines reads the baselines JSON file:
//
//	{"source": {"target": {"direction": "positive", "responses": [0, 0.1]}}}
func LoadBaselines(path string) (*Baselines, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read baselines file: %w", err)
	}
	var data map[string]map[string]baselineEntry
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse baselines json: %w", err)
	}
	return &Baselines{data: data}, nil
}

// EmptyBaselines returns a baselines surface with no entries; monitors
// then fall back to defaults (positive direction, unknown magnitude).
func EmptyBaselines() *Baselines {
	return &Baselines{data: map[string]map[string]baselineEntry{}}
}

// ExpectedDirection returns "positive" or "negative" for the source→target
// pair, or empty when no baseline exists.
func (b *Baselines) ExpectedDirection(source, target string) string {
	return b.data[source][target].Direction
}

// ExpectedResponse returns the IRF magnitude at the given lag, or nil when
// the baseline has no entry that far out.
func (b *Baselines) ExpectedResponse(source, target string, lag int) *float64 {
	entry, ok := b.data[source][target]
	if !ok || lag < 0 || lag >= len(entry.Responses) {
		return nil
	}
	v := entry.Responses[lag]
	return &v
}
