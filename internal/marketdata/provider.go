package marketdata

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// PricePoint is one observation of a daily series. No fixed frequency is
// assumed: weekends, holidays and source gaps simply have no point.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// Series is an immutable daily price series for one causal-network node,
// indexed by calendar day (UTC).
type Series struct {
	node  string
	byDay map[string]float64
	dates []time.Time
}

const dayKeyLayout = "2006-01-02"

func dayKey(t time.Time) string {
	return t.UTC().Format(dayKeyLayout)
}

// NewSeries builds a series from unordered points. Duplicate days keep the
// later point.
func NewSeries(node string, points []PricePoint) Series {
	byDay := make(map[string]float64, len(points))
	for _, p := range points {
		byDay[dayKey(p.Date)] = p.Price
	}
	dates := make([]time.Time, 0, len(byDay))
	for k := range byDay {
		d, _ := time.Parse(dayKeyLayout, k)
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return Series{node: node, byDay: byDay, dates: dates}
}

// Node returns the causal-network node the series belongs to.
func (s Series) Node() string { return s.node }

// Len returns the number of observed days.
func (s Series) Len() int { return len(s.dates) }

// IsEmpty reports whether the series has no observations.
func (s Series) IsEmpty() bool { return len(s.dates) == 0 }

// Price returns the observed price on the given calendar day.
func (s Series) Price(day time.Time) (float64, bool) {
	p, ok := s.byDay[dayKey(day)]
	return p, ok
}

// First and Last return the observed value at the series boundaries.
func (s Series) First() (PricePoint, bool) {
	if s.IsEmpty() {
		return PricePoint{}, false
	}
	d := s.dates[0]
	return PricePoint{Date: d, Price: s.byDay[dayKey(d)]}, true
}

// Last returns the final observation of the series.
func (s Series) Last() (PricePoint, bool) {
	if s.IsEmpty() {
		return PricePoint{}, false
	}
	d := s.dates[len(s.dates)-1]
	return PricePoint{Date: d, Price: s.byDay[dayKey(d)]}, true
}

// CoversAny reports whether the series has at least one observation inside
// [start, end].
func (s Series) CoversAny(start, end time.Time) bool {
	for _, d := range s.dates {
		if !d.Before(truncateDay(start)) && !d.After(truncateDay(end)) {
			return true
		}
	}
	return false
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Provider supplies daily series for causal-network nodes. Fetch mechanics
// (external APIs, caching, resampling) live behind this interface; the
// analytics core only sees typed series.
type Provider interface {
	// DailySeries returns the node's series covering [start, end] as far
	// as the source allows. A thinner-than-requested series is not an
	// error; consumers degrade per observation.
	DailySeries(ctx context.Context, node string, start, end time.Time) (Series, error)
}

// UnknownNodeError reports a node no provider is configured for.
type UnknownNodeError struct {
	Node string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("unknown market data node %q", e.Node)
}

// StaticProvider serves pre-loaded series, used by seeds and tests.
type StaticProvider struct {
	series map[string][]PricePoint
}

// NewStaticProvider creates a provider over fixed per-node points.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{series: make(map[string][]PricePoint)}
}

// Add registers points for a node, appending to any existing ones.
func (p *StaticProvider) Add(node string, points ...PricePoint) {
	p.series[node] = append(p.series[node], points...)
}

// DailySeries implements Provider.
func (p *StaticProvider) DailySeries(_ context.Context, node string, start, end time.Time) (Series, error) {
	points, ok := p.series[node]
	if !ok {
		return Series{}, &UnknownNodeError{Node: node}
	}
	from, to := truncateDay(start), truncateDay(end)
	var window []PricePoint
	for _, pt := range points {
		d := truncateDay(pt.Date)
		if !d.Before(from) && !d.After(to) {
			window = append(window, pt)
		}
	}
	return NewSeries(node, window), nil
}
