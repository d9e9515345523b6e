package causal

import (
	"math"
	"time"

	"tremor/internal/marketdata"
)

type searchDirection int

const (
	searchBackward searchDirection = iota
	searchForward
)

// windowReturns is the pair of log returns computed around one event.
type windowReturns struct {
	pre  float64
	post float64
}

// exclusionError marks a per-event condition that excludes the event from
// the sample without failing the run.
type exclusionError struct {
	reason string
}

func (e *exclusionError) Error() string { return e.reason }

// computeWindowReturns resolves the four calendar boundaries around an
// event and computes the pre- and post-window log returns.
//
// With event day D, gap g, pre-window p and post-window q the boundaries
// are pre-start D−(p+g), gap-start D−g, gap-end D+g and post-end D+(q+g);
// a zero gap collapses gap-start and gap-end onto D. Boundaries on
// non-trading days snap to the nearest available price, searching away
// from the event up to maxBoundarySearchDays. Log returns are used
// because they are additive over time and close to symmetric, which the
// OLS normality assumption leans on.
func computeWindowReturns(eventTS time.Time, series marketdata.Series, params StudyParams) (windowReturns, error) {
	if series.IsEmpty() {
		return windowReturns{}, &exclusionError{reason: ReasonInsufficientMarketData}
	}

	day := eventTS.UTC()
	eventDay := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	gap := params.GapDays
	preStart := eventDay.AddDate(0, 0, -(params.PreWindowDays + gap))
	gapStart := eventDay
	gapEnd := eventDay
	if gap > 0 {
		gapStart = eventDay.AddDate(0, 0, -gap)
		gapEnd = eventDay.AddDate(0, 0, gap)
	}
	postEnd := eventDay.AddDate(0, 0, params.PostWindowDays+gap)

	preStartPrice, ok := nearestPrice(series, preStart, searchBackward)
	if !ok {
		return windowReturns{}, &exclusionError{reason: ReasonNoTradablePrice}
	}
	gapStartPrice, ok := nearestPrice(series, gapStart, searchBackward)
	if !ok {
		return windowReturns{}, &exclusionError{reason: ReasonNoTradablePrice}
	}
	gapEndPrice, ok := nearestPrice(series, gapEnd, searchForward)
	if !ok {
		return windowReturns{}, &exclusionError{reason: ReasonNoTradablePrice}
	}
	postEndPrice, ok := nearestPrice(series, postEnd, searchForward)
	if !ok {
		return windowReturns{}, &exclusionError{reason: ReasonNoTradablePrice}
	}

	if preStartPrice <= 0 || gapStartPrice <= 0 || gapEndPrice <= 0 || postEndPrice <= 0 {
		return windowReturns{}, &exclusionError{reason: ReasonInsufficientMarketData}
	}

	return windowReturns{
		pre:  math.Log(gapStartPrice / preStartPrice),
		post: math.Log(postEndPrice / gapEndPrice),
	}, nil
}

// nearestPrice finds the price closest to target in the given direction,
// scanning day by day up to maxBoundarySearchDays.
func nearestPrice(series marketdata.Series, target time.Time, dir searchDirection) (float64, bool) {
	for offset := 0; offset <= maxBoundarySearchDays; offset++ {
		day := target
		if dir == searchBackward {
			day = target.AddDate(0, 0, -offset)
		} else {
			day = target.AddDate(0, 0, offset)
		}
		if price, ok := series.Price(day); ok {
			return price, true
		}
	}
	return 0, false
}
