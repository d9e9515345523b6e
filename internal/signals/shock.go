package signals

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	// MinHistoryForZScore is the smallest history that supports a z-score.
	// Below it the detector falls back to an absolute-magnitude test.
	MinHistoryForZScore = 5

	// DefaultAbsoluteThreshold is the fallback shock magnitude used when
	// no z-score can be computed.
	DefaultAbsoluteThreshold = 1.0
)

// DetectShock classifies value against the transform's signal history.
//
// It returns the z-score and whether the value is a shock. The z-score is
// nil when the history has fewer than MinHistoryForZScore samples or zero
// variance; in both cases the shock flag is abs(value) > absoluteThreshold.
// The standard deviation is sample (Bessel-corrected) standard deviation.
//
// The function is pure and never fails for finite numeric input.
func DetectShock(value float64, history []float64, thresholdSD, absoluteThreshold float64) (*float64, bool) {
	if len(history) < MinHistoryForZScore {
		return nil, math.Abs(value) > absoluteThreshold
	}

	mean := stat.Mean(history, nil)
	std := stat.StdDev(history, nil)
	if std == 0 {
		return nil, math.Abs(value) > absoluteThreshold
	}

	z := (value - mean) / std
	return &z, math.Abs(z) > thresholdSD
}
