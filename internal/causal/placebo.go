package causal

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"tremor/pkg/contracts/domain"
)

// runPlaceboPreDrift regresses pre-window returns on surprises. The target
// should not have been moving with the surprise before the event; a
// significant coefficient signals leakage or an endogenous baseline. The
// placebo passes when the p-value exceeds alpha.
func runPlaceboPreDrift(surprises, preReturns []float64, alpha float64) (domain.PlaceboResult, error) {
	fit, err := fitOLS(surprises, preReturns, true)
	if err != nil {
		return domain.PlaceboResult{}, err
	}
	coeff := fit.slope()
	p := fit.slopeP()
	passed := p > alpha
	return domain.PlaceboResult{Coefficient: &coeff, PValue: &p, Passed: &passed}, nil
}

// runPlaceboZeroSurprise tests whether near-zero surprises still move the
// target. Events with |surprise| below half the (population) standard
// deviation of all surprises form the control set; their mean post-return
// is tested against zero with an intercept-only fit. Fewer than three
// controls make the placebo inconclusive, reported as null rather than
// a failure.
func runPlaceboZeroSurprise(surprises, postReturns []float64, alpha float64) domain.PlaceboResult {
	std := stat.PopStdDev(surprises, nil)
	if std == 0 {
		return domain.PlaceboResult{}
	}

	threshold := 0.5 * std
	var controls []float64
	for i, s := range surprises {
		if math.Abs(s) < threshold {
			controls = append(controls, postReturns[i])
		}
	}
	if len(controls) < 3 {
		return domain.PlaceboResult{}
	}

	fit, err := fitOLS(nil, controls, false)
	if err != nil {
		return domain.PlaceboResult{}
	}

	coeff := fit.params[0]
	p := fit.pValues[0]
	passed := p > alpha
	return domain.PlaceboResult{Coefficient: &coeff, PValue: &p, Passed: &passed}
}
