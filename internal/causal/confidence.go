package causal

import (
	"tremor/pkg/contracts/domain"
)

// assessConfidence folds the regression, both placebos and the usable
// sample size into the ordinal confidence label. The ladder requires
// corroborating evidence beyond a bare p-value: a strong p with failing
// placebos never reaches high, and is_causal comes only with high or
// medium.
func assessConfidence(
	reg domain.RegressionResult,
	preDrift, zeroSurprise domain.PlaceboResult,
	numEvents int,
) (bool, domain.Confidence) {
	p := reg.PValue
	r2 := reg.RSquared

	passed, available := 0, 0
	for _, placebo := range []domain.PlaceboResult{preDrift, zeroSurprise} {
		if placebo.Available() {
			available++
			if placebo.Clean() {
				passed++
			}
		}
	}

	switch {
	case p < 0.01 && r2 > 0.15 && numEvents >= 10 && available > 0 && passed == available:
		return true, domain.ConfidenceHigh
	case p < 0.05 && numEvents >= 7 && passed >= 1:
		return true, domain.ConfidenceMedium
	case p < 0.10 && numEvents >= 5:
		return false, domain.ConfidenceLow
	default:
		return false, domain.ConfidenceNone
	}
}
