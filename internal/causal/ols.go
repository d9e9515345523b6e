package causal

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// regressionFit is the raw output of one least-squares fit. Parameter
// order is intercept first, then the slope when a regressor is present.
type regressionFit struct {
	params   []float64
	stdErr   []float64
	tStats   []float64
	pValues  []float64
	rSquared float64
	nobs     int
	dof      int
}

// slope and slopeIndex assume a two-parameter fit.
func (f regressionFit) slope() float64       { return f.params[1] }
func (f regressionFit) slopeStdErr() float64 { return f.stdErr[1] }
func (f regressionFit) slopeT() float64      { return f.tStats[1] }
func (f regressionFit) slopeP() float64      { return f.pValues[1] }

// confInterval returns the two-sided confidence interval for the given
// parameter at significance level alpha, using the Student-t quantile on
// the residual degrees of freedom.
func (f regressionFit) confInterval(idx int, alpha float64) (float64, float64) {
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(f.dof)}
	crit := t.Quantile(1 - alpha/2)
	return f.params[idx] - crit*f.stdErr[idx], f.params[idx] + crit*f.stdErr[idx]
}

// fitOLS fits y against a design of a constant plus (optionally) one
// regressor. With robust=true the parameter covariance is the HC1
// heteroskedasticity-consistent estimator, i.e. the White sandwich scaled
// by n/(n-k); otherwise the classic homoskedastic s²(X'X)⁻¹.
//
// Small samples are the norm here, so the slope may be fragile; the
// caller's confidence ladder, not this function, decides how much to
// trust it.
func fitOLS(x, y []float64, robust bool) (regressionFit, error) {
	n := len(y)
	k := 1
	if x != nil {
		if len(x) != n {
			return regressionFit{}, fmt.Errorf("ols: x has %d observations, y has %d", len(x), n)
		}
		k = 2
	}
	if n <= k {
		return regressionFit{}, fmt.Errorf("ols: %d observations cannot support %d parameters", n, k)
	}

	design := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, 1)
		if k == 2 {
			design.Set(i, 1, x[i])
		}
	}
	response := mat.NewVecDense(n, append([]float64(nil), y...))

	var xtx mat.SymDense
	xtx.SymOuterK(1, design.T())

	var xtxInv mat.Dense
	if err := xtxInv.Inverse(denseFromSym(&xtx)); err != nil {
		return regressionFit{}, fmt.Errorf("ols: singular design (zero variance in regressor?): %w", err)
	}

	// beta = (X'X)^-1 X'y
	var xty mat.VecDense
	xty.MulVec(design.T(), response)
	var beta mat.VecDense
	beta.MulVec(&xtxInv, &xty)

	// Residuals and fit quality.
	var fitted mat.VecDense
	fitted.MulVec(design, &beta)
	residuals := make([]float64, n)
	sse := 0.0
	meanY := 0.0
	for i := 0; i < n; i++ {
		meanY += y[i]
	}
	meanY /= float64(n)
	sst := 0.0
	for i := 0; i < n; i++ {
		residuals[i] = y[i] - fitted.AtVec(i)
		sse += residuals[i] * residuals[i]
		dev := y[i] - meanY
		sst += dev * dev
	}
	rSquared := 0.0
	if sst > 0 {
		rSquared = 1 - sse/sst
	}

	dof := n - k
	cov := mat.NewDense(k, k, nil)
	if robust {
		// Meat of the sandwich: X' diag(e²) X.
		meat := mat.NewDense(k, k, nil)
		for i := 0; i < n; i++ {
			e2 := residuals[i] * residuals[i]
			for a := 0; a < k; a++ {
				for b := 0; b < k; b++ {
					meat.Set(a, b, meat.At(a, b)+e2*design.At(i, a)*design.At(i, b))
				}
			}
		}
		var tmp mat.Dense
		tmp.Mul(&xtxInv, meat)
		cov.Mul(&tmp, &xtxInv)
		cov.Scale(float64(n)/float64(dof), cov)
	} else {
		s2 := sse / float64(dof)
		cov.Scale(s2, &xtxInv)
	}

	// Inference uses Student-t on n-k degrees of freedom rather than the
	// normal approximation; with the small samples typical here the wider
	// tails make p-values and intervals strictly more conservative.
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dof)}
	fit := regressionFit{
		params:   make([]float64, k),
		stdErr:   make([]float64, k),
		tStats:   make([]float64, k),
		pValues:  make([]float64, k),
		rSquared: rSquared,
		nobs:     n,
		dof:      dof,
	}
	for j := 0; j < k; j++ {
		fit.params[j] = beta.AtVec(j)
		fit.stdErr[j] = math.Sqrt(cov.At(j, j))
		if fit.stdErr[j] > 0 {
			fit.tStats[j] = fit.params[j] / fit.stdErr[j]
			fit.pValues[j] = 2 * tDist.CDF(-math.Abs(fit.tStats[j]))
		} else {
			fit.tStats[j] = 0
			fit.pValues[j] = 1
		}
	}
	return fit, nil
}

func denseFromSym(s *mat.SymDense) *mat.Dense {
	n := s.SymmetricDim()
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d.Set(i, j, s.At(i, j))
		}
	}
	return d
}
