package estimator

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Unity assumes the data were rescaled by a prior noise level estimate, in
// which case the residual noise variance is exactly one and only the rank
// remains to be determined.
type Unity struct{}

func (Unity) Estimate(s []float64, m, n, rp int, _ r3.Vec) Result {
	result := NewResult()
	result.Sigma2 = 1.0
	return sweepFromSigma(result, s, m, n, rp)
}
