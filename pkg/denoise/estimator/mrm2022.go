package estimator

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// MRM2022 implements the estimator of Olesen et al. 2022: iterate from the
// top of the spectrum downward, predicting the Marchenko-Pastur upper edge
// from the current bulk variance, and stop as soon as an eigenvalue falls
// below the previous prediction.
type MRM2022 struct{}

func (MRM2022) Estimate(s []float64, m, n, rp int, _ r3.Vec) Result {
	rz := RankZero(m, n, rp)
	mprime := RankNonzero(m, n, rp)
	nprime := DimLongNonzero(m, n, rp)
	// Upper edge expressed in the same e/N' units as lam below.
	sigmasqToLamplus := sq(math.Sqrt(float64(nprime))+math.Sqrt(float64(mprime))) / float64(nprime)
	clam := 0.0
	for i := rz; i < rz+mprime; i++ {
		clam += s[i]
	}
	// The manuscript uses p to count signal components; this is a direct
	// translation of its iteration.
	lamplusprev := math.Inf(-1)
	result := NewResult()
	for p := 0; p < mprime; p++ {
		i := len(s) - 1 - p
		lam := s[i] / float64(nprime)
		if lam < lamplusprev {
			return result
		}
		clam -= s[i]
		sigmasq := clam / float64((mprime-p)*(nprime-p))
		lamplusprev = sigmasq * sigmasqToLamplus
		result.CutoffP = i
		result.Sigma2 = sigmasq
		result.LamPlus = lamplusprev
	}
	return result
}

func sq(x float64) float64 { return x * x }
