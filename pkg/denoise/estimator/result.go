package estimator

import "math"

// Result of fitting the noise bulk of one patch eigenspectrum.
// CutoffP counts the eigenvalues attributed to noise, so the signal rank is
// min(M,N) - CutoffP. A Result is valid iff Sigma2 is finite.
type Result struct {
	CutoffP int
	Sigma2  float64
	LamPlus float64
}

func NewResult() Result {
	return Result{CutoffP: -1, Sigma2: math.NaN(), LamPlus: math.NaN()}
}

func (r Result) Valid() bool {
	return !math.IsNaN(r.Sigma2) && !math.IsInf(r.Sigma2, 0)
}

// SignalRank converts the noise cutoff into the retained signal rank;
// invalid results report zero.
func (r Result) SignalRank(m, n int) int {
	if !r.Valid() || r.CutoffP < 0 {
		return 0
	}
	if m < n {
		return m - r.CutoffP
	}
	return n - r.CutoffP
}
