package estimator

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Rank forces a fixed signal rank instead of estimating one. Components
// assumed zero from preconditioning still count towards the requested rank.
type Rank struct {
	rank int
}

func NewRank(rank int) *Rank { return &Rank{rank: rank} }

func (r *Rank) Estimate(s []float64, m, n, rp int, _ r3.Vec) Result {
	rz := RankZero(m, n, rp)
	rnz := RankNonzero(m, n, rp)
	qnz := DimLongNonzero(m, n, rp)
	result := NewResult()
	switch {
	case rnz == r.rank:
		// Every component contributes, including the assumed-zero ones.
		result.CutoffP = 0
		result.LamPlus = 0
		result.Sigma2 = 0
	case rnz > r.rank:
		result.CutoffP = len(s) - (r.rank - rz)
		sum := 0.0
		for i := rz; i < result.CutoffP; i++ {
			sum += s[i]
		}
		result.Sigma2 = sum / (float64(qnz) * float64(result.CutoffP+1-rz))
		result.LamPlus = s[result.CutoffP-1] / float64(qnz)
	}
	// A requested rank above the available rank leaves the result invalid
	// for the caller to handle.
	return result
}
