package estimator

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Med estimates the Marchenko-Pastur upper edge from the median eigenvalue
// as in Gavish and Donoho 2014, then derives the rank and the bulk noise
// level from the components below that edge.
type Med struct{}

func (Med) Estimate(s []float64, m, n, rp int, _ r3.Vec) Result {
	qnz := DimLongNonzero(m, n, rp)
	rz := RankZero(m, n, rp)
	rnz := RankNonzero(m, n, rp)
	// Eigenvalues arrive sorted; the median only needs to skip the
	// components assumed zero from preconditioning.
	nnz := len(s) - rz
	var ymed float64
	if nnz&1 == 1 {
		ymed = s[rz+nnz/2]
	} else {
		ymed = 0.5 * (s[rz+nnz/2-1] + s[rz+nnz/2])
	}
	beta := float64(rnz) / float64(qnz)
	result := NewResult()
	result.LamPlus = ymed / (float64(qnz) * mpMedian(beta))
	// The median pins down the upper edge of the MP bulk, but it is not
	// itself a rank estimate; the sweep below still has to run.
	result.CutoffP = rz
	for p := rz; p < len(s); p++ {
		if s[p]/float64(qnz) > result.LamPlus {
			break
		}
		result.CutoffP = p + 1
	}
	sum := 0.0
	for i := rz; i < result.CutoffP; i++ {
		sum += s[i]
	}
	result.Sigma2 = 2.0 * sum / (float64(qnz) * float64(result.CutoffP+1-rz))
	return result
}

// mpMedian is the median of the Marchenko-Pastur distribution at aspect
// ratio beta; third-order polynomial fit to data generated with the code
// supplementary to Gavish and Donoho 2014.
func mpMedian(beta float64) float64 {
	betasq := beta * beta
	return -0.005882794526340723*betasq*beta -
		0.007508551496715836*betasq -
		0.3338169644754149*beta +
		1.0
}
