package estimator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Exp sweeps the eigenspectrum from the bottom up, comparing the running
// bulk mean against the spread-derived variance candidate; the last index
// where the bulk is still consistent with pure noise wins. Version 1 is the
// Veraart 2016 estimator, version 2 the Cordero-Grande 2019 refinement that
// discounts already-excluded signal components from the long dimension.
type Exp struct {
	version int
}

func NewExp(version int) (*Exp, error) {
	if version != 1 && version != 2 {
		return nil, fmt.Errorf("estimator: exp version %d", version)
	}
	return &Exp{version: version}, nil
}

func (e *Exp) Estimate(s []float64, m, n, rp int, _ r3.Vec) Result {
	qnz := DimLongNonzero(m, n, rp)
	rz := RankZero(m, n, rp)
	lamR := s[rz] / float64(qnz)
	clam := 0.0
	result := NewResult()
	// The reference papers use "p" for the number of signal components;
	// here p indexes the last noise component, so the number of noise
	// components is p + 1 - rz.
	for p := rz; p < len(s); p++ {
		lam := s[p] / float64(qnz)
		clam += lam
		var denominator float64
		switch e.version {
		case 1:
			denominator = float64(qnz)
		case 2:
			denominator = float64(qnz - (len(s) - p - 1))
		}
		gam := float64(p+1-rz) / denominator
		sigsq1 := clam / float64(p+1-rz)
		sigsq2 := (lam - lamR) / (4.0 * math.Sqrt(gam))
		// sigsq2 > sigsq1 if signal, else noise
		if sigsq2 < sigsq1 {
			result.Sigma2 = sigsq1
			result.CutoffP = p + 1
			result.LamPlus = lam
		}
	}
	return result
}
