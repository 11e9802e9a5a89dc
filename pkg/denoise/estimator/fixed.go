package estimator

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/itohio/mpnoise/pkg/image"
	"github.com/itohio/mpnoise/pkg/interp"
)

// Fixed assumes a known noise level and only derives the Marchenko-Pastur
// upper edge and signal rank from it. When the data were preconditioned by
// a variance-stabilising field, the supplied level is rescaled by the prior
// sigma interpolated at the patch centre.
type Fixed struct {
	sigma2 float64
	vst    *interp.Cubic
}

func NewFixed(sigma float64, vst *image.Image) (*Fixed, error) {
	f := &Fixed{sigma2: sigma * sigma}
	if vst.Valid() {
		c, err := interp.NewCubic(vst)
		if err != nil {
			return nil, err
		}
		f.vst = c
	}
	return f, nil
}

func (f *Fixed) Estimate(s []float64, m, n, rp int, pos r3.Vec) Result {
	result := NewResult()
	if f.vst != nil {
		prior, ok := f.vst.At(pos)
		if !ok {
			return result
		}
		result.Sigma2 = f.sigma2 / (prior * prior)
	} else {
		result.Sigma2 = f.sigma2
	}
	return sweepFromSigma(result, s, m, n, rp)
}

// sweepFromSigma fills in the MP upper edge for a known sigma^2 and counts
// the eigenvalues below it. CutoffP is the *number* of sub-threshold
// eigenvalues.
func sweepFromSigma(result Result, s []float64, m, n, rp int) Result {
	qnz := DimLongNonzero(m, n, rp)
	rz := RankZero(m, n, rp)
	rnz := RankNonzero(m, n, rp)
	result.LamPlus = sq(1.0+math.Sqrt(float64(rnz)/float64(qnz))) * result.Sigma2
	result.CutoffP = rz
	for p := rz; p < len(s); p++ {
		if s[p]/float64(qnz) > result.LamPlus {
			break
		}
		result.CutoffP = p + 1
	}
	return result
}
