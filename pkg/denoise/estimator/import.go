package estimator

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/itohio/mpnoise/pkg/image"
	"github.com/itohio/mpnoise/pkg/interp"
)

// Import takes the noise level from a pre-estimated map, sampled at each
// patch centre, and otherwise behaves like Fixed.
type Import struct {
	noise *interp.Cubic
	vst   *interp.Cubic
}

func NewImport(noiseIn, vst *image.Image) (*Import, error) {
	ni, err := interp.NewCubic(noiseIn)
	if err != nil {
		return nil, err
	}
	imp := &Import{noise: ni}
	if vst.Valid() {
		c, err := interp.NewCubic(vst)
		if err != nil {
			return nil, err
		}
		imp.vst = c
	}
	return imp, nil
}

func (im *Import) Estimate(s []float64, m, n, rp int, pos r3.Vec) Result {
	result := NewResult()
	sigma, ok := im.noise.At(pos)
	if !ok {
		return result
	}
	result.Sigma2 = sigma * sigma
	if im.vst != nil {
		prior, ok := im.vst.At(pos)
		if !ok {
			return NewResult()
		}
		result.Sigma2 /= prior * prior
	}
	return sweepFromSigma(result, s, m, n, rp)
}
