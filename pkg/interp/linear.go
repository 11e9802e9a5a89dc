package interp

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/itohio/mpnoise/pkg/image"
)

// Linear performs trilinear interpolation; cheaper than Cubic and used in
// iteration loops where the noise map is smoothed afterwards anyway.
type Linear struct {
	volume
}

func NewLinear(im *image.Image) (*Linear, error) {
	v, err := newVolume(im)
	if err != nil {
		return nil, err
	}
	return &Linear{volume: v}, nil
}

func (l *Linear) At(pos r3.Vec) (float64, bool) {
	p, ok := l.voxel(pos)
	if !ok {
		return math.NaN(), false
	}
	ix, tx := split(p.X)
	iy, ty := split(p.Y)
	iz, tz := split(p.Z)
	var acc float64
	for a := 0; a < 2; a++ {
		wx := lerpWeight(tx, a)
		for b := 0; b < 2; b++ {
			wy := lerpWeight(ty, b)
			for d := 0; d < 2; d++ {
				acc += wx * wy * lerpWeight(tz, d) * l.sample(ix+a, iy+b, iz+d)
			}
		}
	}
	return acc, true
}

func split(p float64) (int, float64) {
	i := int(math.Floor(p))
	return i, p - float64(i)
}

func lerpWeight(t float64, side int) float64 {
	if side == 0 {
		return 1 - t
	}
	return t
}
