package interp

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/itohio/mpnoise/pkg/image"
)

// Cubic evaluates a Catmull-Rom spline through the voxel grid.
type Cubic struct {
	volume
}

func NewCubic(im *image.Image) (*Cubic, error) {
	v, err := newVolume(im)
	if err != nil {
		return nil, err
	}
	return &Cubic{volume: v}, nil
}

// At samples the volume at a scanner position. The second return is false
// outside the grid.
func (c *Cubic) At(pos r3.Vec) (float64, bool) {
	p, ok := c.voxel(pos)
	if !ok {
		return math.NaN(), false
	}
	ix, wx := cubicWeights(p.X)
	iy, wy := cubicWeights(p.Y)
	iz, wz := cubicWeights(p.Z)
	var acc float64
	for a := 0; a < 4; a++ {
		if wx[a] == 0 {
			continue
		}
		var accY float64
		for b := 0; b < 4; b++ {
			if wy[b] == 0 {
				continue
			}
			var accZ float64
			for d := 0; d < 4; d++ {
				accZ += wz[d] * c.sample(ix+a-1, iy+b-1, iz+d-1)
			}
			accY += wy[b] * accZ
		}
		acc += wx[a] * accY
	}
	return acc, true
}

func cubicWeights(p float64) (int, [4]float64) {
	i := int(math.Floor(p))
	t := p - float64(i)
	t2 := t * t
	t3 := t2 * t
	return i, [4]float64{
		0.5 * (-t3 + 2*t2 - t),
		0.5 * (3*t3 - 5*t2 + 2),
		0.5 * (-3*t3 + 4*t2 + t),
		0.5 * (t3 - t2),
	}
}
