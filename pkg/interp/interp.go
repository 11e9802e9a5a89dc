// Package interp samples 3-D scalar volumes at scanner-space positions.
// Interpolators keep no mutable state between calls, so a single instance
// may be shared across workers.
package interp

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/itohio/mpnoise/pkg/image"
)

// Sampler is satisfied by both interpolators.
type Sampler interface {
	At(pos r3.Vec) (float64, bool)
}

type volume struct {
	im   *image.Image
	inv  image.Transform
	size [3]int
}

func newVolume(im *image.Image) (volume, error) {
	if !im.Valid() {
		return volume{}, fmt.Errorf("interp: invalid image")
	}
	inv, err := im.Header().Trans.Inverse()
	if err != nil {
		return volume{}, fmt.Errorf("interp: %w", err)
	}
	hdr := im.Header()
	return volume{im: im, inv: inv, size: [3]int{hdr.Size[0], hdr.Size[1], hdr.Size[2]}}, nil
}

// voxel maps a scanner position into continuous voxel coordinates and
// reports whether it lies within the half-voxel border of the grid.
func (v volume) voxel(pos r3.Vec) (r3.Vec, bool) {
	p := v.inv.Apply(pos.X, pos.Y, pos.Z)
	if p.X < -0.5 || p.X > float64(v.size[0])-0.5 ||
		p.Y < -0.5 || p.Y > float64(v.size[1])-0.5 ||
		p.Z < -0.5 || p.Z > float64(v.size[2])-0.5 {
		return p, false
	}
	return p, true
}

func (v volume) sample(x, y, z int) float64 {
	x = clampIndex(x, v.size[0])
	y = clampIndex(y, v.size[1])
	z = clampIndex(z, v.size[2])
	return v.im.RealAt(x, y, z, 0)
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
