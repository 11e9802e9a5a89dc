package kernel

import (
	"fmt"

	"github.com/itohio/mpnoise/pkg/image"
)

// Cuboid includes every voxel of a fixed box around the patch centre,
// clamped to the image bounds. The box spans extent voxels on each axis,
// from -(extent-1)+extent/2 to extent/2 around the centre voxel. On axes
// where the subsample factor is even the true patch centre sits half a voxel
// past the centre voxel, so an even extent brackets it symmetrically and an
// odd extent does not.
type Cuboid struct {
	base
	extent [3]int
	lo, hi [3]int
}

func NewCuboid(hdr image.Header, subsampleFactors [3]int, extent [3]int) (*Cuboid, error) {
	c := &Cuboid{base: newBase(hdr, subsampleFactors)}
	for axis := 0; axis < 3; axis++ {
		w := extent[axis]
		if w < 1 {
			return nil, fmt.Errorf("kernel: cuboid extent %d on axis %d", w, axis)
		}
		c.extent[axis] = w
		c.hi[axis] = w / 2
		c.lo[axis] = c.hi[axis] - w + 1
	}
	return c, nil
}

// DefaultCuboidExtent grows an isotropic box, respecting the parity imposed
// by the subsample factors, until it holds more voxels than the series has
// volumes.
func DefaultCuboidExtent(hdr image.Header, subsampleFactors [3]int) [3]int {
	var extent [3]int
	for axis := 0; axis < 3; axis++ {
		if subsampleFactors[axis]%2 == 0 {
			extent[axis] = 2
		} else {
			extent[axis] = 1
		}
	}
	m := hdr.Volumes()
	for extent[0]*extent[1]*extent[2] <= m {
		for axis := 0; axis < 3; axis++ {
			extent[axis] += 2
		}
	}
	return extent
}

func (c *Cuboid) Extent() [3]int { return c.extent }

func (c *Cuboid) EstimatedSize() int {
	return c.extent[0] * c.extent[1] * c.extent[2]
}

func (c *Cuboid) Patch(centre [3]int) Data {
	data := NewData(c.voxelToReal(centre), -1)
	data.Voxels = make([]Voxel, 0, c.EstimatedSize())
	for dx := c.lo[0]; dx <= c.hi[0]; dx++ {
		x := centre[0] + dx
		for dy := c.lo[1]; dy <= c.hi[1]; dy++ {
			y := centre[1] + dy
			for dz := c.lo[2]; dz <= c.hi[2]; dz++ {
				z := centre[2] + dz
				if !c.included(x, y, z) {
					continue
				}
				pos := c.hdr.VoxelToScanner(float64(x), float64(y), float64(z))
				ox := pos.X - data.CentreRealspace.X
				oy := pos.Y - data.CentreRealspace.Y
				oz := pos.Z - data.CentreRealspace.Z
				sqDist := ox*ox + oy*oy + oz*oz
				if x == centre[0] && y == centre[1] && z == centre[2] {
					data.CentreIndex = len(data.Voxels)
				}
				data.Voxels = append(data.Voxels, NewVoxel([3]int{x, y, z}, sqDist))
				if sqDist > data.MaxDistance {
					data.MaxDistance = sqDist
				}
			}
		}
	}
	data.MaxDistance = sqrtOrNegInf(data.MaxDistance)
	return data
}
