package kernel

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/itohio/mpnoise/pkg/image"
)

// Kernel is the patch-selection contract: given an input-grid centre voxel,
// return the patch contributing to its PCA.
type Kernel interface {
	// EstimatedSize is a tight upper bound on patch voxel count, used to
	// pre-allocate per-worker matrices.
	EstimatedSize() int
	Patch(centre [3]int) Data
	// SetMask restricts patches to the given mask; nil clears it.
	SetMask(m *image.Mask)
}

// base carries the geometry shared by all kernel shapes. When a subsample
// factor is even the true patch centre sits on a half-voxel boundary, so
// positions on that axis are offset by half a voxel.
type base struct {
	hdr       image.Header
	halfVoxel [3]float64
	mask      *image.Mask
}

func newBase(hdr image.Header, subsampleFactors [3]int) base {
	b := base{hdr: hdr.Clone()}
	for axis := 0; axis < 3; axis++ {
		if subsampleFactors[axis]%2 == 0 {
			b.halfVoxel[axis] = 0.5
		}
	}
	return b
}

func (b *base) SetMask(m *image.Mask) { b.mask = m }

func (b *base) included(x, y, z int) bool {
	return b.hdr.Contains(x, y, z) && (b.mask == nil || b.mask.At(x, y, z))
}

// voxelToReal translates a processed voxel index into the scanner-space
// position of the patch centre, including any half-voxel offsets.
func (b *base) voxelToReal(p [3]int) r3.Vec {
	return b.hdr.VoxelToScanner(
		float64(p[0])+b.halfVoxel[0],
		float64(p[1])+b.halfVoxel[1],
		float64(p[2])+b.halfVoxel[2])
}
