// Package kernel selects the spatial patch of input voxels contributing to
// each local PCA.
package kernel

import "math"

// Voxel is one patch member: its input-grid index, the squared scanner-space
// distance to the patch centre, and an optional per-voxel noise level used
// for nonstationarity-corrected processing (NaN when absent).
type Voxel struct {
	Index      [3]int
	SqDistance float64
	NoiseLevel float64
}

func NewVoxel(index [3]int, sqDistance float64) Voxel {
	return Voxel{Index: index, SqDistance: sqDistance, NoiseLevel: math.NaN()}
}

func (v Voxel) Distance() float64 { return math.Sqrt(v.SqDistance) }

// Less orders voxels by squared distance, ties broken by index in z, y, x
// order so that nearest-K selection is deterministic.
func Less(a, b Voxel) bool {
	if a.SqDistance != b.SqDistance {
		return a.SqDistance < b.SqDistance
	}
	if a.Index[2] != b.Index[2] {
		return a.Index[2] < b.Index[2]
	}
	if a.Index[1] != b.Index[1] {
		return a.Index[1] < b.Index[1]
	}
	return a.Index[0] < b.Index[0]
}
