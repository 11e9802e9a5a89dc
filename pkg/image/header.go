package image

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Header describes a 3-D or 4-D voxel grid: sizes, spacing, the
// voxel-to-scanner affine, the cell datatype and free-form key/value
// metadata. Headers are plain values; deriving a new grid always works on a
// copy so that many images can share the same geometry safely.
type Header struct {
	Size            [4]int // x, y, z, volumes; Size[3] == 0 for 3-D grids
	Spacing         [3]float64
	Trans           Transform
	DT              DType
	KeyValues       map[string]string
	IntensityOffset float64
	IntensityScale  float64
}

// NewHeader builds an axis-aligned header. Pass size[3] == 0 for a 3-D grid.
func NewHeader(size [4]int, spacing [3]float64, dt DType) Header {
	return Header{
		Size:           size,
		Spacing:        spacing,
		Trans:          IdentityTransform(spacing),
		DT:             dt,
		IntensityScale: 1,
	}
}

func (h Header) NDim() int {
	if h.Size[3] > 0 {
		return 4
	}
	return 3
}

// Volumes reports the series length M; 1 for 3-D grids.
func (h Header) Volumes() int {
	if h.Size[3] > 0 {
		return h.Size[3]
	}
	return 1
}

// NumVoxels counts the spatial (3-D) grid size.
func (h Header) NumVoxels() int {
	return h.Size[0] * h.Size[1] * h.Size[2]
}

// Contains reports whether the spatial index lies inside the grid.
func (h Header) Contains(x, y, z int) bool {
	return x >= 0 && x < h.Size[0] && y >= 0 && y < h.Size[1] && z >= 0 && z < h.Size[2]
}

// VoxelToScanner maps continuous voxel coordinates to scanner millimetres.
func (h Header) VoxelToScanner(x, y, z float64) r3.Vec {
	return h.Trans.Apply(x, y, z)
}

// Clone deep-copies the header, including metadata.
func (h Header) Clone() Header {
	if h.KeyValues != nil {
		kv := make(map[string]string, len(h.KeyValues))
		for k, v := range h.KeyValues {
			kv[k] = v
		}
		h.KeyValues = kv
	}
	return h
}

// As3D truncates the header to three dimensions, clears intensity scaling
// and switches the datatype, which is how export maps derive their geometry.
func (h Header) As3D(dt DType) Header {
	out := h.Clone()
	out.Size[3] = 0
	out.DT = dt
	out.IntensityOffset = 0
	out.IntensityScale = 1
	return out
}

// SameGrid reports whether the spatial dimensions of two headers agree.
func (h Header) SameGrid(other Header) bool {
	return h.Size[0] == other.Size[0] && h.Size[1] == other.Size[1] && h.Size[2] == other.Size[2]
}

// CheckSameGrid is the validating form of SameGrid for startup checks.
func (h Header) CheckSameGrid(other Header, what string) error {
	if !h.SameGrid(other) {
		return fmt.Errorf("image: %s grid %dx%dx%d does not match %dx%dx%d",
			what, other.Size[0], other.Size[1], other.Size[2], h.Size[0], h.Size[1], h.Size[2])
	}
	return nil
}
