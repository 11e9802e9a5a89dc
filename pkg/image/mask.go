package image

import "github.com/chewxy/math32"

// Mask is a boolean spatial grid derived from a scalar image; voxels with a
// non-NaN magnitude above 0.5 are considered inside.
type Mask struct {
	hdr   Header
	cells []bool
}

func MaskFromImage(im *Image) *Mask {
	hdr := im.Header().As3D(Float32)
	m := &Mask{hdr: hdr, cells: make([]bool, hdr.NumVoxels())}
	i := 0
	for x := 0; x < hdr.Size[0]; x++ {
		for y := 0; y < hdr.Size[1]; y++ {
			for z := 0; z < hdr.Size[2]; z++ {
				val := float32(im.RealAt(x, y, z, 0))
				m.cells[i] = !math32.IsNaN(val) && math32.Abs(val) > 0.5
				i++
			}
		}
	}
	return m
}

func (m *Mask) Header() Header { return m.hdr }

func (m *Mask) At(x, y, z int) bool {
	if m == nil {
		return true
	}
	return m.cells[(x*m.hdr.Size[1]+y)*m.hdr.Size[2]+z]
}

// Count reports the number of included voxels.
func (m *Mask) Count() int {
	n := 0
	for _, c := range m.cells {
		if c {
			n++
		}
	}
	return n
}
