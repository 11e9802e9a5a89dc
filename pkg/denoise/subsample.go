package denoise

import (
	"fmt"

	"github.com/itohio/mpnoise/pkg/image"
)

// Subsample decimates the output grid relative to the input grid by integer
// factors. Output voxel q corresponds to input voxel origin + q*f; the
// origin is chosen so that the set of processed voxels sits centred within
// the input volume.
type Subsample struct {
	hIn     image.Header
	factors [3]int
	size    [3]int
	origin  [3]int
	hSS     image.Header
}

func NewSubsample(in image.Header, factors [3]int) (*Subsample, error) {
	s := &Subsample{hIn: in.Clone(), factors: factors}
	for axis := 0; axis < 3; axis++ {
		f := factors[axis]
		if f < 1 {
			return nil, fmt.Errorf("%w: subsample factor %d on axis %d", ErrConfig, f, axis)
		}
		if f > in.Size[axis] {
			return nil, fmt.Errorf("%w: subsample factor %d exceeds axis %d size %d",
				ErrConfig, f, axis, in.Size[axis])
		}
		s.size[axis] = (in.Size[axis] + f - 1) / f
		s.origin[axis] = (in.Size[axis] - f*(s.size[axis]-1) - 1) / 2
	}
	s.hSS = s.makeHeader()
	return s, nil
}

// Header is the geometry of the decimated grid.
func (s *Subsample) Header() image.Header { return s.hSS }

// InputHeader is the geometry of the full-resolution grid.
func (s *Subsample) InputHeader() image.Header { return s.hIn }

func (s *Subsample) Factors() [3]int { return s.factors }

// Process reports whether an input-grid voxel lies on the processed
// sublattice.
func (s *Subsample) Process(p [3]int) bool {
	for axis := 0; axis < 3; axis++ {
		d := p[axis] - s.origin[axis]
		if d < 0 || d%s.factors[axis] != 0 || d/s.factors[axis] >= s.size[axis] {
			return false
		}
	}
	return true
}

// InToSS maps a processed input voxel onto the decimated grid.
func (s *Subsample) InToSS(p [3]int) [3]int {
	var q [3]int
	for axis := 0; axis < 3; axis++ {
		q[axis] = (p[axis] - s.origin[axis]) / s.factors[axis]
	}
	return q
}

// SSToIn maps a decimated-grid voxel back to its input voxel.
func (s *Subsample) SSToIn(q [3]int) [3]int {
	var p [3]int
	for axis := 0; axis < 3; axis++ {
		p[axis] = s.origin[axis] + q[axis]*s.factors[axis]
	}
	return p
}

// The decimated header scales the direction columns and spacing by the
// factors, and translates the origin so that output voxel (0,0,0) maps to
// the centre of the input block it represents. For even factors that centre
// lies on a half-voxel boundary of the input grid.
func (s *Subsample) makeHeader() image.Header {
	hdr := s.hIn.As3D(image.Float32)
	var f [3]float64
	var centre [3]float64
	for axis := 0; axis < 3; axis++ {
		hdr.Size[axis] = s.size[axis]
		hdr.Spacing[axis] = s.hIn.Spacing[axis] * float64(s.factors[axis])
		f[axis] = float64(s.factors[axis])
		centre[axis] = float64(s.origin[axis]) + float64(s.factors[axis]-1)/2.0
	}
	zero := s.hIn.VoxelToScanner(centre[0], centre[1], centre[2])
	hdr.Trans = s.hIn.Trans.ScaleColumns(f)
	hdr.Trans.M[0][3] = zero.X
	hdr.Trans.M[1][3] = zero.Y
	hdr.Trans.M[2][3] = zero.Z
	return hdr
}
