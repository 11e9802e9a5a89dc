package kernel

import (
	"fmt"
	"math"
	"sort"

	"github.com/itohio/mpnoise/pkg/image"
)

// Sphere grows the patch outward in shells of increasing scanner-space
// distance until the target voxel count is reached; whole shells are always
// included, so ties at the crossing radius may push the patch above the
// target.
type Sphere struct {
	base
	target  int
	offsets []sphereOffset
	estSize int
}

type sphereOffset struct {
	d      [3]int
	sqDist float64
}

// NewSphere builds the offset table once; patches then reuse it for every
// centre.
func NewSphere(hdr image.Header, subsampleFactors [3]int, target int) (*Sphere, error) {
	if target < 2 {
		return nil, fmt.Errorf("kernel: sphere target %d too small", target)
	}
	s := &Sphere{base: newBase(hdr, subsampleFactors), target: target}
	s.buildOffsets()
	return s, nil
}

// NewSphereRatio sizes the target count as the smallest number of voxels
// exceeding ratio times the number of volumes.
func NewSphereRatio(hdr image.Header, subsampleFactors [3]int, ratio float64) (*Sphere, error) {
	if ratio <= 0 {
		return nil, fmt.Errorf("kernel: sphere ratio %g", ratio)
	}
	target := int(math.Floor(ratio*float64(hdr.Volumes()))) + 1
	return NewSphere(hdr, subsampleFactors, target)
}

func (s *Sphere) Target() int { return s.target }

func (s *Sphere) buildOffsets() {
	spacing := s.hdr.Spacing
	voxelVolume := spacing[0] * spacing[1] * spacing[2]
	safety := 2.0
	for {
		radius := math.Cbrt(3.0 * safety * float64(s.target) * voxelVolume / (4.0 * math.Pi))
		var hw [3]int
		for axis := 0; axis < 3; axis++ {
			hw[axis] = int(math.Ceil(radius/spacing[axis])) + 1
		}
		s.offsets = s.offsets[:0]
		for dx := -hw[0]; dx <= hw[0]; dx++ {
			for dy := -hw[1]; dy <= hw[1]; dy++ {
				for dz := -hw[2]; dz <= hw[2]; dz++ {
					ox := spacing[0] * (float64(dx) - s.halfVoxel[0])
					oy := spacing[1] * (float64(dy) - s.halfVoxel[1])
					oz := spacing[2] * (float64(dz) - s.halfVoxel[2])
					sqDist := ox*ox + oy*oy + oz*oz
					if sqDist <= radius*radius {
						s.offsets = append(s.offsets, sphereOffset{d: [3]int{dx, dy, dz}, sqDist: sqDist})
					}
				}
			}
		}
		if len(s.offsets) >= s.target {
			break
		}
		safety *= 1.5
	}
	sort.Slice(s.offsets, func(i, j int) bool {
		a, b := s.offsets[i], s.offsets[j]
		if a.sqDist != b.sqDist {
			return a.sqDist < b.sqDist
		}
		if a.d[2] != b.d[2] {
			return a.d[2] < b.d[2]
		}
		if a.d[1] != b.d[1] {
			return a.d[1] < b.d[1]
		}
		return a.d[0] < b.d[0]
	})
	// Allocation bound: the shell crossing the target is always completed,
	// so a patch can hold at most target-1 voxels plus the largest shell.
	maxShell := 1
	run := 1
	for i := 1; i < len(s.offsets); i++ {
		if s.offsets[i].sqDist == s.offsets[i-1].sqDist {
			run++
		} else {
			run = 1
		}
		if run > maxShell {
			maxShell = run
		}
	}
	s.estSize = s.target - 1 + maxShell
	if s.estSize > len(s.offsets) {
		s.estSize = len(s.offsets)
	}
}

func (s *Sphere) EstimatedSize() int { return s.estSize }

func (s *Sphere) Patch(centre [3]int) Data {
	data := NewData(s.voxelToReal(centre), -1)
	data.Voxels = make([]Voxel, 0, s.estSize)
	lastDist := math.Inf(-1)
	for _, off := range s.offsets {
		if len(data.Voxels) >= s.target && off.sqDist > lastDist {
			break
		}
		x := centre[0] + off.d[0]
		y := centre[1] + off.d[1]
		z := centre[2] + off.d[2]
		if !s.included(x, y, z) {
			continue
		}
		if off.d == [3]int{} {
			data.CentreIndex = len(data.Voxels)
		}
		data.Voxels = append(data.Voxels, NewVoxel([3]int{x, y, z}, off.sqDist))
		lastDist = off.sqDist
	}
	data.MaxDistance = sqrtOrNegInf(lastDist)
	return data
}

func sqrtOrNegInf(sqDist float64) float64 {
	if math.IsInf(sqDist, -1) {
		return sqDist
	}
	return math.Sqrt(sqDist)
}
