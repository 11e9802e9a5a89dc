package kernel

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Data bundles one patch: the centre position in scanner space, the ordered
// contributing voxels, the position of the centre voxel within that list
// (-1 when unknown or masked out) and the largest distance observed.
type Data struct {
	CentreRealspace r3.Vec
	Voxels          []Voxel
	CentreIndex     int
	MaxDistance     float64
	CentreNoise     float64
}

func NewData(pos r3.Vec, centreIndex int) Data {
	return Data{
		CentreRealspace: pos,
		CentreIndex:     centreIndex,
		MaxDistance:     math.Inf(-1),
		CentreNoise:     math.NaN(),
	}
}
