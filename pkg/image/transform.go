package image

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Transform is a 3x4 voxel-to-scanner affine. The rotation block carries the
// voxel spacing, so applying it to continuous voxel indices yields scanner
// millimetres directly.
type Transform struct {
	M [3][4]float64
}

// IdentityTransform builds an axis-aligned transform from voxel spacing,
// placing voxel (0,0,0) at the scanner origin.
func IdentityTransform(spacing [3]float64) Transform {
	var t Transform
	t.M[0][0] = spacing[0]
	t.M[1][1] = spacing[1]
	t.M[2][2] = spacing[2]
	return t
}

// Apply maps continuous voxel coordinates into scanner space.
func (t Transform) Apply(x, y, z float64) r3.Vec {
	return r3.Vec{
		X: t.M[0][0]*x + t.M[0][1]*y + t.M[0][2]*z + t.M[0][3],
		Y: t.M[1][0]*x + t.M[1][1]*y + t.M[1][2]*z + t.M[1][3],
		Z: t.M[2][0]*x + t.M[2][1]*y + t.M[2][2]*z + t.M[2][3],
	}
}

// Translate returns a copy with the scanner-space offset added to the
// translation column.
func (t Transform) Translate(off r3.Vec) Transform {
	t.M[0][3] += off.X
	t.M[1][3] += off.Y
	t.M[2][3] += off.Z
	return t
}

// ScaleColumns multiplies the direction columns by per-axis factors, as
// required when decimating the voxel grid.
func (t Transform) ScaleColumns(f [3]float64) Transform {
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			t.M[r][c] *= f[c]
		}
	}
	return t
}

// Inverse computes the scanner-to-voxel transform. It fails on a singular
// direction block.
func (t Transform) Inverse() (Transform, error) {
	a := t.M
	det := a[0][0]*(a[1][1]*a[2][2]-a[1][2]*a[2][1]) -
		a[0][1]*(a[1][0]*a[2][2]-a[1][2]*a[2][0]) +
		a[0][2]*(a[1][0]*a[2][1]-a[1][1]*a[2][0])
	if det == 0 {
		return Transform{}, fmt.Errorf("image: singular voxel-to-scanner transform")
	}
	inv := 1.0 / det
	var r Transform
	r.M[0][0] = (a[1][1]*a[2][2] - a[1][2]*a[2][1]) * inv
	r.M[0][1] = (a[0][2]*a[2][1] - a[0][1]*a[2][2]) * inv
	r.M[0][2] = (a[0][1]*a[1][2] - a[0][2]*a[1][1]) * inv
	r.M[1][0] = (a[1][2]*a[2][0] - a[1][0]*a[2][2]) * inv
	r.M[1][1] = (a[0][0]*a[2][2] - a[0][2]*a[2][0]) * inv
	r.M[1][2] = (a[0][2]*a[1][0] - a[0][0]*a[1][2]) * inv
	r.M[2][0] = (a[1][0]*a[2][1] - a[1][1]*a[2][0]) * inv
	r.M[2][1] = (a[0][1]*a[2][0] - a[0][0]*a[2][1]) * inv
	r.M[2][2] = (a[0][0]*a[1][1] - a[0][1]*a[1][0]) * inv
	// translation: -R^-1 * t
	for i := 0; i < 3; i++ {
		r.M[i][3] = -(r.M[i][0]*a[0][3] + r.M[i][1]*a[1][3] + r.M[i][2]*a[2][3])
	}
	return r, nil
}
