package image

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestHeaderDerivation(t *testing.T) {
	hdr := NewHeader([4]int{6, 7, 8, 12}, [3]float64{1.5, 1.5, 3.0}, Float64)
	hdr.KeyValues = map[string]string{"shells": "0,1000,2000"}
	hdr.IntensityScale = 2.5

	assert.Equal(t, 4, hdr.NDim())
	assert.Equal(t, 12, hdr.Volumes())

	out := hdr.As3D(Float32)
	assert.Equal(t, 3, out.NDim())
	assert.Equal(t, Float32, out.DT)
	assert.Equal(t, 1.0, out.IntensityScale)
	assert.Equal(t, "0,1000,2000", out.KeyValues["shells"])

	// Derived headers never alias the source metadata.
	out.KeyValues["shells"] = "changed"
	assert.Equal(t, "0,1000,2000", hdr.KeyValues["shells"])
}

func TestColumnAccess(t *testing.T) {
	hdr := NewHeader([4]int{3, 3, 3, 5}, [3]float64{1, 1, 1}, Float32)
	im, err := New(hdr, "cols")
	require.NoError(t, err)
	want := make([]complex128, 5)
	for v := 0; v < 5; v++ {
		want[v] = complex(float64(v)+0.5, 0)
	}
	im.SetColumn(1, 2, 0, want)
	got := make([]float64, 5)
	im.ColumnReal(1, 2, 0, got)
	for v := 0; v < 5; v++ {
		assert.InDelta(t, real(want[v]), got[v], 1e-6)
		assert.InDelta(t, real(want[v]), im.RealAt(1, 2, 0, v), 1e-6)
	}
}

func TestTransformRoundTrip(t *testing.T) {
	tr := IdentityTransform([3]float64{1.25, 2, 0.75})
	tr = tr.Translate(r3.Vec{X: 4, Y: -3, Z: 10})
	inv, err := tr.Inverse()
	require.NoError(t, err)
	p := tr.Apply(3, 5, 7)
	back := inv.Apply(p.X, p.Y, p.Z)
	assert.InDelta(t, 3, back.X, 1e-12)
	assert.InDelta(t, 5, back.Y, 1e-12)
	assert.InDelta(t, 7, back.Z, 1e-12)
}

func TestCodecRoundTrip(t *testing.T) {
	dtypes := []DType{Float32, Float64, Complex64, Complex128, UInt16}
	for _, dt := range dtypes {
		t.Run(dt.String(), func(t *testing.T) {
			hdr := NewHeader([4]int{4, 5, 6, 3}, [3]float64{1, 2, 3}, dt)
			if dt == UInt16 {
				hdr.Size[3] = 0
			}
			hdr.KeyValues = map[string]string{"shells": "0,1000", "shellcounts": "1,2"}
			im, err := New(hdr, "roundtrip")
			require.NoError(t, err)
			rng := rand.New(rand.NewSource(77))
			for x := 0; x < 4; x++ {
				for y := 0; y < 5; y++ {
					for z := 0; z < 6; z++ {
						for v := 0; v < hdr.Volumes(); v++ {
							if dt == UInt16 {
								im.Set(x, y, z, v, complex(float64(rng.Intn(1000)), 0))
							} else {
								im.Set(x, y, z, v, complex(rng.NormFloat64(), rng.NormFloat64()))
							}
						}
					}
				}
			}
			path := filepath.Join(t.TempDir(), "im.mpz")
			require.NoError(t, Save(im, path))
			got, err := Load(path)
			require.NoError(t, err)
			ghdr := got.Header()
			assert.Equal(t, hdr.Size, ghdr.Size)
			assert.Equal(t, hdr.Spacing, ghdr.Spacing)
			assert.Equal(t, hdr.DT, ghdr.DT)
			assert.Equal(t, hdr.KeyValues, ghdr.KeyValues)
			for x := 0; x < 4; x++ {
				for y := 0; y < 5; y++ {
					for z := 0; z < 6; z++ {
						for v := 0; v < hdr.Volumes(); v++ {
							assert.Equal(t, im.At(x, y, z, v), got.At(x, y, z, v))
						}
					}
				}
			}
		})
	}
}

func TestMaskThreshold(t *testing.T) {
	hdr := NewHeader([4]int{2, 2, 2, 0}, [3]float64{1, 1, 1}, Float32)
	im, err := New(hdr, "mask src")
	require.NoError(t, err)
	im.SetReal(0, 0, 0, 1)
	im.SetReal(1, 1, 1, 0.4)
	m := MaskFromImage(im)
	assert.True(t, m.At(0, 0, 0))
	assert.False(t, m.At(1, 1, 1))
	assert.False(t, m.At(0, 1, 0))
	assert.Equal(t, 1, m.Count())
	// A nil mask includes everything.
	var none *Mask
	assert.True(t, none.At(0, 0, 0))
}
