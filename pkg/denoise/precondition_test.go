package denoise

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/mpnoise/pkg/image"
)

func randomSeries(t *testing.T, size, volumes int, dt image.DType, seed int64) *image.Image {
	t.Helper()
	hdr := image.NewHeader([4]int{size, size, size, volumes}, [3]float64{1, 1, 1}, dt)
	im, err := image.New(hdr, "test series")
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(seed))
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			for z := 0; z < size; z++ {
				for v := 0; v < volumes; v++ {
					if dt.IsComplex() {
						im.Set(x, y, z, v, complex(rng.NormFloat64(), rng.NormFloat64()))
					} else {
						im.Set(x, y, z, v, complex(rng.NormFloat64(), 0))
					}
				}
			}
		}
	}
	return im
}

func TestPreconditionNoop(t *testing.T) {
	in := randomSeries(t, 4, 6, image.Float32, 1)
	pre, err := NewPrecondition(in, DemodNone, DemeanNone, nil)
	require.NoError(t, err)
	assert.True(t, pre.Noop())
	assert.Equal(t, 0, pre.Rank())
}

func TestPreconditionDemeanVolumes(t *testing.T) {
	in := randomSeries(t, 4, 6, image.Float64, 2)
	pre, err := NewPrecondition(in, DemodNone, DemeanVolumes, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, pre.Rank())

	out, err := image.Scratch(in.Header(), "demeaned")
	require.NoError(t, err)
	require.NoError(t, pre.Apply(in, out))
	col := make([]float64, 6)
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			for z := 0; z < 4; z++ {
				out.ColumnReal(x, y, z, col)
				mean := 0.0
				for _, v := range col {
					mean += v
				}
				assert.InDelta(t, 0.0, mean/6, 1e-12)
			}
		}
	}
}

func TestPreconditionDemeanVoxels(t *testing.T) {
	in := randomSeries(t, 4, 6, image.Float64, 7)
	pre, err := NewPrecondition(in, DemodNone, DemeanVoxels, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, pre.Rank())

	out, err := image.Scratch(in.Header(), "demeaned")
	require.NoError(t, err)
	require.NoError(t, pre.Apply(in, out))
	// Each volume's spatial mean is regressed out.
	for v := 0; v < 6; v++ {
		mean := 0.0
		for x := 0; x < 4; x++ {
			for y := 0; y < 4; y++ {
				for z := 0; z < 4; z++ {
					mean += out.RealAt(x, y, z, v)
				}
			}
		}
		assert.InDelta(t, 0.0, mean/64, 1e-12, "volume %d", v)
	}
	// Within a volume the per-voxel offsets are preserved.
	diffIn := in.RealAt(1, 1, 1, 0) - in.RealAt(2, 2, 2, 0)
	diffOut := out.RealAt(1, 1, 1, 0) - out.RealAt(2, 2, 2, 0)
	assert.InDelta(t, diffIn, diffOut, 1e-12)
}

func TestParseDemeanMode(t *testing.T) {
	for s, want := range map[string]DemeanMode{
		"":        DemeanNone,
		"none":    DemeanNone,
		"volumes": DemeanVolumes,
		"voxels":  DemeanVoxels,
	} {
		got, err := ParseDemeanMode(s)
		require.NoError(t, err)
		assert.Equal(t, want, got, "%q", s)
	}
	_, err := ParseDemeanMode("bogus")
	assert.ErrorIs(t, err, ErrConfig)
}

func TestPreconditionIdempotentConstruction(t *testing.T) {
	in := randomSeries(t, 4, 6, image.Float64, 3)
	pre, err := NewPrecondition(in, DemodNone, DemeanVolumes, nil)
	require.NoError(t, err)
	a, err := image.Scratch(in.Header(), "first")
	require.NoError(t, err)
	b, err := image.Scratch(in.Header(), "second")
	require.NoError(t, err)
	require.NoError(t, pre.Apply(in, a))
	require.NoError(t, pre.Apply(in, b))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			for z := 0; z < 4; z++ {
				for v := 0; v < 6; v++ {
					assert.Equal(t, a.At(x, y, z, v), b.At(x, y, z, v))
				}
			}
		}
	}
}

func TestPreconditionVSTDivides(t *testing.T) {
	in := randomSeries(t, 6, 4, image.Float64, 4)
	vstHdr := in.Header().As3D(image.Float32)
	vst, err := image.New(vstHdr, "prior")
	require.NoError(t, err)
	vst.Fill(2.0)

	pre, err := NewPrecondition(in, DemodNone, DemeanNone, vst)
	require.NoError(t, err)
	assert.Equal(t, 0, pre.Rank())
	out, err := image.Scratch(in.Header(), "stabilised")
	require.NoError(t, err)
	require.NoError(t, pre.Apply(in, out))
	for x := 1; x < 5; x++ {
		for v := 0; v < 4; v++ {
			assert.InDelta(t, in.RealAt(x, 3, 3, v)/2.0, out.RealAt(x, 3, 3, v), 1e-6)
		}
	}
}

func TestPreconditionDemodulateRequiresComplex(t *testing.T) {
	in := randomSeries(t, 4, 4, image.Float32, 5)
	_, err := NewPrecondition(in, DemodLinear, DemeanNone, nil)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestPreconditionDemodulateRemovesRamp(t *testing.T) {
	// A pure phase ramp along x must demodulate to a (near-)constant
	// phase series.
	const size, volumes = 8, 3
	hdr := image.NewHeader([4]int{size, size, size, volumes}, [3]float64{1, 1, 1}, image.Complex128)
	in, err := image.New(hdr, "ramp")
	require.NoError(t, err)
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			for z := 0; z < size; z++ {
				phi := 2.0 * 3.141592653589793 * float64(2*x) / float64(size)
				c := complex(3.0, 0) * cis(phi)
				for v := 0; v < volumes; v++ {
					in.Set(x, y, z, v, c)
				}
			}
		}
	}
	pre, err := NewPrecondition(in, DemodLinear, DemeanNone, nil)
	require.NoError(t, err)
	out, err := image.Scratch(hdr, "demodulated")
	require.NoError(t, err)
	require.NoError(t, pre.Apply(in, out))
	for x := 0; x < size; x++ {
		got := out.At(x, 4, 4, 0)
		assert.InDelta(t, 3.0, real(got), 1e-6, "x=%d", x)
		assert.InDelta(t, 0.0, imag(got), 1e-6, "x=%d", x)
	}
}

func cis(phi float64) complex128 {
	s, c := math.Sincos(phi)
	return complex(c, s)
}
