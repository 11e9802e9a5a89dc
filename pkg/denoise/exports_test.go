package denoise

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/mpnoise/pkg/image"
)

func testExports(t *testing.T) *Exports {
	t.Helper()
	in := gridHeader(8, 8, 8, 4)
	ss, err := NewSubsample(in, [3]int{2, 2, 2})
	require.NoError(t, err)
	return NewExports(in, ss.Header())
}

func TestExportsGrids(t *testing.T) {
	e := testExports(t)
	require.NoError(t, e.SetNoiseOut(""))
	require.NoError(t, e.SetRankInput(""))
	require.NoError(t, e.SetVoxelcount(""))
	assert.Equal(t, 4, e.NoiseOut.Header().Size[0])
	assert.Equal(t, 8, e.RankInput.Header().Size[0])
	assert.Equal(t, 3, e.NoiseOut.Header().NDim())
	assert.Equal(t, image.UInt16, e.Voxelcount.Header().DT)
}

func TestExportsConcurrentAccumulators(t *testing.T) {
	e := testExports(t)
	require.NoError(t, e.SetPatchcount(""))
	require.NoError(t, e.SetRankInput(""))
	require.NoError(t, e.SetSumAggregation(""))
	const workers = 8
	const rounds = 250
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				e.AddPatchcount([3]int{1, 2, 3})
				e.AddRankInput([3]int{1, 2, 3}, 2)
				e.AddSumAggregation([3]int{1, 2, 3}, 0.5)
			}
		}()
	}
	wg.Wait()
	off := e.Patchcount.Offset3(1, 2, 3)
	assert.Equal(t, uint32(workers*rounds), e.Patchcount.Uint32s()[off])
	assert.Equal(t, uint32(2*workers*rounds), e.RankInput.Uint32s()[off])
	assert.InDelta(t, 0.5*workers*rounds, float64(e.SumAggregation.Float32s()[off]), 1e-3)
}

func TestExportsSaveNarrowsSaturating(t *testing.T) {
	e := testExports(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "patchcount.mpz")
	require.NoError(t, e.SetPatchcount(path))
	cells := e.Patchcount.Uint32s()
	cells[0] = 70000 // beyond uint16
	cells[1] = 123
	require.NoError(t, e.Save())
	got, err := image.Load(path)
	require.NoError(t, err)
	require.Equal(t, image.UInt16, got.Header().DT)
	assert.Equal(t, uint16(65535), got.Uint16s()[0])
	assert.Equal(t, uint16(123), got.Uint16s()[1])
}

func TestExportsOptshrinkStorageContract(t *testing.T) {
	e := testExports(t)
	path := filepath.Join(t.TempDir(), "optshrink.mpz")
	require.NoError(t, e.SetSumOptshrink(path))
	e.SumOptshrink.SetReal(1, 1, 1, 0.75)
	require.NoError(t, e.Save())
	got, err := image.Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, got.RealAt(1, 1, 1, 0), 1e-6)
}
