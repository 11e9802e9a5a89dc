package denoise

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/mpnoise/pkg/denoise/estimator"
	"github.com/itohio/mpnoise/pkg/image"
)

func TestIterativeRefinesPureNoise(t *testing.T) {
	input := noiseSeries(t, 12, 16, image.Float32, 1.0, 900)
	est, err := estimator.New(estimator.Config{Name: "exp2"})
	require.NoError(t, err)
	noise, err := Iterative(context.Background(), input, nil, est, IterativeConfig{})
	require.NoError(t, err)
	require.True(t, noise.Valid())
	mean, finite, total := noiseStats(noise)
	assert.Equal(t, total, finite)
	assert.InDelta(t, 1.0, mean, 0.1)
}

func TestIterativeRejectsBadInput(t *testing.T) {
	hdr := image.NewHeader([4]int{8, 8, 8, 0}, [3]float64{1, 1, 1}, image.Float32)
	im, err := image.New(hdr, "not a series")
	require.NoError(t, err)
	_, err = Iterative(context.Background(), im, nil, estimator.Unity{}, IterativeConfig{})
	assert.ErrorIs(t, err, ErrShape)
}
