package estimator

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// eigenvaluesOf decomposes an m x n matrix and returns the squared singular
// values in non-decreasing order, which is the form every estimator
// consumes.
func eigenvaluesOf(t *testing.T, a *mat.Dense) []float64 {
	t.Helper()
	var svd mat.SVD
	require.True(t, svd.Factorize(a, mat.SVDNone))
	sv := svd.Values(nil)
	e := make([]float64, len(sv))
	for i, s := range sv {
		e[len(sv)-1-i] = s * s
	}
	return e
}

func gaussianMatrix(rng *rand.Rand, m, n int, sigma float64) *mat.Dense {
	a := mat.NewDense(m, n, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			a.Set(i, j, sigma*rng.NormFloat64())
		}
	}
	return a
}

func TestGeometryIdentities(t *testing.T) {
	tests := []struct {
		m, n, rp int
	}{
		{16, 27, 0},
		{16, 27, 1},
		{64, 33, 0},
		{64, 33, 1},
		{8, 8, 1},
	}
	for _, tt := range tests {
		maxDim, minDim := tt.m, tt.n
		if maxDim < minDim {
			maxDim, minDim = minDim, maxDim
		}
		assert.Equal(t, maxDim, DimLongNonzero(tt.m, tt.n, tt.rp)+RankZero(tt.m, tt.n, tt.rp))
		assert.Equal(t, minDim, RankNonzero(tt.m, tt.n, tt.rp)+RankZero(tt.m, tt.n, tt.rp))
	}
}

func TestExpPureNoise(t *testing.T) {
	for _, version := range []int{1, 2} {
		rng := rand.New(rand.NewSource(41))
		est, err := NewExp(version)
		require.NoError(t, err)
		const m, n = 32, 64
		const sigma = 1.5
		zeroRank := 0
		sigmaSum := 0.0
		const trials = 25
		for trial := 0; trial < trials; trial++ {
			e := eigenvaluesOf(t, gaussianMatrix(rng, m, n, sigma))
			res := est.Estimate(e, m, n, 0, r3.Vec{})
			require.True(t, res.Valid())
			sigmaSum += math.Sqrt(res.Sigma2)
			if res.SignalRank(m, n) == 0 {
				zeroRank++
			}
		}
		mean := sigmaSum / trials
		assert.InDelta(t, sigma, mean, 0.15*sigma, "exp%d mean sigma", version)
		assert.GreaterOrEqual(t, zeroRank, trials*85/100, "exp%d zero-rank fraction", version)
	}
}

func TestExpBulkMeanIdentity(t *testing.T) {
	// The recorded variance must equal the mean of the accepted bulk,
	// which also guarantees the sweep never walked past its optimum.
	rng := rand.New(rand.NewSource(7))
	est, err := NewExp(2)
	require.NoError(t, err)
	const m, n, rp = 24, 40, 1
	e := eigenvaluesOf(t, gaussianMatrix(rng, m, n, 0.8))
	// Emulate the structural zero introduced by a rank-1 preconditioner.
	e[0] = 0
	res := est.Estimate(e, m, n, rp, r3.Vec{})
	require.True(t, res.Valid())
	qnz := DimLongNonzero(m, n, rp)
	rz := RankZero(m, n, rp)
	sum := 0.0
	for i := rz; i < res.CutoffP; i++ {
		sum += e[i] / float64(qnz)
	}
	assert.InEpsilon(t, sum/float64(res.CutoffP-rz), res.Sigma2, 1e-12)
	assert.Equal(t, e[res.CutoffP-1]/float64(qnz), res.LamPlus)
}

func TestExpDetectsPlantedSignal(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	est, err := NewExp(2)
	require.NoError(t, err)
	const m, n = 32, 48
	a := gaussianMatrix(rng, m, n, 1.0)
	// Rank-1 spike far above the Marchenko-Pastur edge.
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			a.Set(i, j, a.At(i, j)+3.0)
		}
	}
	res := est.Estimate(eigenvaluesOf(t, a), m, n, 0, r3.Vec{})
	require.True(t, res.Valid())
	assert.GreaterOrEqual(t, res.SignalRank(m, n), 1)
	assert.InDelta(t, 1.0, math.Sqrt(res.Sigma2), 0.2)
}

func TestMRM2022PureNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	est := MRM2022{}
	const m, n = 32, 64
	sigmaSum := 0.0
	const trials = 25
	for trial := 0; trial < trials; trial++ {
		e := eigenvaluesOf(t, gaussianMatrix(rng, m, n, 2.0))
		res := est.Estimate(e, m, n, 0, r3.Vec{})
		require.True(t, res.Valid())
		sigmaSum += math.Sqrt(res.Sigma2)
	}
	assert.InDelta(t, 2.0, sigmaSum/trials, 0.3)
}

func TestMRM2022SignalFence(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	const m, n = 32, 48
	a := gaussianMatrix(rng, m, n, 1.0)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			a.Set(i, j, a.At(i, j)+3.0)
		}
	}
	res := MRM2022{}.Estimate(eigenvaluesOf(t, a), m, n, 0, r3.Vec{})
	require.True(t, res.Valid())
	assert.GreaterOrEqual(t, res.SignalRank(m, n), 1)
}

func TestMedScalingEquivariance(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	const m, n = 32, 64
	e := eigenvaluesOf(t, gaussianMatrix(rng, m, n, 1.0))
	scaled := make([]float64, len(e))
	const c = 4.0
	for i, v := range e {
		scaled[i] = c * v
	}
	base := Med{}.Estimate(e, m, n, 0, r3.Vec{})
	res := Med{}.Estimate(scaled, m, n, 0, r3.Vec{})
	require.True(t, base.Valid())
	require.True(t, res.Valid())
	assert.InEpsilon(t, c*base.Sigma2, res.Sigma2, 1e-9)
	assert.InEpsilon(t, c*base.LamPlus, res.LamPlus, 1e-9)
	assert.Equal(t, base.CutoffP, res.CutoffP)
}

func TestFixedSweep(t *testing.T) {
	const m, n = 10, 100
	qnz := float64(DimLongNonzero(m, n, 0))
	lamplus := math.Pow(1.0+math.Sqrt(float64(m)/float64(n)), 2)
	e := make([]float64, m)
	for i := 0; i < m-1; i++ {
		e[i] = 0.5 * lamplus * qnz
	}
	e[m-1] = 10 * lamplus * qnz
	sort.Float64s(e)
	fixed, err := NewFixed(1.0, nil)
	require.NoError(t, err)
	res := fixed.Estimate(e, m, n, 0, r3.Vec{})
	require.True(t, res.Valid())
	assert.Equal(t, 1.0, res.Sigma2)
	assert.Equal(t, m-1, res.CutoffP)
	assert.Equal(t, 1, res.SignalRank(m, n))
}

func TestUnitySweep(t *testing.T) {
	const m, n = 10, 100
	qnz := float64(DimLongNonzero(m, n, 0))
	lamplus := math.Pow(1.0+math.Sqrt(float64(m)/float64(n)), 2)
	e := make([]float64, m)
	for i := range e {
		e[i] = 0.5 * lamplus * qnz
	}
	res := Unity{}.Estimate(e, m, n, 0, r3.Vec{})
	require.True(t, res.Valid())
	assert.Equal(t, 1.0, res.Sigma2)
	assert.Equal(t, m, res.CutoffP)
	assert.Equal(t, 0, res.SignalRank(m, n))
}

func TestRankForced(t *testing.T) {
	const m, n = 8, 20
	e := make([]float64, m)
	for i := range e {
		e[i] = float64(i + 1)
	}
	t.Run("available", func(t *testing.T) {
		res := NewRank(2).Estimate(e, m, n, 0, r3.Vec{})
		require.True(t, res.Valid())
		assert.Equal(t, m-2, res.CutoffP)
		assert.Equal(t, 2, res.SignalRank(m, n))
	})
	t.Run("exact", func(t *testing.T) {
		res := NewRank(m).Estimate(e, m, n, 0, r3.Vec{})
		require.True(t, res.Valid())
		assert.Equal(t, 0, res.CutoffP)
		assert.Equal(t, 0.0, res.Sigma2)
	})
	t.Run("over-ranked", func(t *testing.T) {
		res := NewRank(m+1).Estimate(e, m, n, 0, r3.Vec{})
		assert.False(t, res.Valid())
		assert.Equal(t, 0, res.SignalRank(m, n))
	})
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Name: "bogus"})
	assert.Error(t, err)
	_, err = New(Config{Name: "import"})
	assert.Error(t, err)
}

func TestResultValidity(t *testing.T) {
	r := NewResult()
	assert.False(t, r.Valid())
	assert.Equal(t, 0, r.SignalRank(8, 20))
	r.Sigma2 = 1
	r.CutoffP = 6
	assert.True(t, r.Valid())
	assert.Equal(t, 2, r.SignalRank(8, 20))
}
