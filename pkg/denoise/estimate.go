package denoise

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/itohio/mpnoise/pkg/denoise/estimator"
	"github.com/itohio/mpnoise/pkg/denoise/kernel"
	"github.com/itohio/mpnoise/pkg/image"
	"github.com/itohio/mpnoise/pkg/interp"
	"github.com/itohio/mpnoise/pkg/logger"
)

type estimateOpts struct {
	threads     int
	mask        *image.Mask
	spectraPath string
}

type Option func(*estimateOpts)

// WithThreads overrides the worker count, which otherwise follows
// GOMAXPROCS.
func WithThreads(n int) Option {
	return func(o *estimateOpts) { o.threads = n }
}

// WithMask restricts processing to patches whose centre lies in the mask.
func WithMask(m *image.Mask) Option {
	return func(o *estimateOpts) { o.mask = m }
}

// WithSpectra streams every patch eigenspectrum to a gzip JSON-lines file.
func WithSpectra(path string) Option {
	return func(o *estimateOpts) { o.spectraPath = path }
}

// Estimate runs the noise level scan: for every voxel of the subsampled
// grid, form the patch, decompose its M x N matrix, fit the noise bulk and
// write the requested outputs. Workers own disjoint z-slabs of the output
// grid; only the per-input-voxel accumulators are shared, behind atomics.
func Estimate(ctx context.Context, input *image.Image, ss *Subsample, krn kernel.Kernel,
	est estimator.Estimator, exports *Exports, rp int, opts ...Option) error {
	if err := CheckInput(input); err != nil {
		return err
	}
	if !exports.NoiseOut.Valid() {
		return fmt.Errorf("%w: exports carry no noise output map", ErrConfig)
	}
	var o estimateOpts
	for _, opt := range opts {
		opt(&o)
	}
	if o.threads <= 0 {
		o.threads = runtime.GOMAXPROCS(0)
	}
	hdr := input.Header()
	m := hdr.Size[3]
	complexData := hdr.DT.IsComplex()
	maxN := krn.EstimatedSize()
	ssHdr := ss.Header()

	var spectra *spectraWriter
	if o.spectraPath != "" {
		sw, err := newSpectraWriter(o.spectraPath)
		if err != nil {
			return err
		}
		spectra = sw
	}

	var invalid, processed int64
	jobs := make(chan int)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for qz := 0; qz < ssHdr.Size[2]; qz++ {
			select {
			case jobs <- qz:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	for t := 0; t < o.threads; t++ {
		g.Go(func() error {
			w := newPCAWorkspace(m, maxN, complexData)
			rMax := min(m, maxN)
			eig := make([]float64, rMax)
			for qz := range jobs {
				for qy := 0; qy < ssHdr.Size[1]; qy++ {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
					for qx := 0; qx < ssHdr.Size[0]; qx++ {
						q := [3]int{qx, qy, qz}
						inv, ok := processPatch(input, ss, krn, est, exports, spectra, w, eig, q, rp, o.mask)
						if inv {
							atomic.AddInt64(&invalid, 1)
						}
						if ok {
							atomic.AddInt64(&processed, 1)
						}
					}
				}
			}
			return nil
		})
	}
	err := g.Wait()
	if spectra != nil {
		if cerr := spectra.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return err
	}
	logger.Log.Info().
		Int64("patches", processed).
		Int64("invalid", invalid).
		Msg("noise level estimation complete")
	return nil
}

// processPatch handles one output voxel. It reports (invalid, processed):
// invalid counts numerical failures; processed counts patches that reached
// the decomposition.
func processPatch(input *image.Image, ss *Subsample, krn kernel.Kernel,
	est estimator.Estimator, exports *Exports, spectra *spectraWriter,
	w *pcaWorkspace, eig []float64, q [3]int, rp int, mask *image.Mask) (bool, bool) {
	m := w.m
	nan := math.NaN()
	p := ss.SSToIn(q)
	if mask != nil && !mask.At(p[0], p[1], p[2]) {
		exports.NoiseOut.SetReal(q[0], q[1], q[2], nan)
		return false, false
	}
	patch := krn.Patch(p)
	n := len(patch.Voxels)
	if n == 0 {
		exports.NoiseOut.SetReal(q[0], q[1], q[2], nan)
		return false, false
	}
	if w.xc != nil {
		for vi, vox := range patch.Voxels {
			input.ColumnComplex(vox.Index[0], vox.Index[1], vox.Index[2], w.xc[vi*m:(vi+1)*m])
		}
	} else {
		for vi, vox := range patch.Voxels {
			input.ColumnReal(vox.Index[0], vox.Index[1], vox.Index[2], w.xr[vi*m:(vi+1)*m])
		}
	}
	r := min(m, n)
	var ok bool
	if w.xc != nil {
		ok = w.spectrumComplex(n, eig[:r])
	} else {
		ok = w.spectrumReal(n, eig[:r])
	}
	var result estimator.Result
	if ok {
		result = est.Estimate(eig[:r], m, n, rp, patch.CentreRealspace)
	}
	invalid := !ok || !result.Valid()
	rank := result.SignalRank(m, n)
	if invalid {
		exports.NoiseOut.SetReal(q[0], q[1], q[2], nan)
		rank = 0
	} else {
		exports.NoiseOut.SetReal(q[0], q[1], q[2], math.Sqrt(result.Sigma2))
	}
	if exports.RankOutput.Valid() {
		exports.RankOutput.SetReal(q[0], q[1], q[2], float64(rank))
	}
	if exports.MaxDist.Valid() {
		exports.MaxDist.SetReal(q[0], q[1], q[2], patch.MaxDistance)
	}
	if exports.Voxelcount.Valid() {
		exports.Voxelcount.SetReal(q[0], q[1], q[2], float64(n))
	}
	for _, vox := range patch.Voxels {
		if exports.Patchcount.Valid() {
			exports.AddPatchcount(vox.Index)
		}
		if exports.RankInput.Valid() && rank > 0 {
			exports.AddRankInput(vox.Index, uint32(rank))
		}
	}
	if spectra != nil && ok {
		spectra.Write(q, m, n, eig[:r])
	}
	return invalid, true
}

// UnwindVST multiplies an estimated noise map by the prior sigma field that
// was divided out of the data before estimation, sampling the prior at each
// output voxel's scanner position.
func UnwindVST(noiseOut *image.Image, prior interp.Sampler) error {
	hdr := noiseOut.Header()
	for x := 0; x < hdr.Size[0]; x++ {
		for y := 0; y < hdr.Size[1]; y++ {
			for z := 0; z < hdr.Size[2]; z++ {
				v, ok := prior.At(hdr.VoxelToScanner(float64(x), float64(y), float64(z)))
				if !ok {
					continue
				}
				noiseOut.SetReal(x, y, z, noiseOut.RealAt(x, y, z, 0)*v)
			}
		}
	}
	return nil
}

// IncrementRankInput accounts for the rank removed by demeaning: every
// exported per-voxel rank goes up by one, clamped to the series length.
func IncrementRankInput(exports *Exports, m int) {
	if !exports.RankInput.Valid() {
		return
	}
	cells := exports.RankInput.Uint32s()
	for i, v := range cells {
		v++
		if v > uint32(m) {
			v = uint32(m)
		}
		cells[i] = v
	}
}

type spectraWriter struct {
	mu  sync.Mutex
	f   *os.File
	zw  *gzip.Writer
	enc *json.Encoder
}

type spectrumRecord struct {
	Pos         [3]int    `json:"pos"`
	M           int       `json:"m"`
	N           int       `json:"n"`
	Eigenvalues []float64 `json:"eigenvalues"`
}

func newSpectraWriter(path string) (*spectraWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("denoise: spectra %s: %w", path, err)
	}
	zw := gzip.NewWriter(f)
	return &spectraWriter{f: f, zw: zw, enc: json.NewEncoder(zw)}, nil
}

func (s *spectraWriter) Write(pos [3]int, m, n int, eig []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Encode errors surface at Close via the gzip writer.
	_ = s.enc.Encode(spectrumRecord{Pos: pos, M: m, N: n, Eigenvalues: eig})
}

func (s *spectraWriter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.zw.Close()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(s.f.Name())
		return fmt.Errorf("denoise: spectra: %w", err)
	}
	return nil
}
