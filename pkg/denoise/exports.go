package denoise

import (
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"github.com/itohio/mpnoise/pkg/image"
)

// Exports bundles the optional output maps. Per-patch maps (noise_out,
// rank_output, max_dist, voxelcount, sum_optshrink) live on the subsampled
// grid and are written by exactly one patch each; per-input-voxel
// accumulators (rank_input, patchcount, sum_aggregation) are touched by
// every patch covering a voxel and therefore use atomic cells or striped
// locks. Integer accumulators are uint32 in memory and narrow to uint16 on
// save.
type Exports struct {
	hIn image.Header
	hSS image.Header

	NoiseOut       *image.Image
	RankInput      *image.Image
	RankOutput     *image.Image
	SumOptshrink   *image.Image
	MaxDist        *image.Image
	Voxelcount     *image.Image
	Patchcount     *image.Image
	SumAggregation *image.Image

	paths map[*image.Image]string
	locks [64]sync.Mutex
}

func NewExports(in, ss image.Header) *Exports {
	hIn := in.As3D(image.Float32)
	delete(hIn.KeyValues, "dw_scheme")
	return &Exports{
		hIn:   hIn,
		hSS:   ss.As3D(image.Float32),
		paths: make(map[*image.Image]string),
	}
}

func (e *Exports) create(hdr image.Header, dt image.DType, path, what string) (*image.Image, error) {
	hdr.DT = dt
	im, err := image.New(hdr, path)
	if err != nil {
		return nil, fmt.Errorf("denoise: %s: %w", what, err)
	}
	e.paths[im] = path
	return im, nil
}

func (e *Exports) SetNoiseOut(path string) (err error) {
	e.NoiseOut, err = e.create(e.hSS, image.Float32, path, "noise_out")
	return err
}

func (e *Exports) SetRankInput(path string) (err error) {
	e.RankInput, err = e.create(e.hIn, image.UInt32, path, "rank_input")
	return err
}

func (e *Exports) SetRankOutput(path string) (err error) {
	e.RankOutput, err = e.create(e.hSS, image.Float32, path, "rank_output")
	return err
}

func (e *Exports) SetSumOptshrink(path string) (err error) {
	e.SumOptshrink, err = e.create(e.hSS, image.Float32, path, "sum_optshrink")
	return err
}

func (e *Exports) SetMaxDist(path string) (err error) {
	e.MaxDist, err = e.create(e.hSS, image.Float32, path, "max_dist")
	return err
}

func (e *Exports) SetVoxelcount(path string) (err error) {
	e.Voxelcount, err = e.create(e.hSS, image.UInt16, path, "voxelcount")
	return err
}

func (e *Exports) SetPatchcount(path string) (err error) {
	e.Patchcount, err = e.create(e.hIn, image.UInt32, path, "patchcount")
	return err
}

// SetSumAggregation with an empty path keeps the accumulator in memory
// only, for downstream aggregation.
func (e *Exports) SetSumAggregation(path string) error {
	hdr := e.hIn
	hdr.DT = image.Float32
	var err error
	if path == "" {
		e.SumAggregation, err = image.Scratch(hdr, "patch aggregation sums")
		return err
	}
	e.SumAggregation, err = e.create(e.hIn, image.Float32, path, "sum_aggregation")
	return err
}

// AddRankInput atomically accumulates a patch's signal rank at one of its
// member voxels.
func (e *Exports) AddRankInput(idx [3]int, delta uint32) {
	cells := e.RankInput.Uint32s()
	atomic.AddUint32(&cells[e.RankInput.Offset3(idx[0], idx[1], idx[2])], delta)
}

// AddPatchcount atomically counts one more patch covering the voxel.
func (e *Exports) AddPatchcount(idx [3]int) {
	cells := e.Patchcount.Uint32s()
	atomic.AddUint32(&cells[e.Patchcount.Offset3(idx[0], idx[1], idx[2])], 1)
}

// AddSumAggregation accumulates a floating-point weight under a lock
// striped by voxel index; summation order across patches is unspecified.
func (e *Exports) AddSumAggregation(idx [3]int, v float64) {
	off := e.SumAggregation.Offset3(idx[0], idx[1], idx[2])
	lk := &e.locks[off&(len(e.locks)-1)]
	lk.Lock()
	cells := e.SumAggregation.Float32s()
	cells[off] += float32(v)
	lk.Unlock()
}

// Save writes every path-backed export; uint32 accumulators narrow to the
// declared uint16 datatype with saturation. On the first failure all files
// written so far are removed.
func (e *Exports) Save() error {
	var written []string
	fail := func(err error) error {
		for _, p := range written {
			os.Remove(p)
		}
		return err
	}
	for im, path := range e.paths {
		if path == "" {
			continue
		}
		out := im
		if im.Uint32s() != nil {
			narrowed, err := narrowToUint16(im)
			if err != nil {
				return fail(err)
			}
			out = narrowed
		}
		if err := image.Save(out, path); err != nil {
			return fail(err)
		}
		written = append(written, path)
	}
	return nil
}

// Discard removes any files already produced; used on cancellation.
func (e *Exports) Discard() {
	for _, path := range e.paths {
		if path != "" {
			os.Remove(path)
		}
	}
}

func narrowToUint16(im *image.Image) (*image.Image, error) {
	hdr := im.Header()
	hdr.DT = image.UInt16
	out, err := image.New(hdr, im.Name())
	if err != nil {
		return nil, err
	}
	src := im.Uint32s()
	dst := out.Uint16s()
	for i, v := range src {
		if v > math.MaxUint16 {
			v = math.MaxUint16
		}
		dst[i] = uint16(v)
	}
	return out, nil
}
