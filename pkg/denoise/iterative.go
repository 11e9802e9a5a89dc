package denoise

import (
	"context"
	"fmt"
	"math"

	"github.com/itohio/mpnoise/pkg/denoise/estimator"
	"github.com/itohio/mpnoise/pkg/denoise/kernel"
	"github.com/itohio/mpnoise/pkg/image"
	"github.com/itohio/mpnoise/pkg/interp"
	"github.com/itohio/mpnoise/pkg/logger"
)

// Iteration configures one pass of the iterative driver.
type Iteration struct {
	SubsampleRatios      [3]int
	KernelSizeMultiplier float64
	SmoothNoiseOut       bool
}

// IterativeConfig is the schedule for Iterative; iterations after the first
// use the previous smoothed noise map as a variance-stabilising prior and
// estimate the residual level with the Unity estimator.
type IterativeConfig struct {
	Iterations  []Iteration
	MaxRelDelta float64 // convergence threshold on max |dSigma|/sigma; default 0.01
}

// DefaultIterations is a two-pass refinement schedule: a coarse smoothed
// estimate followed by a full-ratio pass against it.
func DefaultIterations() []Iteration {
	return []Iteration{
		{SubsampleRatios: [3]int{2, 2, 2}, KernelSizeMultiplier: 1.0, SmoothNoiseOut: true},
		{SubsampleRatios: [3]int{2, 2, 2}, KernelSizeMultiplier: 1.0, SmoothNoiseOut: false},
	}
}

// Iterative repeatedly estimates the noise level, feeding each iteration's
// smoothed map back as the next iteration's prior. Returns the final noise
// map on the last iteration's subsampled grid.
func Iterative(ctx context.Context, input *image.Image, mask *image.Mask,
	first estimator.Estimator, cfg IterativeConfig, opts ...Option) (*image.Image, error) {
	if err := CheckInput(input); err != nil {
		return nil, err
	}
	iterations := cfg.Iterations
	if len(iterations) == 0 {
		iterations = DefaultIterations()
	}
	maxDelta := cfg.MaxRelDelta
	if maxDelta <= 0 {
		maxDelta = 0.01
	}
	var prior *image.Image
	var prev *image.Image
	for i, it := range iterations {
		ss, err := NewSubsample(input.Header(), it.SubsampleRatios)
		if err != nil {
			return nil, err
		}
		mult := it.KernelSizeMultiplier
		if mult <= 0 {
			mult = 1.0
		}
		krn, err := kernel.NewSphereRatio(input.Header(), ss.Factors(), mult)
		if err != nil {
			return nil, err
		}
		krn.SetMask(mask)

		pre, err := NewPrecondition(input, DemodNone, DemeanNone, prior)
		if err != nil {
			return nil, err
		}
		work := input
		if !pre.Noop() {
			work, err = image.Scratch(input.Header(), fmt.Sprintf("iteration %d preconditioned", i))
			if err != nil {
				return nil, err
			}
			if err := pre.Apply(input, work); err != nil {
				return nil, err
			}
		}

		est := first
		if prior.Valid() {
			est = estimator.Unity{}
		}
		exports := NewExports(input.Header(), ss.Header())
		if err := exports.SetNoiseOut(""); err != nil {
			return nil, err
		}
		iterOpts := append([]Option{WithMask(mask)}, opts...)
		if err := Estimate(ctx, work, ss, krn, est, exports, pre.Rank(), iterOpts...); err != nil {
			return nil, err
		}
		noise := exports.NoiseOut
		if prior.Valid() {
			lin, err := interp.NewLinear(prior)
			if err != nil {
				return nil, err
			}
			if err := UnwindVST(noise, lin); err != nil {
				return nil, err
			}
		}
		if it.SmoothNoiseOut {
			hdr := noise.Header()
			SmoothNoiseMap(noise, [3]float64{
				2 * hdr.Spacing[0],
				2 * hdr.Spacing[1],
				2 * hdr.Spacing[2],
			})
		}
		if prev.Valid() && prev.Header().SameGrid(noise.Header()) {
			delta := maxRelChange(prev, noise)
			logger.Log.Info().Int("iteration", i).Float64("max_rel_delta", delta).Msg("iterative refinement")
			if delta <= maxDelta {
				return noise, nil
			}
		}
		prev = noise
		prior = noise
	}
	return prev, nil
}

func maxRelChange(prev, next *image.Image) float64 {
	a := prev.Float32s()
	b := next.Float32s()
	worst := 0.0
	for i := range a {
		pv := float64(a[i])
		nv := float64(b[i])
		if math.IsNaN(pv) || math.IsNaN(nv) || pv <= 0 {
			continue
		}
		if rel := math.Abs(nv-pv) / pv; rel > worst {
			worst = rel
		}
	}
	return worst
}
