package denoise

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/itohio/mpnoise/pkg/image"
	"github.com/itohio/mpnoise/pkg/interp"
)

// DemodMode selects how the complex phase structure is removed before PCA.
type DemodMode int

const (
	DemodNone DemodMode = iota
	// DemodLinear removes, per volume, the phase ramp of the dominant
	// k-space peak.
	DemodLinear
	// DemodNonlinear removes the phase of a Gaussian-smoothed copy of each
	// volume.
	DemodNonlinear
)

func ParseDemodMode(s string) (DemodMode, error) {
	switch s {
	case "", "none":
		return DemodNone, nil
	case "linear":
		return DemodLinear, nil
	case "nonlinear":
		return DemodNonlinear, nil
	}
	return DemodNone, fmt.Errorf("%w: unknown demodulation %q", ErrConfig, s)
}

// DemeanMode selects which mean is regressed from the data before PCA.
type DemeanMode int

const (
	DemeanNone DemeanMode = iota
	// DemeanVolumes subtracts, per voxel, the mean of its column across
	// volumes.
	DemeanVolumes
	// DemeanVoxels subtracts, per volume, the mean of that volume across
	// voxels.
	DemeanVoxels
)

func ParseDemeanMode(s string) (DemeanMode, error) {
	switch s {
	case "", "none":
		return DemeanNone, nil
	case "volumes":
		return DemeanVolumes, nil
	case "voxels":
		return DemeanVoxels, nil
	}
	return DemeanNone, fmt.Errorf("%w: unknown demean mode %q", ErrConfig, s)
}

// nonlinearDemodFWHMVoxels is the smoothing width used to extract the
// slowly-varying phase field.
const nonlinearDemodFWHMVoxels = 4.0

// Precondition removes mean and phase structure from the input series
// before PCA and records the rank deficit this introduces, so that the
// estimators can treat the smallest eigenvalues as structurally zero.
// Construction is deterministic: the same inputs always produce the same
// preconditioned image.
type Precondition struct {
	demod  DemodMode
	demean DemeanMode
	vst    *image.Image
	vstInt *interp.Cubic

	// unit phasors per cell, present when demodulating
	phase *image.Image

	rank int
}

func NewPrecondition(input *image.Image, demod DemodMode, demean DemeanMode, vst *image.Image) (*Precondition, error) {
	if err := CheckInput(input); err != nil {
		return nil, err
	}
	p := &Precondition{demod: demod, demean: demean}
	if demod != DemodNone {
		if !input.Header().DT.IsComplex() {
			return nil, fmt.Errorf("%w: demodulation requires complex input data", ErrConfig)
		}
		phase, err := computePhase(input, demod)
		if err != nil {
			return nil, err
		}
		p.phase = phase
	}
	if vst.Valid() {
		if vst.Header().NDim() != 3 {
			return nil, fmt.Errorf("%w: noise level prior must be a 3-dimensional image", ErrShape)
		}
		c, err := interp.NewCubic(vst)
		if err != nil {
			return nil, err
		}
		p.vst = vst
		p.vstInt = c
	}
	if demean != DemeanNone {
		p.rank = 1
	}
	return p, nil
}

// Rank reports the number of linearly dependent directions the transform
// introduces.
func (p *Precondition) Rank() int { return p.rank }

func (p *Precondition) Noop() bool {
	return p.demod == DemodNone && p.demean == DemeanNone && p.vst == nil
}

// Apply writes the preconditioned series into out, which must share the
// input grid and series length.
func (p *Precondition) Apply(in, out *image.Image) error {
	hIn, hOut := in.Header(), out.Header()
	if err := hIn.CheckSameGrid(hOut, "preconditioned output"); err != nil {
		return fmt.Errorf("%w: %w", ErrShape, err)
	}
	if hIn.Size[3] != hOut.Size[3] {
		return fmt.Errorf("%w: preconditioned output volume count", ErrShape)
	}
	m := hIn.Size[3]
	var volMeans []complex128
	if p.demean == DemeanVoxels {
		volMeans = p.volumeMeans(in)
	}
	col := make([]complex128, m)
	for x := 0; x < hIn.Size[0]; x++ {
		for y := 0; y < hIn.Size[1]; y++ {
			for z := 0; z < hIn.Size[2]; z++ {
				in.ColumnComplex(x, y, z, col)
				if p.phase != nil {
					for v := 0; v < m; v++ {
						col[v] *= cmplx.Conj(p.phase.At(x, y, z, v))
					}
				}
				switch p.demean {
				case DemeanVolumes:
					var mean complex128
					for _, c := range col {
						mean += c
					}
					mean /= complex(float64(m), 0)
					for v := range col {
						col[v] -= mean
					}
				case DemeanVoxels:
					for v := range col {
						col[v] -= volMeans[v]
					}
				}
				if p.vstInt != nil {
					pos := hIn.VoxelToScanner(float64(x), float64(y), float64(z))
					prior, ok := p.vstInt.At(pos)
					if ok && prior > 0 && !math.IsNaN(prior) {
						for v := range col {
							col[v] /= complex(prior, 0)
						}
					}
				}
				out.SetColumn(x, y, z, col)
			}
		}
	}
	return nil
}

// volumeMeans computes, per volume, the spatial mean of the (demodulated)
// data; this is the mean regressed by DemeanVoxels.
func (p *Precondition) volumeMeans(in *image.Image) []complex128 {
	hdr := in.Header()
	m := hdr.Size[3]
	means := make([]complex128, m)
	col := make([]complex128, m)
	for x := 0; x < hdr.Size[0]; x++ {
		for y := 0; y < hdr.Size[1]; y++ {
			for z := 0; z < hdr.Size[2]; z++ {
				in.ColumnComplex(x, y, z, col)
				if p.phase != nil {
					for v := 0; v < m; v++ {
						col[v] *= cmplx.Conj(p.phase.At(x, y, z, v))
					}
				}
				for v := 0; v < m; v++ {
					means[v] += col[v]
				}
			}
		}
	}
	n := complex(float64(hdr.NumVoxels()), 0)
	for v := range means {
		means[v] /= n
	}
	return means
}

// computePhase derives the per-cell unit phasor removed by demodulation.
func computePhase(input *image.Image, mode DemodMode) (*image.Image, error) {
	hdr := input.Header().Clone()
	hdr.DT = image.Complex128
	hdr.IntensityOffset = 0
	hdr.IntensityScale = 1
	phase, err := image.Scratch(hdr, "demodulation phase")
	if err != nil {
		return nil, err
	}
	size := [3]int{hdr.Size[0], hdr.Size[1], hdr.Size[2]}
	vol := make([]complex128, size[0]*size[1]*size[2])
	var ffts [3]*fourier.CmplxFFT
	if mode == DemodLinear {
		for axis := 0; axis < 3; axis++ {
			ffts[axis] = fourier.NewCmplxFFT(size[axis])
		}
	}
	for v := 0; v < hdr.Size[3]; v++ {
		loadVolume(input, v, vol, size)
		switch mode {
		case DemodLinear:
			linearPhase(vol, size, ffts)
		case DemodNonlinear:
			sigma := nonlinearDemodFWHMVoxels / fwhmToSigma
			smoothComplexVolume(vol, size, [3]float64{sigma, sigma, sigma})
			unitPhase(vol)
		}
		storeVolume(phase, v, vol, size)
	}
	return phase, nil
}

func loadVolume(im *image.Image, v int, vol []complex128, size [3]int) {
	i := 0
	for x := 0; x < size[0]; x++ {
		for y := 0; y < size[1]; y++ {
			for z := 0; z < size[2]; z++ {
				vol[i] = im.At(x, y, z, v)
				i++
			}
		}
	}
}

func storeVolume(im *image.Image, v int, vol []complex128, size [3]int) {
	i := 0
	for x := 0; x < size[0]; x++ {
		for y := 0; y < size[1]; y++ {
			for z := 0; z < size[2]; z++ {
				im.Set(x, y, z, v, vol[i])
				i++
			}
		}
	}
}

// linearPhase replaces the volume with the unit phasor of its dominant
// k-space component: a 3-D FFT locates the strongest frequency, and the
// corresponding ramp is synthesised across the grid.
func linearPhase(vol []complex128, size [3]int, ffts [3]*fourier.CmplxFFT) {
	spec := make([]complex128, len(vol))
	copy(spec, vol)
	fft3(spec, size, ffts)
	peak := 0
	peakMag := 0.0
	for i, c := range spec {
		if mag := real(c)*real(c) + imag(c)*imag(c); mag > peakMag {
			peakMag = mag
			peak = i
		}
	}
	kx := peak / (size[1] * size[2])
	ky := (peak / size[2]) % size[1]
	kz := peak % size[2]
	phase0 := cmplx.Phase(spec[peak])
	i := 0
	for x := 0; x < size[0]; x++ {
		for y := 0; y < size[1]; y++ {
			for z := 0; z < size[2]; z++ {
				phi := 2 * math.Pi * (float64(kx*x)/float64(size[0]) +
					float64(ky*y)/float64(size[1]) +
					float64(kz*z)/float64(size[2]))
				vol[i] = cmplx.Exp(complex(0, phi+phase0))
				i++
			}
		}
	}
}

// fft3 applies a 1-D transform along each axis in turn. The volume is laid
// out with z fastest.
func fft3(vol []complex128, size [3]int, ffts [3]*fourier.CmplxFFT) {
	line := make([]complex128, maxInt(size[0], maxInt(size[1], size[2])))
	out := make([]complex128, len(line))
	stride := [3]int{size[1] * size[2], size[2], 1}
	for axis := 0; axis < 3; axis++ {
		n := size[axis]
		fft := ffts[axis]
		for a := 0; a < size[(axis+1)%3]; a++ {
			for b := 0; b < size[(axis+2)%3]; b++ {
				base := a*stride[(axis+1)%3] + b*stride[(axis+2)%3]
				for i := 0; i < n; i++ {
					line[i] = vol[base+i*stride[axis]]
				}
				res := fft.Coefficients(out[:n], line[:n])
				for i := 0; i < n; i++ {
					vol[base+i*stride[axis]] = res[i]
				}
			}
		}
	}
}

func unitPhase(vol []complex128) {
	for i, c := range vol {
		mag := cmplx.Abs(c)
		if mag == 0 || math.IsNaN(mag) {
			vol[i] = 1
			continue
		}
		vol[i] = c / complex(mag, 0)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
