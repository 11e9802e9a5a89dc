package denoise

import (
	"math"

	"github.com/chewxy/math32"

	"github.com/itohio/mpnoise/pkg/image"
)

const fwhmToSigma = 2.3548200450309493 // 2*sqrt(2*ln 2)

// gaussianKernel1D builds a normalised Gaussian line kernel with radius
// 2.5 sigma; a zero or negative sigma collapses to the identity.
func gaussianKernel1D(sigmaVox float64) []float64 {
	if sigmaVox <= 0 {
		return []float64{1}
	}
	radius := int(math.Ceil(2.5 * sigmaVox))
	k := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-0.5 * float64(i*i) / (sigmaVox * sigmaVox))
		k[i+radius] = v
		sum += v
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// smoothComplexVolume applies a separable Gaussian along each axis of a
// volume laid out with z fastest. Edges are renormalised over the in-bounds
// support.
func smoothComplexVolume(vol []complex128, size [3]int, sigmaVox [3]float64) {
	tmp := make([]complex128, len(vol))
	stride := [3]int{size[1] * size[2], size[2], 1}
	src, dst := vol, tmp
	for axis := 0; axis < 3; axis++ {
		k := gaussianKernel1D(sigmaVox[axis])
		radius := len(k) / 2
		if radius == 0 {
			continue
		}
		convolveAxis(src, dst, size, stride, axis, k, radius)
		src, dst = dst, src
	}
	if &src[0] != &vol[0] {
		copy(vol, src)
	}
}

func convolveAxis(src, dst []complex128, size, stride [3]int, axis int, k []float64, radius int) {
	n := size[axis]
	for x := 0; x < size[0]; x++ {
		for y := 0; y < size[1]; y++ {
			for z := 0; z < size[2]; z++ {
				idx := [3]int{x, y, z}
				var acc complex128
				w := 0.0
				for t := -radius; t <= radius; t++ {
					p := idx[axis] + t
					if p < 0 || p >= n {
						continue
					}
					var i int
					switch axis {
					case 0:
						i = p*stride[0] + y*stride[1] + z
					case 1:
						i = x*stride[0] + p*stride[1] + z
					default:
						i = x*stride[0] + y*stride[1] + p
					}
					acc += complex(k[t+radius], 0) * src[i]
					w += k[t+radius]
				}
				dst[x*stride[0]+y*stride[1]+z] = acc / complex(w, 0)
			}
		}
	}
}

// SmoothNoiseMap smooths a float32 noise map in place with a Gaussian of
// the given FWHM in millimetres on each axis. NaN cells (unprocessed or
// invalid patches) neither contribute nor receive values.
func SmoothNoiseMap(im *image.Image, fwhmMM [3]float64) {
	hdr := im.Header()
	data := im.Float32s()
	if data == nil {
		return
	}
	size := [3]int{hdr.Size[0], hdr.Size[1], hdr.Size[2]}
	stride := [3]int{size[1] * size[2], size[2], 1}
	var kernels [3][]float64
	for axis := 0; axis < 3; axis++ {
		kernels[axis] = gaussianKernel1D(fwhmMM[axis] / (fwhmToSigma * hdr.Spacing[axis]))
	}
	src := make([]float32, len(data))
	for axis := 0; axis < 3; axis++ {
		k := kernels[axis]
		radius := len(k) / 2
		if radius == 0 {
			continue
		}
		copy(src, data)
		for x := 0; x < size[0]; x++ {
			for y := 0; y < size[1]; y++ {
				for z := 0; z < size[2]; z++ {
					idx := [3]int{x, y, z}
					self := src[x*stride[0]+y*stride[1]+z]
					if math32.IsNaN(self) {
						continue
					}
					acc := float32(0)
					w := float32(0)
					for t := -radius; t <= radius; t++ {
						p := idx[axis] + t
						if p < 0 || p >= size[axis] {
							continue
						}
						var i int
						switch axis {
						case 0:
							i = p*stride[0] + y*stride[1] + z
						case 1:
							i = x*stride[0] + p*stride[1] + z
						default:
							i = x*stride[0] + y*stride[1] + p
						}
						v := src[i]
						if math32.IsNaN(v) {
							continue
						}
						kw := float32(k[t+radius])
						acc += kw * v
						w += kw
					}
					if w > 0 {
						data[x*stride[0]+y*stride[1]+z] = acc / w
					}
				}
			}
		}
	}
}
