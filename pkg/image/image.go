package image

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"gorgonia.org/tensor"
)

// Image is a dense voxel volume: a header plus a gorgonia tensor holding the
// payload. 4-D images are laid out with the volume axis fastest, so one
// voxel's measurements across volumes form a contiguous column.
type Image struct {
	hdr  Header
	name string

	dense *tensor.Dense

	// typed views of the payload; exactly one is non-nil
	f32  []float32
	f64  []float64
	c64  []complex64
	c128 []complex128
	u16  []uint16
	u32  []uint32
}

// New allocates a zero-filled image for the header.
func New(hdr Header, name string) (*Image, error) {
	var shape []int
	if hdr.NDim() == 4 {
		shape = []int{hdr.Size[0], hdr.Size[1], hdr.Size[2], hdr.Size[3]}
	} else {
		shape = []int{hdr.Size[0], hdr.Size[1], hdr.Size[2]}
	}
	for _, s := range shape {
		if s <= 0 {
			return nil, fmt.Errorf("image: invalid size %v for %q", hdr.Size, name)
		}
	}
	d := tensor.New(tensor.WithShape(shape...), tensor.Of(hdr.DT.dtype()))
	im := &Image{hdr: hdr.Clone(), name: name, dense: d}
	switch data := d.Data().(type) {
	case []float32:
		im.f32 = data
	case []float64:
		im.f64 = data
	case []complex64:
		im.c64 = data
	case []complex128:
		im.c128 = data
	case []uint16:
		im.u16 = data
	case []uint32:
		im.u32 = data
	default:
		return nil, fmt.Errorf("image: unsupported datatype %v", hdr.DT)
	}
	return im, nil
}

// Scratch allocates an anonymous in-memory image; the generated name keeps
// log lines and error messages distinguishable.
func Scratch(hdr Header, desc string) (*Image, error) {
	return New(hdr, fmt.Sprintf("scratch-%s (%s)", uuid.NewString()[:8], desc))
}

func (im *Image) Valid() bool    { return im != nil && im.dense != nil }
func (im *Image) Header() Header { return im.hdr }
func (im *Image) Name() string   { return im.name }

// Volumes reports the series length M.
func (im *Image) Volumes() int { return im.hdr.Volumes() }

func (im *Image) offset(x, y, z, v int) int {
	h := &im.hdr
	if h.Size[3] > 0 {
		return ((x*h.Size[1]+y)*h.Size[2]+z)*h.Size[3] + v
	}
	return (x*h.Size[1]+y)*h.Size[2] + z
}

// At reads a cell as complex128 regardless of the stored type.
func (im *Image) At(x, y, z, v int) complex128 {
	i := im.offset(x, y, z, v)
	switch {
	case im.f32 != nil:
		return complex(float64(im.f32[i]), 0)
	case im.f64 != nil:
		return complex(im.f64[i], 0)
	case im.c64 != nil:
		return complex128(im.c64[i])
	case im.c128 != nil:
		return im.c128[i]
	case im.u16 != nil:
		return complex(float64(im.u16[i]), 0)
	case im.u32 != nil:
		return complex(float64(im.u32[i]), 0)
	}
	return complex(math.NaN(), 0)
}

// RealAt reads the real part of a cell.
func (im *Image) RealAt(x, y, z, v int) float64 {
	return real(im.At(x, y, z, v))
}

// Set stores a cell, narrowing to the image datatype.
func (im *Image) Set(x, y, z, v int, val complex128) {
	i := im.offset(x, y, z, v)
	switch {
	case im.f32 != nil:
		im.f32[i] = float32(real(val))
	case im.f64 != nil:
		im.f64[i] = real(val)
	case im.c64 != nil:
		im.c64[i] = complex64(val)
	case im.c128 != nil:
		im.c128[i] = val
	case im.u16 != nil:
		im.u16[i] = uint16(real(val))
	case im.u32 != nil:
		im.u32[i] = uint32(real(val))
	}
}

// SetReal stores a real value at a 3-D coordinate (volume 0).
func (im *Image) SetReal(x, y, z int, val float64) {
	im.Set(x, y, z, 0, complex(val, 0))
}

// ColumnReal copies the per-volume measurements at a voxel into dst, which
// must have length Volumes(). Only meaningful on real-valued images.
func (im *Image) ColumnReal(x, y, z int, dst []float64) {
	base := im.offset(x, y, z, 0)
	switch {
	case im.f32 != nil:
		for v := range dst {
			dst[v] = float64(im.f32[base+v])
		}
	case im.f64 != nil:
		copy(dst, im.f64[base:base+len(dst)])
	default:
		for v := range dst {
			dst[v] = real(im.At(x, y, z, v))
		}
	}
}

// ColumnComplex copies the per-volume measurements at a voxel into dst.
func (im *Image) ColumnComplex(x, y, z int, dst []complex128) {
	base := im.offset(x, y, z, 0)
	switch {
	case im.c64 != nil:
		for v := range dst {
			dst[v] = complex128(im.c64[base+v])
		}
	case im.c128 != nil:
		copy(dst, im.c128[base:base+len(dst)])
	default:
		for v := range dst {
			dst[v] = im.At(x, y, z, v)
		}
	}
}

// SetColumn stores a full volume column at a voxel.
func (im *Image) SetColumn(x, y, z int, src []complex128) {
	base := im.offset(x, y, z, 0)
	switch {
	case im.f32 != nil:
		for v, c := range src {
			im.f32[base+v] = float32(real(c))
		}
	case im.f64 != nil:
		for v, c := range src {
			im.f64[base+v] = real(c)
		}
	case im.c64 != nil:
		for v, c := range src {
			im.c64[base+v] = complex64(c)
		}
	case im.c128 != nil:
		copy(im.c128[base:base+len(src)], src)
	}
}

// Float32s exposes the raw payload of a float32 image; nil otherwise.
func (im *Image) Float32s() []float32 { return im.f32 }

// Uint16s exposes the raw payload of a uint16 image; nil otherwise.
func (im *Image) Uint16s() []uint16 { return im.u16 }

// Uint32s exposes the raw payload of a uint32 image; nil otherwise.
// Cells may be updated with atomic operations by concurrent writers.
func (im *Image) Uint32s() []uint32 { return im.u32 }

// Offset3 resolves a spatial coordinate into an index of the raw payload of
// a 3-D image.
func (im *Image) Offset3(x, y, z int) int {
	return im.offset(x, y, z, 0)
}

// Fill sets every cell of a real image to the value.
func (im *Image) Fill(val float64) {
	switch {
	case im.f32 != nil:
		f := float32(val)
		for i := range im.f32 {
			im.f32[i] = f
		}
	case im.f64 != nil:
		for i := range im.f64 {
			im.f64[i] = val
		}
	case im.u16 != nil:
		u := uint16(val)
		for i := range im.u16 {
			im.u16[i] = u
		}
	case im.u32 != nil:
		u := uint32(val)
		for i := range im.u32 {
			im.u32[i] = u
		}
	}
}
