package image

import (
	"fmt"

	"gorgonia.org/tensor"
)

// DType enumerates the cell types an Image can carry. Float and complex
// types are valid input series; the unsigned types exist for export maps.
type DType int

const (
	Float32 DType = iota
	Float64
	Complex64
	Complex128
	UInt16
	UInt32
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Complex64:
		return "cfloat32"
	case Complex128:
		return "cfloat64"
	case UInt16:
		return "uint16"
	case UInt32:
		return "uint32"
	}
	return "unknown"
}

// ParseDType resolves the textual datatype names used in headers and on the
// command line.
func ParseDType(s string) (DType, error) {
	switch s {
	case "float32":
		return Float32, nil
	case "float64":
		return Float64, nil
	case "cfloat32":
		return Complex64, nil
	case "cfloat64":
		return Complex128, nil
	case "uint16":
		return UInt16, nil
	case "uint32":
		return UInt32, nil
	}
	return Float32, fmt.Errorf("image: unknown datatype %q", s)
}

func (d DType) IsComplex() bool {
	return d == Complex64 || d == Complex128
}

// Complex maps a real precision onto its complex counterpart. Complex
// types map to themselves.
func (d DType) Complex() DType {
	switch d {
	case Float32:
		return Complex64
	case Float64:
		return Complex128
	default:
		return d
	}
}

func (d DType) dtype() tensor.Dtype {
	switch d {
	case Float32:
		return tensor.Float32
	case Float64:
		return tensor.Float64
	case Complex64:
		return tensor.Complex64
	case Complex128:
		return tensor.Complex128
	case UInt16:
		return tensor.Uint16
	case UInt32:
		return tensor.Uint32
	}
	return tensor.Float32
}
