// Package denoise implements patch-wise Marchenko-Pastur PCA noise level
// estimation over 4-D image series. The entry point is Estimate; the
// supporting pieces (Subsample, Precondition, Exports, the kernels and
// estimators) are built once per run and shared across workers.
package denoise

import (
	"errors"

	"github.com/itohio/mpnoise/pkg/image"
)

const DefaultSubsampleRatio = 2

var (
	// ErrShape flags input images that are not a 4-D series of at least
	// two volumes, or collaborator images on a mismatched grid.
	ErrShape = errors.New("denoise: bad image shape")
	// ErrConfig flags incompatible option combinations.
	ErrConfig = errors.New("denoise: bad configuration")
)

// CheckInput validates the input series shape shared by all drivers.
func CheckInput(in *image.Image) error {
	if !in.Valid() {
		return ErrShape
	}
	hdr := in.Header()
	if hdr.NDim() != 4 || hdr.Size[3] <= 1 {
		return ErrShape
	}
	return nil
}
