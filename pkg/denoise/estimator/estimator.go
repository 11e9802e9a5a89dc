// Package estimator fits the Marchenko-Pastur noise bulk of patch
// eigenspectra. Every estimator receives the eigenvalues of one patch in
// non-decreasing order (the squared singular values of the M x N patch
// matrix), the matrix dimensions, the preconditioner null-space rank and
// the scanner-space position of the patch centre.
package estimator

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/itohio/mpnoise/pkg/image"
)

type Estimator interface {
	Estimate(eigenvalues []float64, m, n, rp int, pos r3.Vec) Result
}

// Resolution of the decomposition dimensions under preconditioning that
// leaves rp directions linearly dependent: the smallest rp eigenvalues
// (indices [0, rp) of the ascending spectrum) are structurally zero and both
// matrix dimensions shrink accordingly.

func DimLongNonzero(m, n, rp int) int {
	if m > n {
		return m - rp
	}
	return n - rp
}

func RankNonzero(m, n, rp int) int {
	if m < n {
		return m - rp
	}
	return n - rp
}

func RankZero(m, n, rp int) int {
	return rp
}

// Names accepted by New, mirroring the command line.
var Names = []string{"exp1", "exp2", "med", "mrm2022", "import"}

// Config selects and parameterises an estimator.
type Config struct {
	Name    string
	NoiseIn *image.Image // required for "import"
	VST     *image.Image // rescales imported or fixed noise levels
}

// New builds the estimator named in the config. Unknown names and an
// "import" request without a noise map are configuration errors.
func New(cfg Config) (Estimator, error) {
	switch cfg.Name {
	case "", "exp2":
		return NewExp(2)
	case "exp1":
		return NewExp(1)
	case "med":
		return &Med{}, nil
	case "mrm2022":
		return &MRM2022{}, nil
	case "import":
		if !cfg.NoiseIn.Valid() {
			return nil, fmt.Errorf("estimator: import requires a pre-estimated noise level image")
		}
		return NewImport(cfg.NoiseIn, cfg.VST)
	}
	return nil, fmt.Errorf("estimator: unknown estimator %q", cfg.Name)
}
