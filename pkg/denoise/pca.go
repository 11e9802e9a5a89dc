package denoise

import (
	"gonum.org/v1/gonum/mat"
)

// Per-worker scratch for the patch PCA. The eigenspectrum is obtained from
// the Gram matrix over the short dimension of the M x N patch matrix; its
// eigenvalues are the squared singular values, which is what the estimators
// consume. Complex data go through the realified Hermitian Gram, whose
// eigenvalues come out in duplicate pairs.
type pcaWorkspace struct {
	m    int
	maxN int

	xr []float64    // patch matrix, column-major, real path
	xc []complex128 // patch matrix, column-major, complex path

	gram []float64 // backing for the symmetric Gram matrix
	vals []float64 // eigenvalue scratch (2r for the complex path)
}

func newPCAWorkspace(m, maxN int, complexData bool) *pcaWorkspace {
	w := &pcaWorkspace{m: m, maxN: maxN}
	r := m
	if maxN < r {
		r = maxN
	}
	if complexData {
		w.xc = make([]complex128, m*maxN)
		w.gram = make([]float64, 4*r*r)
		w.vals = make([]float64, 2*r)
	} else {
		w.xr = make([]float64, m*maxN)
		w.gram = make([]float64, r*r)
		w.vals = make([]float64, r)
	}
	return w
}

// spectrumReal fills dst (length min(m,n)) with the ascending eigenvalues
// of the n-column patch matrix currently loaded in xr. Returns false if the
// eigendecomposition fails to converge.
func (w *pcaWorkspace) spectrumReal(n int, dst []float64) bool {
	m := w.m
	r := min(m, n)
	g := mat.NewSymDense(r, w.gram[:r*r])
	if m <= n {
		for i := 0; i < m; i++ {
			for j := i; j < m; j++ {
				acc := 0.0
				for c := 0; c < n; c++ {
					acc += w.xr[c*m+i] * w.xr[c*m+j]
				}
				g.SetSym(i, j, acc)
			}
		}
	} else {
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				acc := 0.0
				ci := w.xr[i*m : i*m+m]
				cj := w.xr[j*m : j*m+m]
				for k := 0; k < m; k++ {
					acc += ci[k] * cj[k]
				}
				g.SetSym(i, j, acc)
			}
		}
	}
	var es mat.EigenSym
	if !es.Factorize(g, false) {
		return false
	}
	es.Values(dst[:r])
	clampNonNegative(dst[:r])
	return true
}

// spectrumComplex is the complex-data counterpart of spectrumReal: the
// Hermitian Gram G is embedded as the symmetric real matrix
// [[Re -Im],[Im Re]], each eigenvalue of G appearing twice.
func (w *pcaWorkspace) spectrumComplex(n int, dst []float64) bool {
	m := w.m
	r := min(m, n)
	g := mat.NewSymDense(2*r, w.gram[:4*r*r])
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			var acc complex128
			if m <= n {
				for c := 0; c < n; c++ {
					acc += w.xc[c*m+i] * conj(w.xc[c*m+j])
				}
			} else {
				ci := w.xc[i*m : i*m+m]
				cj := w.xc[j*m : j*m+m]
				for k := 0; k < m; k++ {
					acc += conj(ci[k]) * cj[k]
				}
			}
			re, im := real(acc), imag(acc)
			g.SetSym(i, j, re)
			g.SetSym(r+i, r+j, re)
			// Off-diagonal blocks hold the antisymmetric imaginary part;
			// SetSym writes the (i, r+j) and mirrored cells of the upper
			// triangle.
			g.SetSym(i, r+j, -im)
			if i != j {
				g.SetSym(j, r+i, im)
			}
		}
	}
	var es mat.EigenSym
	if !es.Factorize(g, false) {
		return false
	}
	es.Values(w.vals[:2*r])
	for i := 0; i < r; i++ {
		dst[i] = 0.5 * (w.vals[2*i] + w.vals[2*i+1])
	}
	clampNonNegative(dst[:r])
	return true
}

func clampNonNegative(s []float64) {
	for i, v := range s {
		if v < 0 {
			s[i] = 0
		}
	}
}

func conj(c complex128) complex128 {
	return complex(real(c), -imag(c))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
