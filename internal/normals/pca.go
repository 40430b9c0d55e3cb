package normals

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// rankEpsilon is the relative size below which the middle eigenvalue is
// treated as zero. A neighbourhood with only one non-zero eigenvalue lies on
// a line and has no defined plane normal.
const rankEpsilon = 1e-12

// Fit is the result of a covariance plane fit.
type Fit struct {
	Normal      r3.Vector  // unit eigenvector of the smallest eigenvalue
	Eigenvalues [3]float64 // ascending
	Curvature   float64    // surface variation λ0/(λ0+λ1+λ2)
}

// FitNormal fits a plane to neighbors and returns its normal. The sign of
// the normal is whatever the eigen solver produced; see ResolveSign.
func FitNormal(neighbors []r3.Vector) (Fit, error) {
	var f fitter
	return f.fit(neighbors)
}

// fitter keeps the matrices of one worker alive between fits.
type fitter struct {
	data []float64
	cov  mat.SymDense
	eig  mat.EigenSym
	vecs mat.Dense
}

func (f *fitter) fit(neighbors []r3.Vector) (Fit, error) {
	rows := len(neighbors)
	if rows < 2 {
		return Fit{}, fmt.Errorf("%w: %d neighbours", ErrInsufficientNeighborhood, rows)
	}

	if cap(f.data) < rows*3 {
		f.data = make([]float64, rows*3)
	}
	data := f.data[:rows*3]
	for i, p := range neighbors {
		data[i*3] = p.X
		data[i*3+1] = p.Y
		data[i*3+2] = p.Z
	}
	m := mat.NewDense(rows, 3, data)

	f.cov.Reset()
	stat.CovarianceMatrix(&f.cov, m, nil)

	if ok := f.eig.Factorize(&f.cov, true); !ok {
		return Fit{}, fmt.Errorf("%w: eigen decomposition failed", ErrDegenerateCovariance)
	}
	var vals [3]float64
	f.eig.Values(vals[:])

	trace := vals[0] + vals[1] + vals[2]
	if !(trace > 0) || math.IsInf(trace, 0) || vals[1] <= rankEpsilon*trace {
		return Fit{Eigenvalues: vals}, fmt.Errorf("%w: eigenvalues %v", ErrDegenerateCovariance, vals)
	}

	f.vecs.Reset()
	f.eig.VectorsTo(&f.vecs)
	normal := r3.Vector{
		X: f.vecs.At(0, 0),
		Y: f.vecs.At(1, 0),
		Z: f.vecs.At(2, 0),
	}

	return Fit{
		Normal:      normal,
		Eigenvalues: vals,
		Curvature:   math.Max(vals[0], 0) / trace,
	}, nil
}
