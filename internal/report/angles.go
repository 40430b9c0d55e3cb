package report

import (
	"errors"
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrNoData is returned when there is nothing to summarise or plot.
	ErrNoData = errors.New("report: no data")
	// ErrZeroReference is returned for a zero reference direction.
	ErrZeroReference = errors.New("report: zero reference direction")
)

// DeviationAngles returns, for every non-zero normal, the angle in degrees
// between its line and the reference line. Orientation is ignored, so the
// result lies in [0, 90].
func DeviationAngles(normals []r3.Vector, ref r3.Vector) ([]float64, error) {
	rn := ref.Norm()
	if rn == 0 {
		return nil, ErrZeroReference
	}
	angles := make([]float64, 0, len(normals))
	for _, n := range normals {
		nn := n.Norm()
		if nn == 0 {
			continue
		}
		c := math.Min(1, math.Abs(n.Dot(ref))/(nn*rn))
		angles = append(angles, math.Acos(c)*180/math.Pi)
	}
	return angles, nil
}

// Summary holds descriptive statistics of a sample.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	Max    float64 `json:"max"`
}

// Summarize computes a Summary of values. values is not modified.
func Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, ErrNoData
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mean, std := stat.MeanStdDev(sorted, nil)
	if len(sorted) == 1 {
		std = 0
	}
	return Summary{
		Count:  len(sorted),
		Mean:   mean,
		StdDev: std,
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
		Max:    sorted[len(sorted)-1],
	}, nil
}
