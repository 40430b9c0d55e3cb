// Package testutil provides shared test utilities and fixtures.
//
// This package centralises synthetic point clouds and common assertions so
// the estimator, codec and API tests build their inputs the same way.
package testutil

import (
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/geo/r3"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request with an optional body.
func NewTestRequest(method, path string, body io.Reader) *http.Request {
	return httptest.NewRequest(method, path, body)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// PlanarCloud returns n points with x and y uniform in [-half, half] and z
// uniform in [-noise, noise].
func PlanarCloud(rng *rand.Rand, n int, half, noise float64) []r3.Vector {
	pts := make([]r3.Vector, n)
	for i := range pts {
		pts[i] = r3.Vector{
			X: (rng.Float64()*2 - 1) * half,
			Y: (rng.Float64()*2 - 1) * half,
			Z: (rng.Float64()*2 - 1) * noise,
		}
	}
	return pts
}

// SphereCloud returns n points on a sphere around center, spread with a
// Fibonacci lattice so every run yields the same cloud.
func SphereCloud(n int, center r3.Vector, radius float64) []r3.Vector {
	pts := make([]r3.Vector, n)
	golden := math.Pi * (3 - math.Sqrt(5))
	for i := range pts {
		y := 1 - 2*(float64(i)+0.5)/float64(n)
		r := math.Sqrt(1 - y*y)
		phi := golden * float64(i)
		pts[i] = center.Add(r3.Vector{X: r * math.Cos(phi), Y: y, Z: r * math.Sin(phi)}.Mul(radius))
	}
	return pts
}

// RepeatedPoint returns n copies of p.
func RepeatedPoint(n int, p r3.Vector) []r3.Vector {
	pts := make([]r3.Vector, n)
	for i := range pts {
		pts[i] = p
	}
	return pts
}

// AngleDeg returns the angle between a and b in degrees, or NaN when either
// is zero.
func AngleDeg(a, b r3.Vector) float64 {
	d := a.Norm() * b.Norm()
	if d == 0 {
		return math.NaN()
	}
	c := math.Max(-1, math.Min(1, a.Dot(b)/d))
	return math.Acos(c) * 180 / math.Pi
}

// AssertLineAngle fails if the line through got deviates from the line
// through want by more than tolDeg. Opposite directions count as equal.
func AssertLineAngle(t testing.TB, got, want r3.Vector, tolDeg float64) {
	t.Helper()
	a := AngleDeg(got, want)
	if math.IsNaN(a) {
		t.Errorf("angle undefined between %v and %v", got, want)
		return
	}
	if a > 90 {
		a = 180 - a
	}
	if a > tolDeg {
		t.Errorf("line of %v is %.3f° from %v, want <= %.3f°", got, a, want, tolDeg)
	}
}

// AssertFinite fails on the first vector with a NaN or infinite component.
func AssertFinite(t testing.TB, vs []r3.Vector) {
	t.Helper()
	for i, v := range vs {
		for _, c := range [3]float64{v.X, v.Y, v.Z} {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				t.Fatalf("vector %d = %v is not finite", i, v)
			}
		}
	}
}
