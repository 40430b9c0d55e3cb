// Package geom holds whole-cloud geometry helpers: bounding boxes, extent
// and recentring.
package geom

import (
	"math"

	"github.com/golang/geo/r3"
)

// Bounds is an axis-aligned bounding box. The zero value is not a valid box;
// use ComputeBounds or EmptyBounds.
type Bounds struct {
	Min, Max r3.Vector
}

// EmptyBounds returns a box that contains nothing. Extending it with any
// point yields that point's degenerate box.
func EmptyBounds() Bounds {
	inf := math.Inf(1)
	return Bounds{
		Min: r3.Vector{X: inf, Y: inf, Z: inf},
		Max: r3.Vector{X: -inf, Y: -inf, Z: -inf},
	}
}

// ComputeBounds scans points once and returns their bounding box. The bool
// is false for an empty slice, in which case no box exists.
func ComputeBounds(points []r3.Vector) (Bounds, bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	b := EmptyBounds()
	for _, p := range points {
		b.Extend(p)
	}
	return b, true
}

// Extend grows the box to contain p.
func (b *Bounds) Extend(p r3.Vector) {
	b.Min.X = math.Min(b.Min.X, p.X)
	b.Min.Y = math.Min(b.Min.Y, p.Y)
	b.Min.Z = math.Min(b.Min.Z, p.Z)
	b.Max.X = math.Max(b.Max.X, p.X)
	b.Max.Y = math.Max(b.Max.Y, p.Y)
	b.Max.Z = math.Max(b.Max.Z, p.Z)
}

// IsEmpty reports whether the box contains no point.
func (b Bounds) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Extent returns the per-axis size of the box.
func (b Bounds) Extent() r3.Vector {
	return b.Max.Sub(b.Min)
}

// AverageExtent returns the mean of the three axis extents.
func (b Bounds) AverageExtent() float64 {
	e := b.Extent()
	return (e.X + e.Y + e.Z) / 3
}

// Diagonal returns the length of the box diagonal.
func (b Bounds) Diagonal() float64 {
	return b.Extent().Norm()
}

// Center returns the midpoint of the box.
func (b Bounds) Center() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

// IsFinite reports whether every coordinate of p is neither NaN nor
// infinite.
func IsFinite(p r3.Vector) bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0) &&
		!math.IsNaN(p.Z) && !math.IsInf(p.Z, 0)
}

// Range returns the largest distance of any point from the origin, or 1 for
// an empty cloud. Viewers use it to size the scene.
func Range(points []r3.Vector) float64 {
	if len(points) == 0 {
		return 1.0
	}
	var r2 float64
	for _, p := range points {
		r2 = math.Max(r2, p.Norm2())
	}
	return math.Sqrt(r2)
}

// Center translates points in place so their bounding-box centre sits at
// the origin, and returns the offset that was subtracted.
func Center(points []r3.Vector) r3.Vector {
	b, ok := ComputeBounds(points)
	if !ok {
		return r3.Vector{}
	}
	c := b.Center()
	for i := range points {
		points[i] = points[i].Sub(c)
	}
	return c
}
