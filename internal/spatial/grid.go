package spatial

import (
	"errors"
	"fmt"
	"iter"
	"math"

	"github.com/golang/geo/r3"
)

var (
	// ErrInvalidCellSize is returned when a grid is constructed with a cell
	// size that is not a finite positive number.
	ErrInvalidCellSize = errors.New("cell size must be finite and > 0")

	// ErrInvalidLoadFactor is returned when WithMaxLoadFactor is given a
	// non-positive value.
	ErrInvalidLoadFactor = errors.New("max load factor must be > 0")
)

// GridPoint is the integer coordinate of a grid cell.
type GridPoint struct {
	X, Y, Z int64
}

// Option configures a SparseGrid at construction time.
type Option func(*gridOptions)

type gridOptions struct {
	reserve       int
	maxLoadFactor float64
}

// WithReserve hints how many elements the grid is expected to hold.
func WithReserve(n int) Option {
	return func(o *gridOptions) { o.reserve = n }
}

// WithMaxLoadFactor sets the expected average number of elements per cell.
// Together with WithReserve it sizes the initial cell map.
func WithMaxLoadFactor(f float64) Option {
	return func(o *gridOptions) { o.maxLoadFactor = f }
}

// SparseGrid maps cell coordinates to the elements stored in them. It knows
// nothing about element positions; SparsePointGrid adds that.
type SparseGrid[T any] struct {
	cellSize float64
	cells    map[GridPoint][]T
	count    int

	// Occupied cell bounds, valid when count > 0. Used to clamp scans.
	minCell GridPoint
	maxCell GridPoint
}

// NewSparseGrid creates an empty grid with the given cell size. Typical
// values are 0.5x to 2x the expected query radius.
func NewSparseGrid[T any](cellSize float64, opts ...Option) (*SparseGrid[T], error) {
	if !(cellSize > 0) || math.IsInf(cellSize, 1) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidCellSize, cellSize)
	}

	o := gridOptions{maxLoadFactor: 1.0}
	for _, opt := range opts {
		opt(&o)
	}
	if !(o.maxLoadFactor > 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidLoadFactor, o.maxLoadFactor)
	}

	hint := 0
	if o.reserve > 0 {
		hint = int(math.Ceil(float64(o.reserve) / o.maxLoadFactor))
	}

	return &SparseGrid[T]{
		cellSize: cellSize,
		cells:    make(map[GridPoint][]T, hint),
	}, nil
}

// CellSize returns the edge length of a grid cell.
func (g *SparseGrid[T]) CellSize() float64 { return g.cellSize }

// Len returns the number of stored elements, duplicates included.
func (g *SparseGrid[T]) Len() int { return g.count }

// Cells returns the number of non-empty cells.
func (g *SparseGrid[T]) Cells() int { return len(g.cells) }

// ToGridPoint maps a world position to its cell.
//
// The mapping truncates toward zero rather than flooring, so the cells with
// a zero coordinate are twice as wide as the others. Queries stay correct;
// only the work per query near the axes changes.
func (g *SparseGrid[T]) ToGridPoint(p r3.Vector) GridPoint {
	return GridPoint{
		X: g.toGridCoord(p.X),
		Y: g.toGridCoord(p.Y),
		Z: g.toGridCoord(p.Z),
	}
}

func (g *SparseGrid[T]) toGridCoord(c float64) int64 {
	return saturate(c / g.cellSize)
}

// cellCoordLimit is 2^63, the first float64 past the int64 range.
const cellCoordLimit = float64(1 << 63)

// saturate truncates q to an int64, clamping out-of-range quotients to the
// extreme cells. NaN maps to cell 0.
func saturate(q float64) int64 {
	switch {
	case math.IsNaN(q):
		return 0
	case q >= cellCoordLimit:
		return math.MaxInt64
	case q <= -cellCoordLimit:
		return math.MinInt64
	}
	return int64(q)
}

// ToLowerCorner returns the corner of a cell closest to the origin.
func (g *SparseGrid[T]) ToLowerCorner(gp GridPoint) r3.Vector {
	return r3.Vector{
		X: float64(gp.X) * g.cellSize,
		Y: float64(gp.Y) * g.cellSize,
		Z: float64(gp.Z) * g.cellSize,
	}
}

// add stores elem in the given cell.
func (g *SparseGrid[T]) add(gp GridPoint, elem T) {
	if g.count == 0 {
		g.minCell, g.maxCell = gp, gp
	} else {
		g.minCell.X = min(g.minCell.X, gp.X)
		g.minCell.Y = min(g.minCell.Y, gp.Y)
		g.minCell.Z = min(g.minCell.Z, gp.Z)
		g.maxCell.X = max(g.maxCell.X, gp.X)
		g.maxCell.Y = max(g.maxCell.Y, gp.Y)
		g.maxCell.Z = max(g.maxCell.Z, gp.Z)
	}
	g.cells[gp] = append(g.cells[gp], elem)
	g.count++
}

// processFromCell visits every element of one cell. It reports whether the
// traversal should continue.
func (g *SparseGrid[T]) processFromCell(gp GridPoint, visit func(T) bool) bool {
	for _, elem := range g.cells[gp] {
		if !visit(elem) {
			return false
		}
	}
	return true
}

// ProcessNearby calls visit for every element stored in a cell that
// intersects the axis-aligned cube of half-width radius around query.
//
// Every element within radius of query is visited. Elements up to
// radius+cellSize away per axis may also be visited, so callers needing an
// exact cutoff must filter by distance. Cells are walked in z, y, x order;
// elements inside a cell in insertion order. Returning false from visit
// stops the traversal.
func (g *SparseGrid[T]) ProcessNearby(query r3.Vector, radius float64, visit func(T) bool) {
	if g.count == 0 || radius < 0 || math.IsNaN(radius) {
		return
	}
	if math.IsNaN(query.X) || math.IsNaN(query.Y) || math.IsNaN(query.Z) {
		return
	}

	// Cells outside the occupied range are empty; clamping to it does not
	// change which elements are visited or their order.
	var lo, hi GridPoint
	lo.X, hi.X = g.cellRange(query.X, radius, g.minCell.X, g.maxCell.X)
	lo.Y, hi.Y = g.cellRange(query.Y, radius, g.minCell.Y, g.maxCell.Y)
	lo.Z, hi.Z = g.cellRange(query.Z, radius, g.minCell.Z, g.maxCell.Z)

	// The explicit breaks keep the loops from wrapping when hi is MaxInt64.
	for z := lo.Z; z <= hi.Z; z++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for x := lo.X; x <= hi.X; x++ {
				if !g.processFromCell(GridPoint{X: x, Y: y, Z: z}, visit) {
					return
				}
				if x == hi.X {
					break
				}
			}
			if y == hi.Y {
				break
			}
		}
		if z == hi.Z {
			break
		}
	}
}

// cellRange returns the inclusive cell range covering [c-radius, c+radius]
// on one axis, clamped to [minC, maxC]. Both ends go through the same
// saturating truncation as ToGridPoint, so elements filed in the extreme
// cells stay reachable. An empty range has lo > hi.
func (g *SparseGrid[T]) cellRange(c, radius float64, minC, maxC int64) (lo, hi int64) {
	loF := (c - radius) / g.cellSize
	hiF := (c + radius) / g.cellSize

	lo, hi = minC, maxC
	if !math.IsNaN(loF) {
		lo = max(saturate(loF), minC)
	}
	if !math.IsNaN(hiF) {
		hi = min(saturate(hiF), maxC)
	}
	return lo, hi
}

// Nearby returns an iterator over the same elements ProcessNearby visits,
// in the same order. Breaking out of the range loop stops the traversal.
func (g *SparseGrid[T]) Nearby(query r3.Vector, radius float64) iter.Seq[T] {
	return func(yield func(T) bool) {
		g.ProcessNearby(query, radius, yield)
	}
}

// GetNearby collects every element ProcessNearby would visit, in traversal
// order. The result may include elements beyond radius.
func (g *SparseGrid[T]) GetNearby(query r3.Vector, radius float64) []T {
	var ret []T
	g.ProcessNearby(query, radius, func(elem T) bool {
		ret = append(ret, elem)
		return true
	})
	return ret
}
