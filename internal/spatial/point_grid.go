package spatial

import (
	"github.com/golang/geo/r3"
)

// Locator extracts the position of a stored element. It must be pure: the
// same element always maps to the same position.
type Locator[T any] func(elem T) r3.Vector

// Neighbor is one entry of a k-nearest-neighbour result.
type Neighbor[T any] struct {
	Elem  T
	Dist2 float64 // squared distance to the query point
}

// SparsePointGrid is a SparseGrid that knows where its elements are, which
// lets it insert them and answer distance queries.
type SparsePointGrid[T any] struct {
	*SparseGrid[T]
	locate Locator[T]
}

// NewSparsePointGrid creates an empty grid using locate to position
// elements.
func NewSparsePointGrid[T any](cellSize float64, locate Locator[T], opts ...Option) (*SparsePointGrid[T], error) {
	g, err := NewSparseGrid[T](cellSize, opts...)
	if err != nil {
		return nil, err
	}
	return &SparsePointGrid[T]{SparseGrid: g, locate: locate}, nil
}

// NewPointGrid creates a grid that stores points directly.
func NewPointGrid(cellSize float64, opts ...Option) (*SparsePointGrid[r3.Vector], error) {
	return NewSparsePointGrid(cellSize, func(p r3.Vector) r3.Vector { return p }, opts...)
}

// Insert adds elem to the cell containing its location. Inserting the same
// element twice stores it twice.
func (g *SparsePointGrid[T]) Insert(elem T) {
	g.add(g.ToGridPoint(g.locate(elem)), elem)
}

// Locate returns the position of elem.
func (g *SparsePointGrid[T]) Locate(elem T) r3.Vector {
	return g.locate(elem)
}

// GetNearest finds the element closest to query among those within radius
// that satisfy precondition (nil accepts everything). Ties keep the element
// visited first. The bool is false when nothing qualifies.
func (g *SparsePointGrid[T]) GetNearest(query r3.Vector, radius float64, precondition func(T) bool) (T, bool) {
	var (
		nearest T
		found   bool
	)
	best := radius * radius
	g.ProcessNearby(query, radius, func(elem T) bool {
		if precondition != nil && !precondition(elem) {
			return true
		}
		d2 := g.locate(elem).Sub(query).Norm2()
		if (!found && d2 <= best) || d2 < best {
			nearest = elem
			best = d2
			found = true
		}
		return true
	})
	return nearest, found
}

// GetKnn returns up to k elements within radius of query, nearest first.
//
// The result is shorter than k when the radius holds fewer candidates; the
// search radius is never widened here. Equal distances keep traversal order.
// The working list is an insertion-sorted slice capped at k, which beats a
// heap for the small k used in normal estimation.
func (g *SparsePointGrid[T]) GetKnn(query r3.Vector, k int, radius float64) []Neighbor[T] {
	if k <= 0 {
		return nil
	}
	r2 := radius * radius
	queue := make([]Neighbor[T], 0, k)

	g.ProcessNearby(query, radius, func(elem T) bool {
		d2 := g.locate(elem).Sub(query).Norm2()
		if d2 > r2 {
			return true
		}
		// First slot holding a strictly larger distance.
		pos := len(queue)
		for i := range queue {
			if queue[i].Dist2 > d2 {
				pos = i
				break
			}
		}
		if pos == len(queue) {
			if len(queue) < k {
				queue = append(queue, Neighbor[T]{Elem: elem, Dist2: d2})
			}
			return true
		}
		if len(queue) < k {
			queue = append(queue, Neighbor[T]{})
		}
		copy(queue[pos+1:], queue[pos:len(queue)-1])
		queue[pos] = Neighbor[T]{Elem: elem, Dist2: d2}
		return true
	})
	return queue
}
