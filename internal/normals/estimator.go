package normals

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r3"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/pointnormals/internal/geom"
	"github.com/banshee-data/pointnormals/internal/monitoring"
	"github.com/banshee-data/pointnormals/internal/spatial"
)

// chunkSize is the number of points handed to a worker at a time. The
// context is checked between chunks.
const chunkSize = 512

// PointStatus records the outcome of the fit for one point.
type PointStatus uint8

const (
	StatusOK           PointStatus = iota // normal fitted
	StatusInsufficient                    // fewer than MinNeighbors neighbours
	StatusDegenerate                      // neighbourhood spans less than a plane
)

func (s PointStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInsufficient:
		return "insufficient"
	case StatusDegenerate:
		return "degenerate"
	default:
		return fmt.Sprintf("PointStatus(%d)", uint8(s))
	}
}

// Counts tallies point statuses over a pass.
type Counts struct {
	OK           int `json:"ok"`
	Insufficient int `json:"insufficient"`
	Degenerate   int `json:"degenerate"`
}

// Result describes one estimation pass.
type Result struct {
	Bounds     geom.Bounds
	CellSize   float64 // grid cell size used
	Radius     float64 // base KNN query radius before any doubling
	Degenerate bool    // all points coincided; DegenerateCellSize was used

	Counts         Counts
	Statuses       []PointStatus // per point
	NeighborCounts []int32       // per point, neighbours used for the fit
	Expansions     int           // total radius doublings over all points
	Flipped        int           // normals negated by the sign rule
	Duration       time.Duration
}

// Estimator runs normal estimation passes with a fixed configuration. It
// holds no per-pass state and may be shared between goroutines.
type Estimator struct {
	cfg  Config
	logf func(format string, v ...interface{})
}

// NewEstimator validates cfg and returns an Estimator.
func NewEstimator(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{cfg: cfg, logf: monitoring.Prefixed("normals")}, nil
}

// Config returns the estimator configuration.
func (e *Estimator) Config() Config { return e.cfg }

// EstimateNormals allocates the normal slice and runs a pass.
func (e *Estimator) EstimateNormals(ctx context.Context, points []r3.Vector) ([]r3.Vector, *Result, error) {
	normals := make([]r3.Vector, len(points))
	res, err := e.Estimate(ctx, points, normals)
	if err != nil {
		return nil, nil, err
	}
	return normals, res, nil
}

// Estimate writes a normal for every point into the matching slot of
// normals. Points whose neighbourhood cannot be fitted get the configured
// fallback and a non-OK status; they never fail the pass.
// A NaN or infinite coordinate does fail it, with ErrNonFinitePoint, before
// any normal is written.
//
// The output is deterministic for a given input and Config, independent of
// the number of workers.
func (e *Estimator) Estimate(ctx context.Context, points, normals []r3.Vector) (*Result, error) {
	start := time.Now()
	n := len(points)
	if n == 0 {
		return nil, ErrEmptyInput
	}
	if len(normals) != n {
		return nil, fmt.Errorf("%w: %d points, %d normals", ErrLengthMismatch, n, len(normals))
	}
	if n > math.MaxInt32 {
		return nil, fmt.Errorf("normals: %d points exceeds grid index capacity", n)
	}

	for i, p := range points {
		if !geom.IsFinite(p) {
			return nil, fmt.Errorf("%w: index %d is %v", ErrNonFinitePoint, i, p)
		}
	}

	bounds, ok := geom.ComputeBounds(points)
	if !ok || bounds.IsEmpty() {
		return nil, ErrEmptyInput
	}
	res := &Result{
		Bounds:         bounds,
		Statuses:       make([]PointStatus, n),
		NeighborCounts: make([]int32, n),
	}

	// Finite points can still span more than a float64 holds.
	avgExtent := bounds.AverageExtent()
	if math.IsInf(avgExtent, 0) || math.IsInf(bounds.Diagonal(), 0) {
		return nil, fmt.Errorf("%w: bounds %v to %v", ErrExtentOverflow, bounds.Min, bounds.Max)
	}

	res.CellSize = avgExtent / float64(e.cfg.CellsPerDimension)
	if res.CellSize == 0 {
		e.logf("degenerate cloud of %d points (average extent %g), using cell size %g",
			n, avgExtent, DegenerateCellSize)
		res.CellSize = DegenerateCellSize
		res.Degenerate = true
	}

	grid, err := spatial.NewSparsePointGrid[int32](res.CellSize,
		func(i int32) r3.Vector { return points[i] },
		spatial.WithReserve(n))
	if err != nil {
		return nil, fmt.Errorf("build grid: %w", err)
	}
	for i := range points {
		grid.Insert(int32(i))
	}

	res.Radius = res.CellSize * e.cfg.RadiusScale
	maxRadius := math.Max(bounds.Diagonal(), res.Radius)

	nChunks := (n + chunkSize - 1) / chunkSize
	tallies := make([]chunkTally, nChunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for c := 0; c < nChunks; c++ {
		if gctx.Err() != nil {
			break
		}
		lo := c * chunkSize
		hi := min(lo+chunkSize, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			w := worker{
				cfg:       e.cfg,
				grid:      grid,
				points:    points,
				radius:    res.Radius,
				maxRadius: maxRadius,
			}
			tallies[c] = w.run(lo, hi, normals, res.Statuses, res.NeighborCounts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, t := range tallies {
		res.Counts.OK += t.counts.OK
		res.Counts.Insufficient += t.counts.Insufficient
		res.Counts.Degenerate += t.counts.Degenerate
		res.Expansions += t.expansions
		res.Flipped += t.flipped
	}
	res.Duration = time.Since(start)

	e.logf("estimated %d normals in %v: cell=%.4g radius=%.4g ok=%d insufficient=%d degenerate=%d expansions=%d",
		n, res.Duration, res.CellSize, res.Radius,
		res.Counts.OK, res.Counts.Insufficient, res.Counts.Degenerate, res.Expansions)
	return res, nil
}

type chunkTally struct {
	counts     Counts
	expansions int
	flipped    int
}

// worker processes a contiguous range of points. Each worker owns its
// scratch buffers; the grid and points are only read.
type worker struct {
	cfg       Config
	grid      *spatial.SparsePointGrid[int32]
	points    []r3.Vector
	radius    float64
	maxRadius float64

	fit  fitter
	nbrs []r3.Vector
}

func (w *worker) run(lo, hi int, normals []r3.Vector, statuses []PointStatus, counts []int32) chunkTally {
	var t chunkTally
	for i := lo; i < hi; i++ {
		knn, doublings := w.query(w.points[i])
		t.expansions += doublings
		counts[i] = int32(len(knn))

		if len(knn) < w.cfg.MinNeighbors {
			statuses[i] = StatusInsufficient
			t.counts.Insufficient++
			w.fallback(normals, i)
			continue
		}

		w.nbrs = w.nbrs[:0]
		for _, nb := range knn {
			w.nbrs = append(w.nbrs, w.points[nb.Elem])
		}
		f, err := w.fit.fit(w.nbrs)
		if err != nil {
			statuses[i] = StatusDegenerate
			t.counts.Degenerate++
			w.fallback(normals, i)
			continue
		}

		if f.Normal.Y < 0 {
			t.flipped++
		}
		normals[i] = ResolveSign(f.Normal)
		statuses[i] = StatusOK
		t.counts.OK++
	}
	return t
}

// query returns the K nearest neighbours of p, doubling the radius while
// the result is short, up to MaxRadiusDoublings times and never beyond the
// bounding-box diagonal.
func (w *worker) query(p r3.Vector) ([]spatial.Neighbor[int32], int) {
	r := w.radius
	knn := w.grid.GetKnn(p, w.cfg.K, r)
	doublings := 0
	for len(knn) < w.cfg.K && doublings < w.cfg.MaxRadiusDoublings && r < w.maxRadius {
		r = math.Min(r*2, w.maxRadius)
		knn = w.grid.GetKnn(p, w.cfg.K, r)
		doublings++
	}
	return knn, doublings
}

func (w *worker) fallback(normals []r3.Vector, i int) {
	if w.cfg.Fallback == FallbackZero {
		normals[i] = r3.Vector{}
	}
}
