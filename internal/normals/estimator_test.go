package normals

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pointnormals/internal/config"
	"github.com/banshee-data/pointnormals/internal/testutil"
)

func mustEstimator(t *testing.T, cfg Config) *Estimator {
	t.Helper()
	e, err := NewEstimator(cfg)
	require.NoError(t, err)
	return e
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"fixed radius", func(c *Config) { c.MaxRadiusDoublings = 0 }, true},
		{"zero cells", func(c *Config) { c.CellsPerDimension = 0 }, false},
		{"k of one", func(c *Config) { c.K = 1 }, false},
		{"zero radius scale", func(c *Config) { c.RadiusScale = 0 }, false},
		{"negative doublings", func(c *Config) { c.MaxRadiusDoublings = -1 }, false},
		{"min neighbors below two", func(c *Config) { c.MinNeighbors = 1 }, false},
		{"min neighbors above k", func(c *Config) { c.MinNeighbors = c.K + 1 }, false},
		{"no workers", func(c *Config) { c.Workers = 0 }, false},
		{"unknown fallback", func(c *Config) { c.Fallback = Fallback(7) }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidConfig)
			_, err = NewEstimator(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestConfigFromTuning(t *testing.T) {
	got, err := ConfigFromTuning(config.MustLoadDefaultConfig())
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultConfig(), got); diff != "" {
		t.Errorf("defaults file differs from DefaultConfig (-want +got):\n%s", diff)
	}

	tuning, err := config.ParseTuningConfig([]byte(`{"k_neighbors": 12, "min_neighbors": 5, "workers": 3, "fallback": "keep"}`))
	require.NoError(t, err)
	got, err = ConfigFromTuning(tuning)
	require.NoError(t, err)
	assert.Equal(t, 12, got.K)
	assert.Equal(t, 5, got.MinNeighbors)
	assert.Equal(t, 3, got.Workers)
	assert.Equal(t, FallbackKeep, got.Fallback)

	// Individually valid fields can still conflict.
	tuning, err = config.ParseTuningConfig([]byte(`{"k_neighbors": 4, "min_neighbors": 6}`))
	require.NoError(t, err)
	_, err = ConfigFromTuning(tuning)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseFallback(t *testing.T) {
	fb, err := ParseFallback("keep")
	require.NoError(t, err)
	assert.Equal(t, FallbackKeep, fb)
	assert.Equal(t, "keep", fb.String())

	fb, err = ParseFallback("")
	require.NoError(t, err)
	assert.Equal(t, FallbackZero, fb)

	_, err = ParseFallback("previous")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigJSON(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fallback = FallbackKeep
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"fallback":"keep"`)
	assert.Contains(t, string(data), `"k_neighbors":20`)

	var back Config
	require.NoError(t, json.Unmarshal(data, &back))
	if diff := cmp.Diff(cfg, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	assert.Error(t, json.Unmarshal([]byte(`{"fallback":"previous"}`), &back))
}

func TestEstimate_PlanarPatch(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pts := testutil.PlanarCloud(rng, 100, 10, 1e-4)

	cfg := DefaultConfig()
	cfg.CellsPerDimension = 20
	cfg.K = 20
	e := mustEstimator(t, cfg)

	normals, res, err := e.EstimateNormals(context.Background(), pts)
	require.NoError(t, err)
	require.Len(t, normals, len(pts))

	assert.Equal(t, len(pts), res.Counts.OK)
	assert.False(t, res.Degenerate)
	assert.Greater(t, res.Expansions, 0, "the base radius is too small for this density")

	for i, n := range normals {
		testutil.AssertLineAngle(t, n, r3.Vector{Z: 1}, 5)
		if n.Y < 0 {
			t.Errorf("normal %d = %v has negative y after sign resolution", i, n)
		}
		assert.Equal(t, StatusOK, res.Statuses[i])
		assert.GreaterOrEqual(t, res.NeighborCounts[i], int32(cfg.MinNeighbors))
		assert.LessOrEqual(t, res.NeighborCounts[i], int32(cfg.K))
	}
}

func TestEstimate_FixedRadiusUnderfills(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pts := testutil.PlanarCloud(rng, 100, 10, 1e-4)

	cfg := DefaultConfig()
	cfg.MaxRadiusDoublings = 0
	e := mustEstimator(t, cfg)

	normals, res, err := e.EstimateNormals(context.Background(), pts)
	require.NoError(t, err)
	assert.Zero(t, res.Expansions)
	assert.Greater(t, res.Counts.Insufficient, 0)
	for i, st := range res.Statuses {
		assert.LessOrEqual(t, res.NeighborCounts[i], int32(cfg.K))
		if st == StatusInsufficient {
			assert.Equal(t, r3.Vector{}, normals[i])
		}
	}
	testutil.AssertFinite(t, normals)
}

func TestEstimate_DegenerateCloud(t *testing.T) {
	pts := testutil.RepeatedPoint(50, r3.Vector{X: 1.5, Y: -2, Z: 7})

	t.Run("zero fallback", func(t *testing.T) {
		e := mustEstimator(t, DefaultConfig())
		normals := make([]r3.Vector, len(pts))
		for i := range normals {
			normals[i] = r3.Vector{X: 9}
		}
		res, err := e.Estimate(context.Background(), pts, normals)
		require.NoError(t, err)

		assert.True(t, res.Degenerate)
		assert.Equal(t, DegenerateCellSize, res.CellSize)
		assert.Equal(t, len(pts), res.Counts.Degenerate)
		testutil.AssertFinite(t, normals)
		for i, n := range normals {
			assert.Equal(t, r3.Vector{}, n, "normal %d", i)
			assert.Equal(t, StatusDegenerate, res.Statuses[i])
		}
	})

	t.Run("keep fallback", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Fallback = FallbackKeep
		e := mustEstimator(t, cfg)
		normals := make([]r3.Vector, len(pts))
		for i := range normals {
			normals[i] = r3.Vector{Y: float64(i)}
		}
		_, err := e.Estimate(context.Background(), pts, normals)
		require.NoError(t, err)
		for i, n := range normals {
			assert.Equal(t, r3.Vector{Y: float64(i)}, n)
		}
	})
}

func TestEstimate_SinglePoint(t *testing.T) {
	e := mustEstimator(t, DefaultConfig())
	normals, res, err := e.EstimateNormals(context.Background(), []r3.Vector{{X: 1, Y: 2, Z: 3}})
	require.NoError(t, err)
	assert.True(t, res.Degenerate)
	assert.Equal(t, StatusInsufficient, res.Statuses[0])
	assert.EqualValues(t, 1, res.NeighborCounts[0])
	assert.Equal(t, r3.Vector{}, normals[0])
}

func TestEstimate_IsolatedPointDoesNotAbortPass(t *testing.T) {
	var pts []r3.Vector
	for x := 0; x < 6; x++ {
		for y := 0; y < 5; y++ {
			pts = append(pts, r3.Vector{X: float64(x) * 0.2, Y: float64(y) * 0.2})
		}
	}
	isolated := len(pts)
	pts = append(pts, r3.Vector{X: 100, Y: 100})

	cfg := DefaultConfig()
	cfg.K = 8
	cfg.MaxRadiusDoublings = 0
	cfg.Fallback = FallbackKeep
	e := mustEstimator(t, cfg)

	normals := make([]r3.Vector, len(pts))
	normals[isolated] = r3.Vector{X: 1}
	res, err := e.Estimate(context.Background(), pts, normals)
	require.NoError(t, err)

	assert.Equal(t, StatusInsufficient, res.Statuses[isolated])
	assert.Equal(t, r3.Vector{X: 1}, normals[isolated])
	assert.Equal(t, isolated, res.Counts.OK)
	for i := 0; i < isolated; i++ {
		testutil.AssertLineAngle(t, normals[i], r3.Vector{Z: 1}, 1e-6)
	}
}

func TestEstimate_Sphere(t *testing.T) {
	center := r3.Vector{X: -3, Y: 1, Z: 2}
	pts := testutil.SphereCloud(2000, center, 1)
	e := mustEstimator(t, DefaultConfig())

	normals, res, err := e.EstimateNormals(context.Background(), pts)
	require.NoError(t, err)
	assert.Equal(t, len(pts), res.Counts.OK)
	for i, n := range normals {
		testutil.AssertLineAngle(t, n, pts[i].Sub(center), 10)
	}
}

func TestEstimate_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pts := testutil.SphereCloud(1500, r3.Vector{}, 2)
	pts = append(pts, testutil.PlanarCloud(rng, 1500, 3, 0.05)...)

	run := func(workers int) ([]r3.Vector, *Result) {
		cfg := DefaultConfig()
		cfg.Workers = workers
		normals, res, err := mustEstimator(t, cfg).EstimateNormals(context.Background(), pts)
		require.NoError(t, err)
		return normals, res
	}

	serial, serialRes := run(1)
	again, _ := run(1)
	parallel, parallelRes := run(8)

	if diff := cmp.Diff(serial, again); diff != "" {
		t.Errorf("repeated serial runs differ (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(serial, parallel); diff != "" {
		t.Errorf("parallel run differs from serial (-serial +parallel):\n%s", diff)
	}
	assert.Equal(t, serialRes.Counts, parallelRes.Counts)
	assert.Equal(t, serialRes.Statuses, parallelRes.Statuses)
	assert.Equal(t, serialRes.NeighborCounts, parallelRes.NeighborCounts)
	assert.Equal(t, serialRes.Expansions, parallelRes.Expansions)
	assert.Equal(t, serialRes.Flipped, parallelRes.Flipped)
}

func TestEstimate_Errors(t *testing.T) {
	e := mustEstimator(t, DefaultConfig())

	_, err := e.Estimate(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = e.Estimate(context.Background(), make([]r3.Vector, 4), make([]r3.Vector, 3))
	assert.ErrorIs(t, err, ErrLengthMismatch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pts := testutil.SphereCloud(100, r3.Vector{}, 1)
	_, err = e.Estimate(ctx, pts, make([]r3.Vector, len(pts)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestEstimate_NonFiniteInput(t *testing.T) {
	e := mustEstimator(t, DefaultConfig())

	tests := []struct {
		name    string
		bad     r3.Vector
		wantErr error
	}{
		{"nan", r3.Vector{X: math.NaN(), Y: 0.5, Z: 0.5}, ErrNonFinitePoint},
		{"inf", r3.Vector{X: 0.5, Y: math.Inf(1), Z: 0.5}, ErrNonFinitePoint},
		{"negative inf", r3.Vector{X: 0.5, Y: 0.5, Z: math.Inf(-1)}, ErrNonFinitePoint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pts := testutil.SphereCloud(50, r3.Vector{}, 1)
			pts[17] = tt.bad
			normals := make([]r3.Vector, len(pts))
			res, err := e.Estimate(context.Background(), pts, normals)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)
			assert.Contains(t, err.Error(), "index 17")
			// Nothing was written.
			for i, n := range normals {
				if n != (r3.Vector{}) {
					t.Fatalf("normal %d = %v, want untouched", i, n)
				}
			}
		})
	}
}

func TestEstimate_ExtentOverflow(t *testing.T) {
	e := mustEstimator(t, DefaultConfig())
	pts := []r3.Vector{
		{X: -1e308, Y: -1e308, Z: -1e308},
		{X: 1e308, Y: 1e308, Z: 1e308},
		{X: 0, Y: 1, Z: 2},
	}
	_, err := e.Estimate(context.Background(), pts, make([]r3.Vector, len(pts)))
	require.ErrorIs(t, err, ErrExtentOverflow)
}

func TestPointStatusString(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "insufficient", StatusInsufficient.String())
	assert.Equal(t, "degenerate", StatusDegenerate.String())
	assert.Equal(t, "PointStatus(9)", PointStatus(9).String())
}
