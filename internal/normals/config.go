package normals

import (
	"fmt"
	"runtime"

	"github.com/banshee-data/pointnormals/internal/config"
)

// DegenerateCellSize is the grid cell size used when every point of the
// cloud coincides and the bounds give no usable scale.
const DegenerateCellSize = 1.0

// Fallback selects what happens to a point's normal slot when no normal
// can be fitted.
type Fallback int

const (
	// FallbackZero writes the zero vector.
	FallbackZero Fallback = iota
	// FallbackKeep leaves whatever the slot already held.
	FallbackKeep
)

func (f Fallback) String() string {
	switch f {
	case FallbackZero:
		return config.FallbackZero
	case FallbackKeep:
		return config.FallbackKeep
	default:
		return fmt.Sprintf("Fallback(%d)", int(f))
	}
}

// MarshalText encodes the fallback by name, as in the tuning file.
func (f Fallback) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText decodes a fallback name.
func (f *Fallback) UnmarshalText(b []byte) error {
	v, err := ParseFallback(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// ParseFallback converts a tuning-file fallback name.
func ParseFallback(s string) (Fallback, error) {
	switch s {
	case config.FallbackZero, "":
		return FallbackZero, nil
	case config.FallbackKeep:
		return FallbackKeep, nil
	}
	return 0, fmt.Errorf("%w: unknown fallback %q", ErrInvalidConfig, s)
}

// Config holds the estimator parameters.
type Config struct {
	CellsPerDimension  int      `json:"cells_per_dimension"`  // grid cells along the average bbox extent (default: 20)
	K                  int      `json:"k_neighbors"`          // neighbours per fit (default: 20)
	RadiusScale        float64  `json:"radius_scale"`         // query radius as a multiple of the cell size (default: 1.0)
	MaxRadiusDoublings int      `json:"max_radius_doublings"` // radius doublings while KNN is short of K; 0 keeps it fixed (default: 4)
	MinNeighbors       int      `json:"min_neighbors"`        // fewest neighbours accepted for a fit, at least 2 (default: 3)
	Workers            int      `json:"workers"`              // concurrent point workers (default: GOMAXPROCS)
	Fallback           Fallback `json:"fallback"`             // policy for points without a fit (default: FallbackZero)
}

// DefaultConfig returns the built-in estimator defaults. They match
// config/normals.defaults.json.
func DefaultConfig() Config {
	return Config{
		CellsPerDimension:  20,
		K:                  20,
		RadiusScale:        1.0,
		MaxRadiusDoublings: 4,
		MinNeighbors:       3,
		Workers:            runtime.GOMAXPROCS(0),
		Fallback:           FallbackZero,
	}
}

// ConfigFromTuning builds a Config from a loaded TuningConfig. A workers
// value of 0 means GOMAXPROCS.
func ConfigFromTuning(cfg *config.TuningConfig) (Config, error) {
	fb, err := ParseFallback(cfg.GetFallback())
	if err != nil {
		return Config{}, err
	}
	workers := cfg.GetWorkers()
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	c := Config{
		CellsPerDimension:  cfg.GetCellsPerDimension(),
		K:                  cfg.GetKNeighbors(),
		RadiusScale:        cfg.GetRadiusScale(),
		MaxRadiusDoublings: cfg.GetMaxRadiusDoublings(),
		MinNeighbors:       cfg.GetMinNeighbors(),
		Workers:            workers,
		Fallback:           fb,
	}
	return c, c.Validate()
}

// Validate checks if the configuration is valid.
// Every error wraps ErrInvalidConfig.
func (c Config) Validate() error {
	if c.CellsPerDimension <= 0 {
		return fmt.Errorf("%w: CellsPerDimension must be positive, got %d", ErrInvalidConfig, c.CellsPerDimension)
	}
	if c.K < 2 {
		return fmt.Errorf("%w: K must be at least 2, got %d", ErrInvalidConfig, c.K)
	}
	if !(c.RadiusScale > 0) {
		return fmt.Errorf("%w: RadiusScale must be positive, got %f", ErrInvalidConfig, c.RadiusScale)
	}
	if c.MaxRadiusDoublings < 0 || c.MaxRadiusDoublings > 32 {
		return fmt.Errorf("%w: MaxRadiusDoublings must be in [0, 32], got %d", ErrInvalidConfig, c.MaxRadiusDoublings)
	}
	if c.MinNeighbors < 2 || c.MinNeighbors > c.K {
		return fmt.Errorf("%w: MinNeighbors must be in [2, K=%d], got %d", ErrInvalidConfig, c.K, c.MinNeighbors)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: Workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.Fallback != FallbackZero && c.Fallback != FallbackKeep {
		return fmt.Errorf("%w: unknown Fallback %d", ErrInvalidConfig, int(c.Fallback))
	}
	return nil
}
