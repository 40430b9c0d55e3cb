package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/normals.defaults.json"

// Fallback policy names accepted in the "fallback" field.
const (
	FallbackZero = "zero"
	FallbackKeep = "keep"
)

// TuningConfig is the root configuration for normal estimation. The same JSON
// is accepted by the CLI (-config) and by the HTTP API.
type TuningConfig struct {
	// Grid sizing
	CellsPerDimension *int `json:"cells_per_dimension,omitempty"`

	// Neighbourhood query
	KNeighbors         *int     `json:"k_neighbors,omitempty"`
	RadiusScale        *float64 `json:"radius_scale,omitempty"`
	MaxRadiusDoublings *int     `json:"max_radius_doublings,omitempty"`
	MinNeighbors       *int     `json:"min_neighbors,omitempty"`

	// Execution
	Workers  *int    `json:"workers,omitempty"` // 0 means GOMAXPROCS
	Fallback *string `json:"fallback,omitempty"`

	// Reporting
	HistogramBins *int `json:"histogram_bins,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated from
// the built-in defaults. It matches config/normals.defaults.json.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		CellsPerDimension:  ptrInt(20),
		KNeighbors:         ptrInt(20),
		RadiusScale:        ptrFloat64(1.0),
		MaxRadiusDoublings: ptrInt(4),
		MinNeighbors:       ptrInt(3),
		Workers:            ptrInt(0),
		Fallback:           ptrString(FallbackZero),
		HistogramBins:      ptrInt(36),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to defaults through the Get*
// accessors, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseTuningConfig(data)
}

// ParseTuningConfig decodes and validates a JSON tuning document.
func ParseTuningConfig(data []byte) (*TuningConfig, error) {
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,          // from cmd/normals/
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/store/sqlite/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.CellsPerDimension != nil && *c.CellsPerDimension <= 0 {
		return fmt.Errorf("cells_per_dimension must be positive, got %d", *c.CellsPerDimension)
	}
	if c.KNeighbors != nil && *c.KNeighbors < 2 {
		return fmt.Errorf("k_neighbors must be at least 2, got %d", *c.KNeighbors)
	}
	if c.RadiusScale != nil && !(*c.RadiusScale > 0) {
		return fmt.Errorf("radius_scale must be positive, got %f", *c.RadiusScale)
	}
	if c.MaxRadiusDoublings != nil && (*c.MaxRadiusDoublings < 0 || *c.MaxRadiusDoublings > 32) {
		return fmt.Errorf("max_radius_doublings must be between 0 and 32, got %d", *c.MaxRadiusDoublings)
	}
	if c.MinNeighbors != nil && *c.MinNeighbors < 2 {
		return fmt.Errorf("min_neighbors must be at least 2, got %d", *c.MinNeighbors)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.Fallback != nil {
		switch *c.Fallback {
		case FallbackZero, FallbackKeep:
		default:
			return fmt.Errorf("fallback must be %q or %q, got %q", FallbackZero, FallbackKeep, *c.Fallback)
		}
	}
	if c.HistogramBins != nil && *c.HistogramBins <= 0 {
		return fmt.Errorf("histogram_bins must be positive, got %d", *c.HistogramBins)
	}
	return nil
}

// GetCellsPerDimension returns the cells_per_dimension value or the default.
func (c *TuningConfig) GetCellsPerDimension() int {
	if c.CellsPerDimension == nil {
		return 20
	}
	return *c.CellsPerDimension
}

// GetKNeighbors returns the k_neighbors value or the default.
func (c *TuningConfig) GetKNeighbors() int {
	if c.KNeighbors == nil {
		return 20
	}
	return *c.KNeighbors
}

// GetRadiusScale returns the radius_scale value or the default.
func (c *TuningConfig) GetRadiusScale() float64 {
	if c.RadiusScale == nil {
		return 1.0
	}
	return *c.RadiusScale
}

// GetMaxRadiusDoublings returns the max_radius_doublings value or the default.
func (c *TuningConfig) GetMaxRadiusDoublings() int {
	if c.MaxRadiusDoublings == nil {
		return 4
	}
	return *c.MaxRadiusDoublings
}

// GetMinNeighbors returns the min_neighbors value or the default.
func (c *TuningConfig) GetMinNeighbors() int {
	if c.MinNeighbors == nil {
		return 3
	}
	return *c.MinNeighbors
}

// GetWorkers returns the workers value or the default (0, meaning GOMAXPROCS).
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetFallback returns the fallback policy name or the default.
func (c *TuningConfig) GetFallback() string {
	if c.Fallback == nil || *c.Fallback == "" {
		return FallbackZero
	}
	return *c.Fallback
}

// GetHistogramBins returns the histogram_bins value or the default.
func (c *TuningConfig) GetHistogramBins() int {
	if c.HistogramBins == nil {
		return 36
	}
	return *c.HistogramBins
}
