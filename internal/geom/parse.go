package geom

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
)

// ParseVector reads "x,y,z". Whitespace around components is ignored.
func ParseVector(s string) (r3.Vector, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return r3.Vector{}, fmt.Errorf("vector %q: want 3 comma-separated components, got %d", s, len(parts))
	}
	var c [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return r3.Vector{}, fmt.Errorf("vector %q: component %d: %w", s, i, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return r3.Vector{}, fmt.Errorf("vector %q: component %d is not finite", s, i)
		}
		c[i] = v
	}
	return r3.Vector{X: c[0], Y: c[1], Z: c[2]}, nil
}
