package normals

import "errors"

var (
	// ErrEmptyInput is returned when an estimation pass receives no points.
	ErrEmptyInput = errors.New("normals: empty point cloud")
	// ErrInvalidConfig wraps every Config validation failure.
	ErrInvalidConfig = errors.New("normals: invalid configuration")
	// ErrInsufficientNeighborhood means fewer than two neighbours were
	// available for a covariance fit.
	ErrInsufficientNeighborhood = errors.New("normals: insufficient neighbourhood")
	// ErrDegenerateCovariance means the neighbourhood spans less than a
	// plane, so no normal direction is defined.
	ErrDegenerateCovariance = errors.New("normals: degenerate covariance")
	// ErrZeroReference is returned when alignment is asked to use a zero
	// reference direction.
	ErrZeroReference = errors.New("normals: zero reference direction")
	// ErrNonFinitePoint is returned when an input point has a NaN or
	// infinite coordinate.
	ErrNonFinitePoint = errors.New("normals: non-finite point")
	// ErrExtentOverflow means the cloud's extent does not fit in a float64.
	ErrExtentOverflow = errors.New("normals: cloud extent overflows")
	// ErrLengthMismatch means the point and normal slices differ in length.
	ErrLengthMismatch = errors.New("normals: points and normals length mismatch")
)
