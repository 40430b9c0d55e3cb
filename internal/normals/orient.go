package normals

import "github.com/golang/geo/r3"

// ResolveSign applies the per-point sign rule: a normal pointing towards
// negative y is negated. It is a local heuristic and gives no consistent
// orientation across a curved surface.
func ResolveSign(n r3.Vector) r3.Vector {
	if n.Y < 0 {
		return n.Mul(-1)
	}
	return n
}

// AlignToReference flips every normal whose dot product with ref is
// negative and returns how many were flipped. Zero normals are left alone.
func AlignToReference(normals []r3.Vector, ref r3.Vector) (int, error) {
	if ref.Norm2() == 0 {
		return 0, ErrZeroReference
	}
	flipped := 0
	for i, n := range normals {
		if n.Dot(ref) < 0 {
			normals[i] = n.Mul(-1)
			flipped++
		}
	}
	return flipped, nil
}

// AlignToViewpoint orients each normal towards viewpoint, using
// viewpoint - points[i] as the per-point reference. Points sitting on the
// viewpoint are skipped.
func AlignToViewpoint(points, normals []r3.Vector, viewpoint r3.Vector) (int, error) {
	if len(points) != len(normals) {
		return 0, ErrLengthMismatch
	}
	flipped := 0
	for i, p := range points {
		if normals[i].Dot(viewpoint.Sub(p)) < 0 {
			normals[i] = normals[i].Mul(-1)
			flipped++
		}
	}
	return flipped, nil
}
