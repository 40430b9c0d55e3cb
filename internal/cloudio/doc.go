// Package cloudio owns reading and writing point clouds with normals.
//
// Formats: PWN (count, positions, normals as whitespace separated text),
// OBJ (v and vn records only) and PNB, a compact binary encoding on the
// protobuf wire format.
package cloudio
