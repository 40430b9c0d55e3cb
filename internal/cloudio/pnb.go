package cloudio

import (
	"fmt"
	"io"
	"math"

	"github.com/golang/geo/r3"
	"google.golang.org/protobuf/encoding/protowire"
)

// PNB field numbers. Positions and normals are packed doubles, three per
// point.
const (
	pnbFieldCount     protowire.Number = 1
	pnbFieldPositions protowire.Number = 2
	pnbFieldNormals   protowire.Number = 3
)

// maxPNBSize bounds how much ReadPNB will buffer.
const maxPNBSize = 1 << 30

// WritePNB encodes c as a single PNB message.
func WritePNB(w io.Writer, c *Cloud) error {
	_, err := w.Write(MarshalPNB(c))
	return err
}

// MarshalPNB returns the PNB encoding of c.
func MarshalPNB(c *Cloud) []byte {
	n := len(c.Points)
	size := 2*protowire.SizeVarint(uint64(n)) + 2*(protowire.SizeBytes(n*24)+1)
	b := make([]byte, 0, size)

	b = protowire.AppendTag(b, pnbFieldCount, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(n))
	b = appendPackedVectors(b, pnbFieldPositions, c.Points)
	if c.Normals != nil {
		b = appendPackedVectors(b, pnbFieldNormals, c.Normals)
	}
	return b
}

func appendPackedVectors(b []byte, num protowire.Number, vs []r3.Vector) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(len(vs)*24))
	for _, v := range vs {
		b = protowire.AppendFixed64(b, math.Float64bits(v.X))
		b = protowire.AppendFixed64(b, math.Float64bits(v.Y))
		b = protowire.AppendFixed64(b, math.Float64bits(v.Z))
	}
	return b
}

// ReadPNB decodes a PNB message from r.
func ReadPNB(r io.Reader) (*Cloud, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxPNBSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxPNBSize {
		return nil, fmt.Errorf("%w: pnb message larger than %d bytes", ErrMalformed, maxPNBSize)
	}
	return UnmarshalPNB(data)
}

// UnmarshalPNB decodes a PNB message. Unknown fields are skipped.
func UnmarshalPNB(b []byte) (*Cloud, error) {
	var (
		count     uint64
		haveCount bool
		points    []r3.Vector
		normals   []r3.Vector
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == pnbFieldCount && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: count: %v", ErrMalformed, protowire.ParseError(n))
			}
			count, haveCount = v, true
			b = b[n:]
		case (num == pnbFieldPositions || num == pnbFieldNormals) && typ == protowire.BytesType:
			payload, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %w", ErrMalformed, num, protowire.ParseError(n))
			}
			vs, err := decodePackedVectors(payload)
			if err != nil {
				return nil, fmt.Errorf("%w: field %d: %w", ErrMalformed, num, err)
			}
			if num == pnbFieldPositions {
				points = append(points, vs...)
			} else {
				normals = append(normals, vs...)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %w", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if !haveCount {
		return nil, fmt.Errorf("%w: missing point count", ErrMalformed)
	}
	if uint64(len(points)) != count {
		return nil, fmt.Errorf("%w: count %d but %d positions", ErrMalformed, count, len(points))
	}
	if normals != nil && len(normals) != len(points) {
		return nil, fmt.Errorf("%w: %d positions but %d normals", ErrMalformed, len(points), len(normals))
	}
	if points == nil {
		points = []r3.Vector{}
	}
	return &Cloud{Points: points, Normals: normals}, nil
}

func decodePackedVectors(b []byte) ([]r3.Vector, error) {
	if len(b)%24 != 0 {
		return nil, fmt.Errorf("packed length %d is not a multiple of 24", len(b))
	}
	vs := make([]r3.Vector, 0, len(b)/24)
	for len(b) > 0 {
		var xyz [3]float64
		for k := range xyz {
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			xyz[k] = math.Float64frombits(v)
			b = b[n:]
		}
		vs = append(vs, r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]})
	}
	return vs, nil
}
