package cloudio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
)

// ReadPWN decodes the PWN layout: the point count, then that many "x y z"
// positions, then that many "nx ny nz" normals. Tokens may be split across
// lines freely. A file that ends right after the positions yields a cloud
// without normals.
func ReadPWN(r io.Reader) (*Cloud, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: missing point count", ErrMalformed)
	}
	n, err := strconv.Atoi(sc.Text())
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: bad point count %q", ErrMalformed, sc.Text())
	}

	c := &Cloud{Points: make([]r3.Vector, 0, min(n, 1<<20))}
	for i := 0; i < n; i++ {
		p, err := scanVector(sc)
		if err != nil {
			return nil, fmt.Errorf("%w: position %d: %w", ErrMalformed, i, err)
		}
		c.Points = append(c.Points, p)
	}

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return c, nil
	}
	c.Normals = make([]r3.Vector, n)
	for i := 0; i < n; i++ {
		var v r3.Vector
		var err error
		if i == 0 {
			v, err = scanVectorFrom(sc.Text(), sc)
		} else {
			v, err = scanVector(sc)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: normal %d: %w", ErrMalformed, i, err)
		}
		c.Normals[i] = v
	}
	return c, nil
}

func scanVector(sc *bufio.Scanner) (r3.Vector, error) {
	if !sc.Scan() {
		return r3.Vector{}, scanErr(sc)
	}
	return scanVectorFrom(sc.Text(), sc)
}

// scanVectorFrom parses first as X and reads Y and Z from sc.
func scanVectorFrom(first string, sc *bufio.Scanner) (r3.Vector, error) {
	var xyz [3]float64
	var err error
	if xyz[0], err = strconv.ParseFloat(first, 64); err != nil {
		return r3.Vector{}, err
	}
	for k := 1; k < 3; k++ {
		if !sc.Scan() {
			return r3.Vector{}, scanErr(sc)
		}
		if xyz[k], err = strconv.ParseFloat(sc.Text(), 64); err != nil {
			return r3.Vector{}, err
		}
	}
	return r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

func scanErr(sc *bufio.Scanner) error {
	if err := sc.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

// WritePWN encodes c as PWN. A cloud without normals is written with zero
// normals so the file stays readable by strict PWN readers.
func WritePWN(w io.Writer, c *Cloud) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n", len(c.Points))
	for _, p := range c.Points {
		writeVector(bw, "", p)
	}
	for i := range c.Points {
		var n r3.Vector
		if c.Normals != nil {
			n = c.Normals[i]
		}
		writeVector(bw, "", n)
	}
	return bw.Flush()
}

// ReadOBJ decodes the vertex ("v") and vertex normal ("vn") records of a
// Wavefront OBJ file. Every other record is ignored. Normals beyond the
// vertex count are dropped and missing ones are zero. A file without any
// "vn" record yields a cloud without normals.
func ReadOBJ(r io.Reader) (*Cloud, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	c := &Cloud{}
	var normals []r3.Vector
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v", "vn":
			if len(fields) < 4 {
				return nil, fmt.Errorf("%w: line %d: %q needs three coordinates", ErrMalformed, line, fields[0])
			}
			var xyz [3]float64
			for k := range xyz {
				f, err := strconv.ParseFloat(fields[k+1], 64)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %w", ErrMalformed, line, err)
				}
				xyz[k] = f
			}
			v := r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}
			if fields[0] == "v" {
				c.Points = append(c.Points, v)
			} else {
				normals = append(normals, v)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(c.Points) == 0 {
		return nil, fmt.Errorf("%w: no vertices", ErrMalformed)
	}
	if normals != nil {
		c.Normals = make([]r3.Vector, len(c.Points))
		copy(c.Normals, normals)
	}
	return c, nil
}

// WriteOBJ encodes c as OBJ vertices followed by vertex normals.
func WriteOBJ(w io.Writer, c *Cloud) error {
	bw := bufio.NewWriter(w)
	for _, p := range c.Points {
		writeVector(bw, "v ", p)
	}
	for _, n := range c.Normals {
		writeVector(bw, "vn ", n)
	}
	return bw.Flush()
}

func writeVector(bw *bufio.Writer, prefix string, v r3.Vector) {
	var buf [96]byte
	b := append(buf[:0], prefix...)
	b = strconv.AppendFloat(b, v.X, 'g', -1, 64)
	b = append(b, ' ')
	b = strconv.AppendFloat(b, v.Y, 'g', -1, 64)
	b = append(b, ' ')
	b = strconv.AppendFloat(b, v.Z, 'g', -1, 64)
	b = append(b, '\n')
	bw.Write(b)
}
