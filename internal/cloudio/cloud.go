package cloudio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/pointnormals/internal/monitoring"
)

var (
	// ErrUnknownFormat is returned for a file extension or format name no
	// codec handles.
	ErrUnknownFormat = errors.New("cloudio: unknown format")
	// ErrMalformed wraps every decoding failure.
	ErrMalformed = errors.New("cloudio: malformed input")
)

// Cloud is a point cloud with an optional parallel normal slice. When
// Normals is non-nil it has the same length as Points.
type Cloud struct {
	Points  []r3.Vector
	Normals []r3.Vector
}

// Len returns the number of points.
func (c *Cloud) Len() int { return len(c.Points) }

// HasNormals reports whether the cloud carries normals.
func (c *Cloud) HasNormals() bool { return c.Normals != nil }

// EnsureNormals allocates a zero normal slice when the cloud has none and
// returns it.
func (c *Cloud) EnsureNormals() []r3.Vector {
	if len(c.Normals) != len(c.Points) {
		n := make([]r3.Vector, len(c.Points))
		copy(n, c.Normals)
		c.Normals = n
	}
	return c.Normals
}

func (c *Cloud) validate() error {
	if c.Normals != nil && len(c.Normals) != len(c.Points) {
		return fmt.Errorf("cloudio: %d points but %d normals", len(c.Points), len(c.Normals))
	}
	return nil
}

// Format identifies a cloud encoding.
type Format int

const (
	FormatPWN Format = iota
	FormatOBJ
	FormatPNB
)

func (f Format) String() string {
	switch f {
	case FormatPWN:
		return "pwn"
	case FormatOBJ:
		return "obj"
	case FormatPNB:
		return "pnb"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ContentType returns the MIME type used when serving the format.
func (f Format) ContentType() string {
	if f == FormatPNB {
		return "application/octet-stream"
	}
	return "text/plain; charset=utf-8"
}

// ParseFormat resolves a format name such as "pwn" or ".obj".
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "pwn":
		return FormatPWN, nil
	case "obj":
		return FormatOBJ, nil
	case "pnb":
		return FormatPNB, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Decode reads a cloud in format f.
func Decode(r io.Reader, f Format) (*Cloud, error) {
	switch f {
	case FormatPWN:
		return ReadPWN(r)
	case FormatOBJ:
		return ReadOBJ(r)
	case FormatPNB:
		return ReadPNB(r)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, f)
}

// Encode writes c in format f.
func Encode(w io.Writer, f Format, c *Cloud) error {
	if err := c.validate(); err != nil {
		return err
	}
	switch f {
	case FormatPWN:
		return WritePWN(w, c)
	case FormatOBJ:
		return WriteOBJ(w, c)
	case FormatPNB:
		return WritePNB(w, c)
	}
	return fmt.Errorf("%w: %v", ErrUnknownFormat, f)
}

// Read loads a cloud from path, choosing the codec by extension.
func Read(path string) (*Cloud, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	c, err := Decode(bufio.NewReader(file), f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	monitoring.Logf("cloudio: read %d points (normals=%t) from %s", c.Len(), c.HasNormals(), path)
	return c, nil
}

// Write stores c at path, choosing the codec by extension.
func Write(path string, c *Cloud) (err error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	file, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(file)
	if err := Encode(bw, f, c); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	monitoring.Logf("cloudio: wrote %d points to %s", c.Len(), path)
	return nil
}
