// Package formats reads and writes mesh interchange files.
// OBJ (Wavefront) reader and writer for triangle meshes.
package formats

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chewxy/math32"
)

// OBJ format errors.
var (
	ErrInvalidOBJ    = errors.New("invalid OBJ data")
	ErrOBJIndexRange = errors.New("OBJ index out of range")
)

// NoIndex marks an absent texture coordinate or normal reference.
const NoIndex = -1

// OBJCorner references one face corner. Indices are zero-based; VT and VN
// are NoIndex when the corner does not reference them.
type OBJCorner struct {
	V, VT, VN int32
}

// OBJFace is a triangle. Polygons are fan-triangulated on load.
type OBJFace struct {
	Corners [3]OBJCorner
	Group   string // last "o" or "g" name seen
}

// OBJ holds the geometry of a Wavefront OBJ file.
type OBJ struct {
	Positions [][3]float32
	Colors    [][3]float32 // per-position "v x y z r g b" extension; empty if unused
	TexCoords [][2]float32
	Normals   [][3]float32
	Faces     []OBJFace
	MtlLib    string
}

// ParseOBJ parses OBJ data. Unknown statements are ignored.
func ParseOBJ(data []byte) (*OBJ, error) {
	obj := &OBJ{}
	var (
		group     string
		hasColors bool
		polygon   []OBJCorner
	)

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("%w: line %d: vertex needs 3 coordinates", ErrInvalidOBJ, lineNo)
			}
			p, err := parseFloats(fields[1:4])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidOBJ, lineNo, err)
			}
			obj.Positions = append(obj.Positions, [3]float32{p[0], p[1], p[2]})
			color := [3]float32{1, 1, 1}
			if len(fields) >= 7 {
				c, err := parseFloats(fields[4:7])
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidOBJ, lineNo, err)
				}
				color = [3]float32{c[0], c[1], c[2]}
				if !hasColors {
					hasColors = true
					for range len(obj.Positions) - 1 {
						obj.Colors = append(obj.Colors, [3]float32{1, 1, 1})
					}
				}
			}
			if hasColors {
				obj.Colors = append(obj.Colors, color)
			}

		case "vt":
			if len(fields) < 2 {
				return nil, fmt.Errorf("%w: line %d: texture coordinate needs a value", ErrInvalidOBJ, lineNo)
			}
			n := min(len(fields)-1, 2)
			t, err := parseFloats(fields[1 : 1+n])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidOBJ, lineNo, err)
			}
			var uv [2]float32
			copy(uv[:], t)
			obj.TexCoords = append(obj.TexCoords, uv)

		case "vn":
			if len(fields) < 4 {
				return nil, fmt.Errorf("%w: line %d: normal needs 3 components", ErrInvalidOBJ, lineNo)
			}
			n, err := parseFloats(fields[1:4])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidOBJ, lineNo, err)
			}
			obj.Normals = append(obj.Normals, [3]float32{n[0], n[1], n[2]})

		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("%w: line %d: face needs at least 3 corners", ErrInvalidOBJ, lineNo)
			}
			polygon = polygon[:0]
			for _, f := range fields[1:] {
				c, err := obj.parseCorner(f)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				polygon = append(polygon, c)
			}
			for i := 1; i+1 < len(polygon); i++ {
				obj.Faces = append(obj.Faces, OBJFace{
					Corners: [3]OBJCorner{polygon[0], polygon[i], polygon[i+1]},
					Group:   group,
				})
			}

		case "o", "g":
			group = strings.Join(fields[1:], " ")

		case "mtllib":
			obj.MtlLib = strings.Join(fields[1:], " ")

		default:
			// usemtl, s, l, p and vendor extensions carry nothing we keep.
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidOBJ, lineNo+1, err)
	}

	return obj, nil
}

// LoadOBJ parses an OBJ file from disk.
func LoadOBJ(path string) (*OBJ, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading OBJ file: %w", err)
	}
	return ParseOBJ(data)
}

func parseFloats(fields []string) ([]float32, error) {
	out := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", f)
		}
		out[i] = float32(v)
		if math32.IsNaN(out[i]) || math32.IsInf(out[i], 0) {
			return nil, fmt.Errorf("non-finite number %q", f)
		}
	}
	return out, nil
}

// parseCorner parses "v", "v/t", "v//n" or "v/t/n" against the elements
// read so far.
func (obj *OBJ) parseCorner(s string) (OBJCorner, error) {
	parts := strings.Split(s, "/")
	if len(parts) > 3 || parts[0] == "" {
		return OBJCorner{}, fmt.Errorf("%w: bad face corner %q", ErrInvalidOBJ, s)
	}

	c := OBJCorner{V: NoIndex, VT: NoIndex, VN: NoIndex}
	var err error
	if c.V, err = resolveIndex(parts[0], len(obj.Positions)); err != nil {
		return OBJCorner{}, err
	}
	if len(parts) > 1 && parts[1] != "" {
		if c.VT, err = resolveIndex(parts[1], len(obj.TexCoords)); err != nil {
			return OBJCorner{}, err
		}
	}
	if len(parts) > 2 && parts[2] != "" {
		if c.VN, err = resolveIndex(parts[2], len(obj.Normals)); err != nil {
			return OBJCorner{}, err
		}
	}
	return c, nil
}

// resolveIndex turns a one-based or negative (relative) OBJ index into a
// zero-based one.
func resolveIndex(s string, count int) (int32, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: bad index %q", ErrInvalidOBJ, s)
	}
	switch {
	case i > 0 && i <= count:
		return int32(i - 1), nil
	case i < 0 && -i <= count:
		return int32(count + i), nil
	default:
		return 0, fmt.Errorf("%w: %d with %d elements", ErrOBJIndexRange, i, count)
	}
}

// Write encodes obj as OBJ text. Faces are written with the corner form
// their references need.
func (obj *OBJ) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)

	if obj.MtlLib != "" {
		fmt.Fprintf(bw, "mtllib %s\n", obj.MtlLib)
	}
	hasColors := len(obj.Colors) == len(obj.Positions) && len(obj.Colors) > 0
	for i, p := range obj.Positions {
		bw.WriteString("v ")
		writeFloats(bw, p[:])
		if hasColors {
			bw.WriteByte(' ')
			writeFloats(bw, obj.Colors[i][:])
		}
		bw.WriteByte('\n')
	}
	for _, t := range obj.TexCoords {
		bw.WriteString("vt ")
		writeFloats(bw, t[:])
		bw.WriteByte('\n')
	}
	for _, n := range obj.Normals {
		bw.WriteString("vn ")
		writeFloats(bw, n[:])
		bw.WriteByte('\n')
	}

	group := ""
	for _, f := range obj.Faces {
		if f.Group != group {
			group = f.Group
			fmt.Fprintf(bw, "g %s\n", group)
		}
		bw.WriteByte('f')
		for _, c := range f.Corners {
			bw.WriteByte(' ')
			bw.WriteString(strconv.Itoa(int(c.V) + 1))
			switch {
			case c.VT != NoIndex && c.VN != NoIndex:
				fmt.Fprintf(bw, "/%d/%d", c.VT+1, c.VN+1)
			case c.VT != NoIndex:
				fmt.Fprintf(bw, "/%d", c.VT+1)
			case c.VN != NoIndex:
				fmt.Fprintf(bw, "//%d", c.VN+1)
			}
		}
		bw.WriteByte('\n')
	}

	return bw.Flush()
}

// SaveOBJ writes obj to path.
func (obj *OBJ) SaveOBJ(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating OBJ file: %w", err)
	}
	if err := obj.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing OBJ file: %w", err)
	}
	return f.Close()
}

func writeFloats(bw *bufio.Writer, v []float32) {
	for i, f := range v {
		if i > 0 {
			bw.WriteByte(' ')
		}
		bw.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
}

// TriangleCount returns the number of faces.
func (obj *OBJ) TriangleCount() int {
	return len(obj.Faces)
}
