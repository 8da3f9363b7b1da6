package export

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/df07/go-depthmesh/pkg/core"
	"github.com/df07/go-depthmesh/pkg/geometry"
)

// Report summarizes an exported artifact
type Report struct {
	Format    string    `json:"format"`
	Encoding  string    `json:"encoding,omitempty"` // "binary" or "ascii" for STL
	Vertices  int       `json:"vertices"`
	Faces     int       `json:"faces"`
	Triangles int       `json:"triangles"`
	Bytes     int64     `json:"bytes"`
	Min       core.Vec3 `json:"min"`
	Max       core.Vec3 `json:"max"`
}

// Inspect parses an artifact of the given format and reports its contents
func Inspect(r io.Reader, format Format) (*Report, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, core.WrapError(core.StageInspect, core.ErrExportIO, err, "reading %s", format)
	}

	report := &Report{Format: format.String(), Bytes: int64(len(data))}
	var mesh *geometry.Mesh
	switch format {
	case FormatDXF:
		cloud, err := ReadDXF(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		mesh = &geometry.Mesh{Cloud: cloud}
	case FormatSTL:
		if isBinarySTL(data) {
			report.Encoding = "binary"
		} else {
			report.Encoding = "ascii"
		}
		mesh, err = ReadSTL(bytes.NewReader(data))
	case FormatOBJ:
		mesh, err = ReadOBJ(bytes.NewReader(data))
	default:
		return nil, core.NewError(core.StageInspect, core.ErrInvalidParameter, "unsupported format %s", format)
	}
	if err != nil {
		return nil, err
	}

	box := mesh.BoundingBox()
	report.Vertices = mesh.VertexCount()
	report.Faces = len(mesh.Faces)
	report.Triangles = mesh.TriangleCount()
	report.Min, report.Max = box.Min, box.Max
	return report, nil
}

// unstructured wraps vertices read from a file as a single-row cloud
func unstructured(vertices []core.Vec3) *geometry.PointCloud {
	return &geometry.PointCloud{Vertices: vertices, Width: len(vertices), Height: 1}
}

func malformed(format Format, msg string, args ...any) error {
	return core.NewError(core.StageInspect, core.ErrInvalidGeometry, "malformed %s: %s", format, fmt.Sprintf(msg, args...))
}

// isBinarySTL decides by size: a binary file is exactly 84 + 50*count bytes.
// ASCII files start with "solid", but so do some binary headers.
func isBinarySTL(data []byte) bool {
	if len(data) < stlHeaderSize+4 {
		return false
	}
	count := binary.LittleEndian.Uint32(data[stlHeaderSize:])
	return int64(len(data)) == stlHeaderSize+4+int64(count)*stlRecordSize
}

// ReadSTL parses binary or ASCII STL. Identical positions are merged
// so the returned mesh is indexed.
func ReadSTL(r io.Reader) (*geometry.Mesh, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, core.WrapError(core.StageInspect, core.ErrExportIO, err, "reading stl")
	}

	b := newSoupBuilder()
	if isBinarySTL(data) {
		count := int(binary.LittleEndian.Uint32(data[stlHeaderSize:]))
		records := data[stlHeaderSize+4:]
		for i := 0; i < count; i++ {
			rec := records[i*stlRecordSize : (i+1)*stlRecordSize]
			const start = 12 // skip normal
			b.addTriangle(
				readVec3(rec[start:]),
				readVec3(rec[start+12:]),
				readVec3(rec[start+24:]),
			)
		}
		return b.mesh(), nil
	}

	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("solid")) {
		return nil, malformed(FormatSTL, "neither a binary record layout nor an ascii solid")
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	var loop []core.Vec3
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "outer":
			loop = loop[:0]
		case "vertex":
			v, err := parseVec3(fields[1:])
			if err != nil {
				return nil, malformed(FormatSTL, "line %d: %v", line, err)
			}
			loop = append(loop, v)
		case "endloop":
			if len(loop) != 3 {
				return nil, malformed(FormatSTL, "line %d: loop with %d vertices", line, len(loop))
			}
			b.addTriangle(loop[0], loop[1], loop[2])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, core.WrapError(core.StageInspect, core.ErrExportIO, err, "scanning stl")
	}
	return b.mesh(), nil
}

func readVec3(b []byte) core.Vec3 {
	return core.NewVec3(
		float64(math.Float32frombits(binary.LittleEndian.Uint32(b[0:]))),
		float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4:]))),
		float64(math.Float32frombits(binary.LittleEndian.Uint32(b[8:]))),
	)
}

func parseVec3(fields []string) (core.Vec3, error) {
	if len(fields) < 3 {
		return core.Vec3{}, fmt.Errorf("expected 3 coordinates, got %d", len(fields))
	}
	var c [3]float64
	for i := range c {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return core.Vec3{}, err
		}
		c[i] = v
	}
	return core.NewVec3(c[0], c[1], c[2]), nil
}

// soupBuilder merges duplicate triangle corners into shared vertices
type soupBuilder struct {
	index    map[core.Vec3]int
	vertices []core.Vec3
	faces    geometry.FaceList
}

func newSoupBuilder() *soupBuilder {
	return &soupBuilder{index: make(map[core.Vec3]int)}
}

func (b *soupBuilder) vertex(v core.Vec3) int {
	if i, ok := b.index[v]; ok {
		return i
	}
	i := len(b.vertices)
	b.vertices = append(b.vertices, v)
	b.index[v] = i
	return i
}

func (b *soupBuilder) addTriangle(v0, v1, v2 core.Vec3) {
	b.faces = append(b.faces, geometry.Tri(b.vertex(v0), b.vertex(v1), b.vertex(v2)))
}

func (b *soupBuilder) mesh() *geometry.Mesh {
	return &geometry.Mesh{Cloud: unstructured(b.vertices), Faces: b.faces}
}

// ReadOBJ parses vertex and face lines of a Wavefront OBJ file. Face
// entries may carry texture and normal references ("1/2/3") and negative
// relative indices. Polygons beyond quads are fanned into triangles.
func ReadOBJ(r io.Reader) (*geometry.Mesh, error) {
	var vertices []core.Vec3
	var faces geometry.FaceList

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "v":
			v, err := parseVec3(fields[1:])
			if err != nil {
				return nil, malformed(FormatOBJ, "line %d: %v", line, err)
			}
			vertices = append(vertices, v)
		case "f":
			if len(fields) < 4 {
				return nil, malformed(FormatOBJ, "line %d: face with %d vertices", line, len(fields)-1)
			}
			idx := make([]int, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				i, err := parseOBJIndex(ref, len(vertices))
				if err != nil {
					return nil, malformed(FormatOBJ, "line %d: %v", line, err)
				}
				idx = append(idx, i)
			}
			switch len(idx) {
			case 3:
				faces = append(faces, geometry.Tri(idx[0], idx[1], idx[2]))
			case 4:
				faces = append(faces, geometry.Quad(idx[0], idx[1], idx[2], idx[3]))
			default:
				for k := 1; k+1 < len(idx); k++ {
					faces = append(faces, geometry.Tri(idx[0], idx[k], idx[k+1]))
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, core.WrapError(core.StageInspect, core.ErrExportIO, err, "scanning obj")
	}

	mesh := &geometry.Mesh{Cloud: unstructured(vertices), Faces: faces}
	if err := mesh.Validate(); err != nil {
		return nil, err
	}
	return mesh, nil
}

// parseOBJIndex converts a 1-based or negative relative reference to a 0-based index
func parseOBJIndex(ref string, count int) (int, error) {
	if slash := strings.IndexByte(ref, '/'); slash >= 0 {
		ref = ref[:slash]
	}
	i, err := strconv.Atoi(ref)
	if err != nil {
		return 0, fmt.Errorf("face index %q: %w", ref, err)
	}
	switch {
	case i > 0:
		return i - 1, nil
	case i < 0:
		return count + i, nil
	default:
		return 0, fmt.Errorf("face index 0 is not valid")
	}
}

// ReadDXF collects the POINT entities of an ASCII DXF drawing
func ReadDXF(r io.Reader) (*geometry.PointCloud, error) {
	scanner := bufio.NewScanner(r)
	var vertices []core.Vec3
	var current *core.Vec3
	line := 0

	for scanner.Scan() {
		line++
		codeText := strings.TrimSpace(scanner.Text())
		if !scanner.Scan() {
			return nil, malformed(FormatDXF, "line %d: group code %q without a value", line, codeText)
		}
		line++
		value := strings.TrimSpace(scanner.Text())

		code, err := strconv.Atoi(codeText)
		if err != nil {
			return nil, malformed(FormatDXF, "line %d: group code %q", line-1, codeText)
		}

		switch code {
		case 0:
			if current != nil {
				vertices = append(vertices, *current)
				current = nil
			}
			if value == "POINT" {
				current = &core.Vec3{}
			}
		case 10, 20, 30:
			if current == nil {
				continue
			}
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, malformed(FormatDXF, "line %d: coordinate %q", line, value)
			}
			switch code {
			case 10:
				current.X = f
			case 20:
				current.Y = f
			case 30:
				current.Z = f
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, core.WrapError(core.StageInspect, core.ErrExportIO, err, "scanning dxf")
	}
	if current != nil {
		vertices = append(vertices, *current)
	}
	return unstructured(vertices), nil
}
