package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/df07/go-depthmesh/pkg/core"
	"github.com/df07/go-depthmesh/pkg/geometry"
)

// Format is the closed set of supported output formats
type Format int

const (
	FormatDXF Format = iota
	FormatSTL
	FormatOBJ
)

// Formats lists every supported format in a stable order
var Formats = []Format{FormatDXF, FormatSTL, FormatOBJ}

// ParseFormat converts a case-insensitive name such as "stl" into a Format
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "dxf":
		return FormatDXF, nil
	case "stl":
		return FormatSTL, nil
	case "obj":
		return FormatOBJ, nil
	default:
		return 0, core.NewError(core.StageOptions, core.ErrInvalidParameter,
			"unsupported format %q (valid: dxf, stl, obj)", s)
	}
}

func (f Format) String() string {
	switch f {
	case FormatDXF:
		return "dxf"
	case FormatSTL:
		return "stl"
	case FormatOBJ:
		return "obj"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Extension returns the file extension including the dot
func (f Format) Extension() string {
	return "." + f.String()
}

// ContentType returns the MIME type served for the format
func (f Format) ContentType() string {
	switch f {
	case FormatDXF:
		return "image/vnd.dxf"
	case FormatSTL:
		return "model/stl"
	case FormatOBJ:
		return "model/obj"
	default:
		return "application/octet-stream"
	}
}

// NeedsFaces reports whether the format stores topology
func (f Format) NeedsFaces() bool {
	return f != FormatDXF
}

// Exporter serializes a point cloud and its faces to a sink.
// Implementations never buffer the whole artifact in memory.
type Exporter interface {
	Format() Format
	Export(w io.Writer, cloud *geometry.PointCloud, faces geometry.FaceList) error
}

// Options tunes exporter output
type Options struct {
	STLASCII   bool // write ASCII STL instead of binary
	STLNormals bool // compute facet normals instead of writing zero normals
}

// NewExporter returns the exporter for format
func NewExporter(format Format, opts Options) (Exporter, error) {
	switch format {
	case FormatDXF:
		return DXF{}, nil
	case FormatSTL:
		return STL{ASCII: opts.STLASCII, Normals: opts.STLNormals}, nil
	case FormatOBJ:
		return OBJ{}, nil
	default:
		return nil, core.NewError(core.StageOptions, core.ErrInvalidParameter, "unsupported format %s", format)
	}
}

// validateTopology checks the face list of a topology-bearing format
func validateTopology(format Format, cloud *geometry.PointCloud, faces geometry.FaceList) (*geometry.Mesh, error) {
	if err := validateVertices(format, cloud); err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, core.NewError(core.StageExport, core.ErrInsufficientGeometry, "%s export requires at least one face", format)
	}
	mesh, err := geometry.NewMesh(cloud, faces)
	if err != nil {
		return nil, fmt.Errorf("%s export: %w", format, err)
	}
	return mesh, nil
}

// validateVertices requires a cloud whose vertices are all finite
func validateVertices(format Format, cloud *geometry.PointCloud) error {
	if cloud == nil {
		return core.NewError(core.StageExport, core.ErrInvalidGeometry, "%s export without a point cloud", format)
	}
	for i, v := range cloud.Vertices {
		if !v.IsFinite() {
			return core.NewError(core.StageExport, core.ErrInvalidGeometry, "%s vertex %d is not finite: %v", format, i, v)
		}
	}
	return nil
}

// ioError wraps a sink failure
func ioError(format Format, err error) error {
	return core.WrapError(core.StageExport, core.ErrExportIO, err, "writing %s", format)
}
