package export

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/df07/go-depthmesh/pkg/core"
	"github.com/df07/go-depthmesh/pkg/geometry"
)

func singleTriangle() (*geometry.PointCloud, geometry.FaceList) {
	cloud := &geometry.PointCloud{
		Vertices: []core.Vec3{
			core.NewVec3(0, 0, 0),
			core.NewVec3(1, 0, 0),
			core.NewVec3(0, 1, 0.5),
		},
		Width:  3,
		Height: 1,
	}
	return cloud, geometry.FaceList{geometry.Tri(0, 1, 2)}
}

func gridMesh(t require.TestingT, width, height int) (*geometry.PointCloud, geometry.FaceList) {
	field := core.NewGrid[float64](width, height)
	for i := range field.Data {
		field.Data[i] = float64(i%7) / 7
	}
	cloud, err := geometry.Project(field, geometry.EmitDense)
	require.NoError(t, err)
	faces, err := geometry.BuildGridFaces(width, height)
	require.NoError(t, err)
	return cloud, faces
}

type failingWriter struct{}

var errSinkBroken = errors.New("sink broken")

func (failingWriter) Write(p []byte) (int, error) { return 0, errSinkBroken }

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
	}{
		{"dxf", FormatDXF},
		{"STL", FormatSTL},
		{".obj", FormatOBJ},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, got)
	}

	for _, bad := range []string{"ply", "", "gltf"} {
		_, err := ParseFormat(bad)
		assert.ErrorIs(t, err, core.ErrInvalidParameter, bad)
	}
}

func TestNewExporter_CoversEveryFormat(t *testing.T) {
	for _, f := range Formats {
		exp, err := NewExporter(f, Options{})
		require.NoError(t, err)
		assert.Equal(t, f, exp.Format())
		assert.Equal(t, "."+f.String(), f.Extension())
		assert.NotEmpty(t, f.ContentType())
	}
	_, err := NewExporter(Format(99), Options{})
	assert.ErrorIs(t, err, core.ErrInvalidParameter)
}

func TestOBJ_SingleTriangle(t *testing.T) {
	cloud, faces := singleTriangle()
	var buf bytes.Buffer
	require.NoError(t, OBJ{}.Export(&buf, cloud, faces))

	var vLines, fLines []string
	for _, line := range strings.Split(buf.String(), "\n") {
		switch {
		case strings.HasPrefix(line, "v "):
			vLines = append(vLines, line)
		case strings.HasPrefix(line, "f "):
			fLines = append(fLines, line)
		}
	}
	assert.Equal(t, []string{"v 0 0 0", "v 1 0 0", "v 0 1 0.5"}, vLines)
	assert.Equal(t, []string{"f 1 2 3"}, fLines)
}

func TestOBJ_QuadKeepsFourIndices(t *testing.T) {
	cloud := &geometry.PointCloud{
		Vertices: []core.Vec3{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}},
		Width:    4, Height: 1,
	}
	var buf bytes.Buffer
	require.NoError(t, OBJ{}.Export(&buf, cloud, geometry.FaceList{geometry.Quad(0, 1, 2, 3)}))
	assert.Contains(t, buf.String(), "f 1 2 3 4\n")
}

func TestSTL_BinarySize(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		w := rapid.IntRange(2, 12).Draw(rt, "width")
		h := rapid.IntRange(2, 12).Draw(rt, "height")
		cloud, faces := gridMesh(rt, w, h)

		var buf bytes.Buffer
		require.NoError(rt, STL{}.Export(&buf, cloud, faces))
		n := 2 * (w - 1) * (h - 1)
		require.Equal(rt, 80+4+50*n, buf.Len())
	})
}

func TestSTL_BinaryHeaderIsNotSolid(t *testing.T) {
	cloud, faces := singleTriangle()
	var buf bytes.Buffer
	require.NoError(t, STL{}.Export(&buf, cloud, faces))
	assert.False(t, bytes.HasPrefix(buf.Bytes(), []byte("solid")))
	assert.Equal(t, []byte{1, 0, 0, 0}, buf.Bytes()[80:84])
}

func TestSTL_ASCII(t *testing.T) {
	cloud, faces := singleTriangle()
	var buf bytes.Buffer
	require.NoError(t, STL{ASCII: true, Normals: true}.Export(&buf, cloud, faces))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "solid depthmesh\n"))
	assert.True(t, strings.HasSuffix(out, "endsolid depthmesh\n"))
	assert.Equal(t, 1, strings.Count(out, "facet normal"))
	assert.Equal(t, 3, strings.Count(out, "vertex "))
	assert.Contains(t, out, "outer loop")
	assert.Contains(t, out, "endloop")
}

func TestSTL_SplitsQuads(t *testing.T) {
	cloud := &geometry.PointCloud{
		Vertices: []core.Vec3{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}},
		Width:    4, Height: 1,
	}
	var buf bytes.Buffer
	require.NoError(t, STL{}.Export(&buf, cloud, geometry.FaceList{geometry.Quad(0, 1, 2, 3)}))
	assert.Equal(t, 80+4+50*2, buf.Len())
}

func TestExporters_RejectBadTopology(t *testing.T) {
	cloud, _ := singleTriangle()
	for _, exp := range []Exporter{STL{}, STL{ASCII: true}, OBJ{}} {
		t.Run(exp.Format().String(), func(t *testing.T) {
			err := exp.Export(&bytes.Buffer{}, cloud, nil)
			assert.ErrorIs(t, err, core.ErrInsufficientGeometry)

			err = exp.Export(&bytes.Buffer{}, cloud, geometry.FaceList{geometry.Tri(0, 1, 3)})
			assert.ErrorIs(t, err, core.ErrInvalidGeometry)
		})
	}
}

func TestExporters_RejectNonFiniteVertices(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		for _, f := range Formats {
			cloud, faces := singleTriangle()
			cloud.Vertices[1].Z = bad
			exp, err := NewExporter(f, Options{})
			require.NoError(t, err)

			var buf bytes.Buffer
			err = exp.Export(&buf, cloud, faces)
			assert.ErrorIs(t, err, core.ErrInvalidGeometry, "%s with %v", f, bad)
			assert.Zero(t, buf.Len(), "%s writes nothing for %v", f, bad)
		}
	}
}

func TestExporters_WrapSinkFailure(t *testing.T) {
	cloud, faces := singleTriangle()
	for _, f := range Formats {
		exp, err := NewExporter(f, Options{})
		require.NoError(t, err)

		err = exp.Export(failingWriter{}, cloud, faces)
		require.Error(t, err, f.String())
		assert.ErrorIs(t, err, core.ErrExportIO)
		assert.ErrorIs(t, err, errSinkBroken)
	}
}

func TestDXF_Structure(t *testing.T) {
	cloud, _ := singleTriangle()
	var buf bytes.Buffer
	require.NoError(t, DXF{}.Export(&buf, cloud, nil))

	out := buf.String()
	assert.Contains(t, out, "$ACADVER\n1\nAC1009\n")
	assert.NotContains(t, out, "$INSUNITS", "R12 headers carry no R2000 variables")
	ltype := strings.Index(out, "0\nLTYPE\n2\nCONTINUOUS\n")
	require.GreaterOrEqual(t, ltype, 0, "layer linetype is defined")
	assert.Less(t, ltype, strings.Index(out, "0\nLAYER\n2\n0\n"), "LTYPE table precedes LAYER")
	assert.Contains(t, out, "6\nCONTINUOUS\n")
	assert.Contains(t, out, "2\nENTITIES\n")
	assert.Equal(t, 3, strings.Count(out, "0\nPOINT\n"))
	assert.True(t, strings.HasSuffix(out, "0\nEOF\n"))
	assert.Less(t, strings.Index(out, "10\n1\n20\n0\n30\n0\n"), strings.Index(out, "10\n0\n20\n1\n30\n0.5\n"),
		"points follow cloud order")
}

func TestRoundTrip_DXF(t *testing.T) {
	cloud, _ := gridMesh(t, 4, 3)
	var buf bytes.Buffer
	require.NoError(t, DXF{}.Export(&buf, cloud, nil))

	read, err := ReadDXF(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(cloud.Vertices, read.Vertices); diff != "" {
		t.Errorf("vertices mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip_OBJ(t *testing.T) {
	cloud, faces := gridMesh(t, 5, 4)
	var buf bytes.Buffer
	require.NoError(t, OBJ{}.Export(&buf, cloud, faces))

	mesh, err := ReadOBJ(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(cloud.Vertices, mesh.Cloud.Vertices); diff != "" {
		t.Errorf("vertices mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(faces, mesh.Faces); diff != "" {
		t.Errorf("faces mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip_STL(t *testing.T) {
	for _, ascii := range []bool{false, true} {
		cloud, faces := gridMesh(t, 4, 4)
		var buf bytes.Buffer
		require.NoError(t, STL{ASCII: ascii}.Export(&buf, cloud, faces))

		mesh, err := ReadSTL(&buf)
		require.NoError(t, err)
		assert.Equal(t, 18, mesh.TriangleCount(), "ascii=%v", ascii)
		assert.Equal(t, 16, mesh.VertexCount(), "corners are merged, ascii=%v", ascii)
	}
}

func TestReadOBJ_IndexForms(t *testing.T) {
	src := `# comment
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
v 0.5 1.5 0
f 1/1/1 2/2/2 3/3/3
f -5 -3 -2
f 1 2 3 4 5
`
	mesh, err := ReadOBJ(strings.NewReader(src))
	require.NoError(t, err)
	expected := geometry.FaceList{
		geometry.Tri(0, 1, 2),
		geometry.Tri(0, 2, 3),
		geometry.Tri(0, 1, 2),
		geometry.Tri(0, 2, 3),
		geometry.Tri(0, 3, 4),
	}
	if diff := cmp.Diff(expected, mesh.Faces); diff != "" {
		t.Errorf("faces mismatch (-want +got):\n%s", diff)
	}

	_, err = ReadOBJ(strings.NewReader("v 0 0 0\nf 1 2 3\n"))
	assert.ErrorIs(t, err, core.ErrInvalidGeometry)

	_, err = ReadOBJ(strings.NewReader("v 0 0 0\nf 0 1 1\n"))
	assert.ErrorIs(t, err, core.ErrInvalidGeometry)
}

func TestReadSTL_Garbage(t *testing.T) {
	_, err := ReadSTL(strings.NewReader("not an stl"))
	assert.ErrorIs(t, err, core.ErrInvalidGeometry)
}

func TestInspect(t *testing.T) {
	cloud, faces := gridMesh(t, 3, 3)
	var buf bytes.Buffer
	require.NoError(t, STL{}.Export(&buf, cloud, faces))
	size := buf.Len()

	report, err := Inspect(&buf, FormatSTL)
	require.NoError(t, err)
	assert.Equal(t, "stl", report.Format)
	assert.Equal(t, "binary", report.Encoding)
	assert.Equal(t, 8, report.Triangles)
	assert.Equal(t, 9, report.Vertices)
	assert.Equal(t, int64(size), report.Bytes)
	assert.Equal(t, 2.0, report.Max.X)
	assert.Equal(t, 2.0, report.Max.Y)

	buf.Reset()
	require.NoError(t, DXF{}.Export(&buf, cloud, nil))
	report, err = Inspect(&buf, FormatDXF)
	require.NoError(t, err)
	assert.Equal(t, 9, report.Vertices)
	assert.Equal(t, 0, report.Triangles)
}
