package geometry

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/df07/go-depthmesh/pkg/core"
)

func TestBuildGridFaces_TwoByTwo(t *testing.T) {
	faces, err := BuildGridFaces(2, 2)
	require.NoError(t, err)

	expected := FaceList{Tri(0, 1, 2), Tri(1, 3, 2)}
	if diff := cmp.Diff(expected, faces); diff != "" {
		t.Errorf("faces mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildGridFaces_ThreeByTwo(t *testing.T) {
	faces, err := BuildGridFaces(3, 2)
	require.NoError(t, err)

	expected := FaceList{
		Tri(0, 1, 3), Tri(1, 4, 3),
		Tri(1, 2, 4), Tri(2, 5, 4),
	}
	if diff := cmp.Diff(expected, faces); diff != "" {
		t.Errorf("faces mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildGridFaces_Degenerate(t *testing.T) {
	for _, dims := range [][2]int{{1, 1}, {1, 5}, {5, 1}, {0, 0}} {
		_, err := BuildGridFaces(dims[0], dims[1])
		assert.ErrorIs(t, err, core.ErrInsufficientGeometry, "%dx%d", dims[0], dims[1])
	}
}

func TestProperty_BuildGridFaces(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		w := rapid.IntRange(2, 64).Draw(rt, "width")
		h := rapid.IntRange(2, 64).Draw(rt, "height")

		faces, err := BuildGridFaces(w, h)
		require.NoError(rt, err)
		require.Len(rt, faces, 2*(w-1)*(h-1))

		for fi, f := range faces {
			if f.Sides != 3 {
				rt.Fatalf("face %d has %d sides", fi, f.Sides)
			}
			for _, idx := range f.Vertices() {
				if idx < 0 || idx >= w*h {
					rt.Fatalf("face %d index %d outside [0,%d)", fi, idx, w*h)
				}
			}
		}
	})
}

func TestBuildSequentialFaces(t *testing.T) {
	faces, err := BuildSequentialFaces(5)
	require.NoError(t, err)
	expected := FaceList{Tri(0, 1, 2), Tri(1, 2, 3), Tri(2, 3, 4)}
	if diff := cmp.Diff(expected, faces); diff != "" {
		t.Errorf("faces mismatch (-want +got):\n%s", diff)
	}

	_, err = BuildSequentialFaces(2)
	assert.ErrorIs(t, err, core.ErrInsufficientGeometry)
}

func TestBuildFaces_GridRejectsSparse(t *testing.T) {
	f, err := core.GridFromSlice(2, 2, []float64{0, 0.5, 0.5, 0.5})
	require.NoError(t, err)
	cloud, err := Project(f, EmitSparseNonZero)
	require.NoError(t, err)

	_, err = BuildFaces(MeshGrid, cloud)
	assert.ErrorIs(t, err, core.ErrInvalidParameter)

	faces, err := BuildFaces(MeshSequential, cloud)
	require.NoError(t, err)
	assert.Equal(t, FaceList{Tri(0, 1, 2)}, faces)
}

func TestBuildMesh_ConstantFourByFour(t *testing.T) {
	cloud, err := Project(constantField(4, 4, 0.5), EmitDense)
	require.NoError(t, err)

	mesh, err := BuildMesh(cloud, MeshGrid)
	require.NoError(t, err)

	assert.Equal(t, 16, mesh.VertexCount())
	assert.Equal(t, 18, mesh.TriangleCount())
	for i, v := range mesh.Cloud.Vertices {
		assert.Equal(t, 0.5, v.Z, "vertex %d", i)
	}
}

func TestMesh_Validate(t *testing.T) {
	cloud, err := Project(constantField(2, 2, 0.1), EmitDense)
	require.NoError(t, err)

	tests := []struct {
		name  string
		faces FaceList
	}{
		{"index past end", FaceList{Tri(0, 1, 4)}},
		{"negative index", FaceList{Tri(-1, 1, 2)}},
		{"two sides", FaceList{{Indices: [4]int{0, 1}, Sides: 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMesh(cloud, tt.faces)
			assert.ErrorIs(t, err, core.ErrInvalidGeometry)
		})
	}

	_, err = NewMesh(nil, nil)
	assert.ErrorIs(t, err, core.ErrInvalidGeometry)
}

func TestMesh_EachTriangleSplitsQuads(t *testing.T) {
	cloud := &PointCloud{
		Vertices: []core.Vec3{
			core.NewVec3(0, 0, 0),
			core.NewVec3(1, 0, 0),
			core.NewVec3(1, 1, 0),
			core.NewVec3(0, 1, 0),
		},
		Width:  4,
		Height: 1,
	}
	mesh, err := NewMesh(cloud, FaceList{Quad(0, 1, 2, 3)})
	require.NoError(t, err)
	assert.Equal(t, 2, mesh.TriangleCount())

	var tris []Triangle
	require.NoError(t, mesh.EachTriangle(func(tri Triangle) error {
		tris = append(tris, tri)
		return nil
	}))
	require.Len(t, tris, 2)
	assert.Equal(t, cloud.Vertices[2], tris[0].V2)
	assert.Equal(t, cloud.Vertices[3], tris[1].V2)
	for _, tri := range tris {
		assert.Equal(t, core.NewVec3(0, 0, 1), tri.Normal())
	}
}

func TestTriangle_DegenerateNormal(t *testing.T) {
	p := core.NewVec3(1, 1, 1)
	assert.Equal(t, core.Vec3{}, Triangle{V0: p, V1: p, V2: p}.Normal())
}

func TestParseMeshStrategy(t *testing.T) {
	s, err := ParseMeshStrategy("sequential")
	require.NoError(t, err)
	assert.Equal(t, MeshSequential, s)

	s, err = ParseMeshStrategy("")
	require.NoError(t, err)
	assert.Equal(t, MeshGrid, s)

	_, err = ParseMeshStrategy("delaunay")
	assert.ErrorIs(t, err, core.ErrInvalidParameter)
}
