package geometry

import (
	"github.com/df07/go-depthmesh/pkg/core"
)

// Triangle is a resolved triangle with its vertex positions
type Triangle struct {
	V0, V1, V2 core.Vec3
}

// Normal returns the unit normal from the counter-clockwise winding V0, V1, V2.
// Degenerate triangles return the zero vector.
func (t Triangle) Normal() core.Vec3 {
	edge1 := t.V1.Subtract(t.V0)
	edge2 := t.V2.Subtract(t.V0)
	return edge1.Cross(edge2).Normalize()
}

// Mesh couples a point cloud with the faces indexing into it
type Mesh struct {
	Cloud *PointCloud
	Faces FaceList
}

// NewMesh builds a mesh and validates every face against the cloud
func NewMesh(cloud *PointCloud, faces FaceList) (*Mesh, error) {
	m := &Mesh{Cloud: cloud, Faces: faces}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// BuildMesh derives faces for cloud with strategy and returns the validated mesh
func BuildMesh(cloud *PointCloud, strategy MeshStrategy) (*Mesh, error) {
	faces, err := BuildFaces(strategy, cloud)
	if err != nil {
		return nil, err
	}
	return NewMesh(cloud, faces)
}

// Validate checks that every face is a triangle or quad whose indices
// address existing vertices
func (m *Mesh) Validate() error {
	if m.Cloud == nil {
		return core.NewError(core.StageMesh, core.ErrInvalidGeometry, "mesh has no point cloud")
	}
	n := m.Cloud.Len()
	for fi, f := range m.Faces {
		if f.Sides != 3 && f.Sides != 4 {
			return core.NewError(core.StageMesh, core.ErrInvalidGeometry, "face %d has %d sides", fi, f.Sides)
		}
		for _, idx := range f.Vertices() {
			if idx < 0 || idx >= n {
				return core.NewError(core.StageMesh, core.ErrInvalidGeometry,
					"face %d references vertex %d, cloud has %d", fi, idx, n)
			}
		}
	}
	return nil
}

// VertexCount returns the number of vertices
func (m *Mesh) VertexCount() int {
	return m.Cloud.Len()
}

// TriangleCount returns the number of triangles after quads are split
func (m *Mesh) TriangleCount() int {
	return m.Faces.TriangleCount()
}

// BoundingBox returns the axis-aligned bounds of the vertices
func (m *Mesh) BoundingBox() core.AABB {
	return m.Cloud.BoundingBox()
}

// EachTriangle resolves every face to positions and calls fn in face order,
// splitting quads as (0,1,2), (0,2,3). Iteration stops at the first error.
func (m *Mesh) EachTriangle(fn func(Triangle) error) error {
	v := m.Cloud.Vertices
	var scratch [2]Face
	for _, f := range m.Faces {
		for _, tri := range f.AppendTriangles(scratch[:0]) {
			i := tri.Indices
			if err := fn(Triangle{V0: v[i[0]], V1: v[i[1]], V2: v[i[2]]}); err != nil {
				return err
			}
		}
	}
	return nil
}
