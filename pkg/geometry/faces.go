package geometry

import (
	"fmt"
	"strings"

	"github.com/df07/go-depthmesh/pkg/core"
)

// Face is a triangle or quad of indices into a PointCloud
type Face struct {
	Indices [4]int
	Sides   int // 3 or 4
}

// Tri creates a triangular face
func Tri(a, b, c int) Face {
	return Face{Indices: [4]int{a, b, c, 0}, Sides: 3}
}

// Quad creates a quadrilateral face
func Quad(a, b, c, d int) Face {
	return Face{Indices: [4]int{a, b, c, d}, Sides: 4}
}

// Vertices returns the face's indices
func (f Face) Vertices() []int {
	if f.Sides < 0 || f.Sides > 4 {
		return nil
	}
	return f.Indices[:f.Sides]
}

// AppendTriangles appends f to dst as triangles. Quads split along the
// fixed 0-2 diagonal into (0,1,2) and (0,2,3).
func (f Face) AppendTriangles(dst []Face) []Face {
	if f.Sides == 4 {
		i := f.Indices
		return append(dst, Tri(i[0], i[1], i[2]), Tri(i[0], i[2], i[3]))
	}
	return append(dst, f)
}

// FaceList is the mesh topology over a PointCloud
type FaceList []Face

// TriangleCount returns the number of triangles after quads are split
func (fl FaceList) TriangleCount() int {
	n := 0
	for _, f := range fl {
		if f.Sides == 4 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// MeshStrategy selects how topology is derived from a point cloud
type MeshStrategy int

const (
	// MeshGrid splits every 2x2 cell block of a dense grid into two triangles
	MeshGrid MeshStrategy = iota
	// MeshSequential builds a triangle strip over the vertices in emission order
	MeshSequential
)

// ParseMeshStrategy converts "grid" or "sequential" into a strategy
func ParseMeshStrategy(s string) (MeshStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "grid", "":
		return MeshGrid, nil
	case "sequential", "strip":
		return MeshSequential, nil
	default:
		return 0, core.NewError(core.StageOptions, core.ErrInvalidParameter,
			"mesh strategy %q (valid: grid, sequential)", s)
	}
}

func (s MeshStrategy) String() string {
	switch s {
	case MeshGrid:
		return "grid"
	case MeshSequential:
		return "sequential"
	default:
		return fmt.Sprintf("MeshStrategy(%d)", int(s))
	}
}

// BuildGridFaces triangulates a width x height row-major grid. For each cell
// origin i = y*width+x it emits (i, i+1, i+width) and (i+1, i+width+1, i+width),
// giving 2*(width-1)*(height-1) faces.
func BuildGridFaces(width, height int) (FaceList, error) {
	if width < 2 || height < 2 {
		return nil, core.NewError(core.StageMesh, core.ErrInsufficientGeometry,
			"grid %dx%d has no 2x2 cell", width, height)
	}

	faces := make(FaceList, 0, 2*(width-1)*(height-1))
	for y := 0; y < height-1; y++ {
		for x := 0; x < width-1; x++ {
			i := y*width + x
			faces = append(faces,
				Tri(i, i+1, i+width),
				Tri(i+1, i+width+1, i+width),
			)
		}
	}
	return faces, nil
}

// BuildSequentialFaces triangulates n vertices as a strip in emission order:
// (i, i+1, i+2) for i in [0, n-3]. Winding alternates along the strip.
func BuildSequentialFaces(n int) (FaceList, error) {
	if n < 3 {
		return nil, core.NewError(core.StageMesh, core.ErrInsufficientGeometry,
			"%d points, need at least 3 to triangulate", n)
	}

	faces := make(FaceList, 0, n-2)
	for i := 0; i+2 < n; i++ {
		faces = append(faces, Tri(i, i+1, i+2))
	}
	return faces, nil
}

// BuildFaces derives topology for cloud with the chosen strategy.
// Grid meshing assumes a full row-major grid, so it only accepts dense clouds.
func BuildFaces(strategy MeshStrategy, cloud *PointCloud) (FaceList, error) {
	switch strategy {
	case MeshGrid:
		if !cloud.IsGrid() {
			return nil, core.NewError(core.StageMesh, core.ErrInvalidParameter,
				"grid meshing requires dense emission, got %s with %d of %dx%d vertices",
				cloud.Policy, cloud.Len(), cloud.Width, cloud.Height)
		}
		return BuildGridFaces(cloud.Width, cloud.Height)
	case MeshSequential:
		return BuildSequentialFaces(cloud.Len())
	default:
		return nil, core.NewError(core.StageMesh, core.ErrInvalidParameter, "unknown mesh strategy %d", int(strategy))
	}
}
