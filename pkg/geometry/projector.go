package geometry

import (
	"fmt"
	"math"
	"strings"

	"github.com/df07/go-depthmesh/pkg/core"
)

// EmissionPolicy selects which depth cells become vertices
type EmissionPolicy int

const (
	// EmitDense emits every cell, keeping the full row-major grid
	EmitDense EmissionPolicy = iota
	// EmitSparseNonZero emits only cells with strictly positive depth
	EmitSparseNonZero
)

// ParseEmissionPolicy converts "dense" or "sparse-nonzero" into a policy
func ParseEmissionPolicy(s string) (EmissionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dense", "":
		return EmitDense, nil
	case "sparse-nonzero", "sparse":
		return EmitSparseNonZero, nil
	default:
		return 0, core.NewError(core.StageOptions, core.ErrInvalidParameter,
			"emission policy %q (valid: dense, sparse-nonzero)", s)
	}
}

func (p EmissionPolicy) String() string {
	switch p {
	case EmitDense:
		return "dense"
	case EmitSparseNonZero:
		return "sparse-nonzero"
	default:
		return fmt.Sprintf("EmissionPolicy(%d)", int(p))
	}
}

// PointCloud is an ordered vertex list. Dense clouds keep the grid shape,
// so vertex (x, y) sits at index y*Width+x.
type PointCloud struct {
	Vertices []core.Vec3
	Width    int // source grid width
	Height   int // source grid height
	Policy   EmissionPolicy
}

// IsGrid reports whether the cloud still has one vertex per grid cell in row-major order
func (pc *PointCloud) IsGrid() bool {
	return pc.Policy == EmitDense && len(pc.Vertices) == pc.Width*pc.Height
}

// Len returns the number of vertices
func (pc *PointCloud) Len() int {
	return len(pc.Vertices)
}

// Scale multiplies every coordinate by factor, converting pixel units to a physical size
func (pc *PointCloud) Scale(factor float64) {
	if factor == 1 {
		return
	}
	for i, v := range pc.Vertices {
		pc.Vertices[i] = v.Multiply(factor)
	}
}

// BoundingBox returns the box enclosing every vertex
func (pc *PointCloud) BoundingBox() core.AABB {
	return core.NewAABBFromPoints(pc.Vertices...)
}

// Project lifts a depth field into 3D: cell (x, y) becomes vertex (x, y, depth(x, y)).
// Coordinates are integer pixel positions; vertices are emitted y outer, x inner.
func Project(field core.DepthField, policy EmissionPolicy) (*PointCloud, error) {
	if len(field.Data) != field.Width*field.Height {
		return nil, core.NewError(core.StageProject, core.ErrInvalidGeometry,
			"depth field %dx%d has %d samples", field.Width, field.Height, len(field.Data))
	}

	capacity := len(field.Data)
	if policy == EmitSparseNonZero {
		capacity = 0
		for _, z := range field.Data {
			if z > 0 {
				capacity++
			}
		}
	}

	cloud := &PointCloud{
		Vertices: make([]core.Vec3, 0, capacity),
		Width:    field.Width,
		Height:   field.Height,
		Policy:   policy,
	}

	for y := 0; y < field.Height; y++ {
		for x := 0; x < field.Width; x++ {
			z := field.At(x, y)
			if math.IsNaN(z) || math.IsInf(z, 0) {
				return nil, core.NewError(core.StageProject, core.ErrInvalidGeometry, "non-finite depth %v at (%d,%d)", z, x, y)
			}
			switch policy {
			case EmitDense:
			case EmitSparseNonZero:
				if !(z > 0) {
					continue
				}
			default:
				return nil, core.NewError(core.StageProject, core.ErrInvalidParameter, "unknown emission policy %d", int(policy))
			}
			cloud.Vertices = append(cloud.Vertices, core.NewVec3(float64(x), float64(y), z))
		}
	}

	return cloud, nil
}
