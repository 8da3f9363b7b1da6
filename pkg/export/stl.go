package export

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/df07/go-depthmesh/pkg/core"
	"github.com/df07/go-depthmesh/pkg/geometry"
)

const (
	stlHeaderSize = 80
	stlRecordSize = 50 // normal + 3 vertices as float32, then a uint16 attribute
	stlSolidName  = "depthmesh"
)

// STL writes a triangle soup. Quads are split along the 0-2 diagonal.
type STL struct {
	ASCII   bool // facet/outer loop text instead of the 50-byte binary records
	Normals bool // cross-product facet normals; zero normals otherwise
}

func (STL) Format() Format { return FormatSTL }

// Export writes one record per triangle. Binary output is exactly
// 80 + 4 + 50*triangles bytes.
func (s STL) Export(w io.Writer, cloud *geometry.PointCloud, faces geometry.FaceList) error {
	mesh, err := validateTopology(FormatSTL, cloud, faces)
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(w, 64*1024)
	if s.ASCII {
		err = s.writeASCII(bw, mesh)
	} else {
		err = s.writeBinary(bw, mesh)
	}
	if err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return ioError(FormatSTL, err)
	}
	return nil
}

func (s STL) normal(t geometry.Triangle) core.Vec3 {
	if !s.Normals {
		return core.Vec3{}
	}
	return t.Normal()
}

func (s STL) writeBinary(bw *bufio.Writer, mesh *geometry.Mesh) error {
	count := mesh.TriangleCount()
	if uint64(count) > math.MaxUint32 {
		return core.NewError(core.StageExport, core.ErrInvalidGeometry, "%d triangles exceed the binary STL limit", count)
	}

	// the header must not start with "solid" or readers take it for ASCII
	var prefix [stlHeaderSize + 4]byte
	copy(prefix[:stlHeaderSize], "binary STL written by "+stlSolidName)
	binary.LittleEndian.PutUint32(prefix[stlHeaderSize:], uint32(count))
	if _, err := bw.Write(prefix[:]); err != nil {
		return ioError(FormatSTL, err)
	}

	var record [stlRecordSize]byte
	return mesh.EachTriangle(func(t geometry.Triangle) error {
		putVec3(record[0:], s.normal(t))
		putVec3(record[12:], t.V0)
		putVec3(record[24:], t.V1)
		putVec3(record[36:], t.V2)
		// attribute byte count stays zero
		if _, err := bw.Write(record[:]); err != nil {
			return ioError(FormatSTL, err)
		}
		return nil
	})
}

func putVec3(b []byte, v core.Vec3) {
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(float32(v.X)))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(float32(v.Y)))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(float32(v.Z)))
}

func (s STL) writeASCII(bw *bufio.Writer, mesh *geometry.Mesh) error {
	fmt.Fprintf(bw, "solid %s\n", stlSolidName)
	err := mesh.EachTriangle(func(t geometry.Triangle) error {
		n := s.normal(t)
		fmt.Fprintf(bw, "  facet normal %e %e %e\n", n.X, n.Y, n.Z)
		bw.WriteString("    outer loop\n")
		for _, v := range [3]core.Vec3{t.V0, t.V1, t.V2} {
			fmt.Fprintf(bw, "      vertex %e %e %e\n", v.X, v.Y, v.Z)
		}
		bw.WriteString("    endloop\n")
		_, err := bw.WriteString("  endfacet\n")
		if err != nil {
			return ioError(FormatSTL, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(bw, "endsolid %s\n", stlSolidName); err != nil {
		return ioError(FormatSTL, err)
	}
	return nil
}
