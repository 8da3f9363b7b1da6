package export

import (
	"bufio"
	"io"
	"strconv"

	"github.com/df07/go-depthmesh/pkg/core"
	"github.com/df07/go-depthmesh/pkg/geometry"
)

// OBJ writes Wavefront OBJ: one "v x y z" line per vertex in cloud order,
// then one "f" line per face with 1-based indices.
type OBJ struct{}

func (OBJ) Format() Format { return FormatOBJ }

func (OBJ) Export(w io.Writer, cloud *geometry.PointCloud, faces geometry.FaceList) error {
	if _, err := validateTopology(FormatOBJ, cloud, faces); err != nil {
		return err
	}

	bw := bufio.NewWriterSize(w, 64*1024)
	var line []byte

	bw.WriteString("# depthmesh\n")
	for _, v := range cloud.Vertices {
		line = append(line[:0], 'v')
		for _, c := range [3]float64{v.X, v.Y, v.Z} {
			line = append(line, ' ')
			line = strconv.AppendFloat(line, c, 'f', -1, 64)
		}
		line = append(line, '\n')
		bw.Write(line)
	}

	for fi, f := range faces {
		line = append(line[:0], 'f')
		for _, idx := range f.Vertices() {
			oneBased := idx + 1
			if oneBased <= 0 {
				return core.NewError(core.StageExport, core.ErrInvalidGeometry,
					"face %d has index %d after 1-based conversion", fi, oneBased)
			}
			line = append(line, ' ')
			line = strconv.AppendInt(line, int64(oneBased), 10)
		}
		line = append(line, '\n')
		bw.Write(line)
	}

	if err := bw.Flush(); err != nil {
		return ioError(FormatOBJ, err)
	}
	return nil
}
