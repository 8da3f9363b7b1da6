package export

import (
	"bufio"
	"io"
	"strconv"

	"github.com/df07/go-depthmesh/pkg/geometry"
)

// DXFVersion is the AutoCAD R12 drawing version written to $ACADVER
const DXFVersion = "AC1009"

// DXF writes every vertex as a POINT entity on layer 0. Faces are ignored.
type DXF struct{}

func (DXF) Format() Format { return FormatDXF }

// Export writes an ASCII R12 drawing with HEADER, TABLES (LTYPE, LAYER) and
// ENTITIES sections.
// Points follow cloud order with no deduplication.
func (DXF) Export(w io.Writer, cloud *geometry.PointCloud, _ geometry.FaceList) error {
	if err := validateVertices(FormatDXF, cloud); err != nil {
		return err
	}

	dw := &dxfWriter{w: bufio.NewWriterSize(w, 64*1024)}

	dw.section("HEADER")
	dw.pair(9, "$ACADVER")
	dw.pair(1, DXFVersion)
	dw.endSection()

	dw.section("TABLES")
	dw.pair(0, "TABLE")
	dw.pair(2, "LTYPE")
	dw.pair(70, "1")
	dw.pair(0, "LTYPE")
	dw.pair(2, "CONTINUOUS")
	dw.pair(70, "0")
	dw.pair(3, "Solid line")
	dw.pair(72, "65")
	dw.pair(73, "0")
	dw.pair(40, "0.0")
	dw.pair(0, "ENDTAB")
	dw.pair(0, "TABLE")
	dw.pair(2, "LAYER")
	dw.pair(70, "1")
	dw.pair(0, "LAYER")
	dw.pair(2, "0")
	dw.pair(70, "0")
	dw.pair(62, "7")
	dw.pair(6, "CONTINUOUS")
	dw.pair(0, "ENDTAB")
	dw.endSection()

	dw.section("ENTITIES")
	for _, v := range cloud.Vertices {
		dw.pair(0, "POINT")
		dw.pair(8, "0")
		dw.coord(10, v.X)
		dw.coord(20, v.Y)
		dw.coord(30, v.Z)
	}
	dw.endSection()
	dw.pair(0, "EOF")

	if err := dw.w.Flush(); err != nil {
		return ioError(FormatDXF, err)
	}
	return nil
}

// dxfWriter emits group code/value pairs. bufio.Writer keeps the first
// write error, which Flush reports.
type dxfWriter struct {
	w   *bufio.Writer
	buf []byte
}

func (dw *dxfWriter) pair(code int, value string) {
	dw.buf = strconv.AppendInt(dw.buf[:0], int64(code), 10)
	dw.buf = append(dw.buf, '\n')
	dw.buf = append(dw.buf, value...)
	dw.buf = append(dw.buf, '\n')
	dw.w.Write(dw.buf)
}

func (dw *dxfWriter) coord(code int, v float64) {
	dw.pair(code, formatFloat(v))
}

func (dw *dxfWriter) section(name string) {
	dw.pair(0, "SECTION")
	dw.pair(2, name)
}

func (dw *dxfWriter) endSection() {
	dw.pair(0, "ENDSEC")
}

// formatFloat writes the shortest representation that round-trips
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
