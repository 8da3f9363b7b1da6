package pipeline

import (
	"math"

	"github.com/df07/go-depthmesh/pkg/core"
	"github.com/df07/go-depthmesh/pkg/export"
	"github.com/df07/go-depthmesh/pkg/geometry"
	"github.com/df07/go-depthmesh/pkg/preprocess"
)

// Options controls one export run
type Options struct {
	Format     string                  // dxf, stl or obj
	Resolution int                     // side of the square depth field; callers clamp it to their range
	Brightness int                     // offset on the 0..255 scale
	Gamma      float64                 // tone curve exponent, > 0
	DepthScale float64                 // multiplier on normalized depth before tone adjustment, > 0
	Scale      float64                 // uniform factor applied to x, y and z after projection, > 0
	Emission   geometry.EmissionPolicy // which depth cells become vertices
	Mesh       geometry.MeshStrategy   // how faces are derived
	STLASCII   bool                    // ASCII STL instead of binary
	STLNormals bool                    // computed facet normals instead of zero normals
}

// DefaultOptions returns dense grid meshing to binary STL at resolution 512
func DefaultOptions() Options {
	return Options{
		Format:     "stl",
		Resolution: 512,
		Gamma:      1,
		DepthScale: 1,
		Scale:      1,
		Emission:   geometry.EmitDense,
		Mesh:       geometry.MeshGrid,
	}
}

// Validate checks every option and returns the parsed format. The format is
// checked first so an unsupported one fails before any image work starts.
func (o Options) Validate() (export.Format, error) {
	format, err := export.ParseFormat(o.Format)
	if err != nil {
		return 0, err
	}
	if o.Resolution <= 0 {
		return 0, invalidOption("resolution %d must be positive", o.Resolution)
	}
	if !positive(o.Gamma) {
		return 0, invalidOption("gamma %v must be > 0", o.Gamma)
	}
	if !positive(o.DepthScale) {
		return 0, invalidOption("depth scale %v must be > 0", o.DepthScale)
	}
	if !positive(o.Scale) {
		return 0, invalidOption("scale %v must be > 0", o.Scale)
	}
	if o.Emission != geometry.EmitDense && o.Emission != geometry.EmitSparseNonZero {
		return 0, invalidOption("emission policy %d", int(o.Emission))
	}
	if format.NeedsFaces() {
		switch o.Mesh {
		case geometry.MeshGrid:
			if o.Emission != geometry.EmitDense {
				return 0, invalidOption("grid meshing needs dense emission, got %s", o.Emission)
			}
		case geometry.MeshSequential:
		default:
			return 0, invalidOption("mesh strategy %d", int(o.Mesh))
		}
	}
	return format, nil
}

// ExporterOptions returns the writer settings for the run
func (o Options) ExporterOptions() export.Options {
	return export.Options{STLASCII: o.STLASCII, STLNormals: o.STLNormals}
}

// PreviewOptions controls one preview run
type PreviewOptions struct {
	Resolution    int
	Brightness    int
	Gamma         float64
	Background    preprocess.Background // backdrop for transparent pixels
	Histogram     bool                  // also render the depth distribution chart
	HistogramBins int                   // 0 means 32
}

// DefaultPreviewOptions returns a white-backdrop preview at resolution 512
func DefaultPreviewOptions() PreviewOptions {
	return PreviewOptions{
		Resolution:    512,
		Gamma:         1,
		Background:    preprocess.BackgroundWhite,
		HistogramBins: 32,
	}
}

// Validate checks the preview options
func (o PreviewOptions) Validate() error {
	if o.Resolution <= 0 {
		return invalidOption("resolution %d must be positive", o.Resolution)
	}
	if !positive(o.Gamma) {
		return invalidOption("gamma %v must be > 0", o.Gamma)
	}
	if o.Background != preprocess.BackgroundWhite && o.Background != preprocess.BackgroundBlack {
		return invalidOption("background %d", int(o.Background))
	}
	if o.HistogramBins < 0 {
		return invalidOption("histogram bins %d", o.HistogramBins)
	}
	return nil
}

// ClampResolution limits resolution to [min, max]. Hosting layers call it
// before building Options.
func ClampResolution(resolution, min, max int) int {
	if resolution < min {
		return min
	}
	if resolution > max {
		return max
	}
	return resolution
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

func invalidOption(format string, args ...any) error {
	return core.NewError(core.StageOptions, core.ErrInvalidParameter, format, args...)
}
