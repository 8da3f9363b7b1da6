// Package depth derives normalized height fields from intensity grids.
//
// The synthesizer is a replaceable stage: anything that maps an IntensityGrid
// to a square DepthField with samples in [0,1] satisfies the contract. The
// implementation here is a resize + blur + normalize heuristic, not a learned
// depth model.
package depth

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/df07/go-depthmesh/pkg/core"
)

// DefaultBlurKernel is the side length of the smoothing kernel
const DefaultBlurKernel = 5

// Params controls one synthesis run
type Params struct {
	Resolution int     // output side length; callers clamp it to their configured range
	Brightness int     // offset added on the 0..255 scale
	Gamma      float64 // tone curve exponent, must be > 0
	DepthScale float64 // multiplier applied before tone adjustment; 0 means 1
}

// Synthesizer turns intensity grids into depth fields
type Synthesizer struct {
	BlurKernel int // odd kernel side, 1 disables smoothing
}

// NewSynthesizer creates a synthesizer with the default 5x5 blur
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{BlurKernel: DefaultBlurKernel}
}

// Synthesize runs the full chain: resize, blur, normalize, depth scale,
// tone adjustment and a final renormalization. Every sample of the result
// lies in [0,1] whatever the brightness and gamma settings.
func (s *Synthesizer) Synthesize(g core.IntensityGrid, p Params) (core.DepthField, error) {
	base, err := s.Base(g, p.Resolution)
	if err != nil {
		return core.DepthField{}, err
	}

	scaled, err := ApplyDepthScale(base, p.DepthScale)
	if err != nil {
		return core.DepthField{}, err
	}

	levels, err := ApplyTone(scaled, p.Brightness, p.Gamma)
	if err != nil {
		return core.DepthField{}, err
	}

	return Renormalize(levels), nil
}

// Base resizes g to resolution x resolution, smooths it and min-max normalizes it to [0,1]
func (s *Synthesizer) Base(g core.IntensityGrid, resolution int) (core.DepthField, error) {
	if resolution <= 0 {
		return core.DepthField{}, core.NewError(core.StageDepth, core.ErrInvalidParameter, "resolution %d", resolution)
	}
	if g.Width <= 0 || g.Height <= 0 || len(g.Data) != g.Width*g.Height {
		return core.DepthField{}, core.NewError(core.StageDepth, core.ErrInvalidParameter,
			"intensity grid %dx%d with %d samples", g.Width, g.Height, len(g.Data))
	}

	kernel := s.BlurKernel
	if kernel <= 0 {
		kernel = DefaultBlurKernel
	}
	if kernel%2 == 0 {
		return core.DepthField{}, core.NewError(core.StageDepth, core.ErrInvalidParameter, "blur kernel %d must be odd", kernel)
	}

	resized := Resize(g, resolution, resolution)
	field := core.Map(resized, func(v uint8) float64 { return float64(v) })
	return Normalize(GaussianBlur(field, kernel)), nil
}

// Resize scales g to width x height, one axis at a time. A shrinking axis is
// area-weighted: each output cell is the overlap-weighted mean of the source
// pixels it covers, so fractional ratios keep thin features. A growing axis
// is interpolated linearly between pixel centers.
func Resize(g core.IntensityGrid, width, height int) core.IntensityGrid {
	xTaps := resizeTaps(g.Width, width)
	yTaps := resizeTaps(g.Height, height)

	rows := core.NewGrid[float64](width, g.Height)
	for y := 0; y < g.Height; y++ {
		row := g.Data[y*g.Width : (y+1)*g.Width]
		for x, taps := range xTaps {
			var sum float64
			for _, t := range taps {
				sum += float64(row[t.src]) * t.weight
			}
			rows.Data[y*width+x] = sum
		}
	}

	out := core.NewGrid[uint8](width, height)
	for y, taps := range yTaps {
		for x := 0; x < width; x++ {
			var sum float64
			for _, t := range taps {
				sum += rows.Data[t.src*width+x] * t.weight
			}
			out.Data[y*width+x] = uint8(clamp(math.Round(sum), 0, 255))
		}
	}
	return out
}

// tap is one source pixel's share of an output cell
type tap struct {
	src    int
	weight float64
}

// resizeTaps maps each of dst output cells onto source pixels along one axis.
// The weights of one cell always sum to 1.
func resizeTaps(srcLen, dst int) [][]tap {
	if dst > srcLen {
		return linearTaps(srcLen, dst)
	}
	return areaTaps(srcLen, dst)
}

func areaTaps(srcLen, dst int) [][]tap {
	scale := float64(srcLen) / float64(dst)
	taps := make([][]tap, dst)
	for i := range taps {
		lo, hi := float64(i)*scale, float64(i+1)*scale
		last := min(int(math.Ceil(hi)), srcLen)
		for j := int(math.Floor(lo)); j < last; j++ {
			overlap := math.Min(hi, float64(j+1)) - math.Max(lo, float64(j))
			if overlap > 1e-12 {
				taps[i] = append(taps[i], tap{src: j, weight: overlap / scale})
			}
		}
	}
	return taps
}

func linearTaps(srcLen, dst int) [][]tap {
	scale := float64(srcLen) / float64(dst)
	taps := make([][]tap, dst)
	for i := range taps {
		center := clamp((float64(i)+0.5)*scale-0.5, 0, float64(srcLen-1))
		j := int(math.Floor(center))
		frac := center - float64(j)
		taps[i] = []tap{{src: j, weight: 1 - frac}}
		if frac > 0 {
			taps[i] = append(taps[i], tap{src: j + 1, weight: frac})
		}
	}
	return taps
}

// ApplyDepthScale multiplies every sample by scale. A zero scale leaves the field unchanged.
func ApplyDepthScale(f core.DepthField, scale float64) (core.DepthField, error) {
	if scale == 0 || scale == 1 {
		return f, nil
	}
	if scale < 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return core.DepthField{}, core.NewError(core.StageDepth, core.ErrInvalidParameter, "depth scale %v must be positive", scale)
	}
	out := f.Clone()
	floats.Scale(scale, out.Data)
	return out, nil
}

// ApplyTone maps the field onto 0..255, adds brightness, clamps, then applies
// output = 255 * (value/255)^gamma. Values are truncated to 8-bit levels at
// both steps.
func ApplyTone(f core.DepthField, brightness int, gamma float64) (core.Grid[uint8], error) {
	if !(gamma > 0) || math.IsInf(gamma, 0) {
		return core.Grid[uint8]{}, core.NewError(core.StageDepth, core.ErrInvalidParameter, "gamma %v must be > 0", gamma)
	}

	levels := core.NewGrid[uint8](f.Width, f.Height)
	for i, v := range f.Data {
		shifted := clamp(v*255+float64(brightness), 0, 255)
		level := math.Floor(shifted)
		curved := 255 * math.Pow(level/255, gamma)
		levels.Data[i] = uint8(clamp(math.Floor(curved), 0, 255))
	}
	return levels, nil
}

// Renormalize converts 8-bit levels back into a [0,1] field with a min-max pass
func Renormalize(levels core.Grid[uint8]) core.DepthField {
	return Normalize(core.Map(levels, func(v uint8) float64 { return float64(v) }))
}

// Normalize min-max scales f into [0,1]. A constant field maps to all zeros.
func Normalize(f core.DepthField) core.DepthField {
	out := f.Clone()
	if len(out.Data) == 0 {
		return out
	}

	lo, hi := floats.Min(out.Data), floats.Max(out.Data)
	if !(hi-lo > 1e-12) {
		for i := range out.Data {
			out.Data[i] = 0
		}
		return out
	}

	floats.AddConst(-lo, out.Data)
	floats.Scale(1/(hi-lo), out.Data)
	for i, v := range out.Data {
		out.Data[i] = clamp(v, 0, 1)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
