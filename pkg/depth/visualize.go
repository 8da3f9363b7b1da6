package depth

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/df07/go-depthmesh/pkg/core"
)

// Visualize maps a [0,1] depth field linearly onto 8-bit grayscale
func Visualize(f core.DepthField) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	for i, v := range f.Data {
		img.Pix[i] = uint8(math.Round(clamp(v, 0, 1) * 255))
	}
	return img
}

// VisualizeLevels wraps 8-bit tone levels as a grayscale image
func VisualizeLevels(levels core.Grid[uint8]) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, levels.Width, levels.Height))
	copy(img.Pix, levels.Data)
	return img
}

// Histogram renders the distribution of depth samples as a PNG chart
func Histogram(f core.DepthField, bins int) ([]byte, error) {
	if bins <= 0 {
		return nil, core.NewError(core.StageDepth, core.ErrInvalidParameter, "histogram bins %d", bins)
	}
	if f.Len() == 0 {
		return nil, core.NewError(core.StageDepth, core.ErrInvalidParameter, "empty depth field")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Depth distribution (%dx%d)", f.Width, f.Height)
	p.X.Label.Text = "depth"
	p.Y.Label.Text = "cells"
	p.X.Min = 0
	p.X.Max = 1

	values := make(plotter.Values, len(f.Data))
	copy(values, f.Data)
	if isConstant(values) {
		// a zero-width range cannot be binned; widen it by one sample
		values = append(values, values[0]+1.0/float64(bins))
	}

	hist, err := plotter.NewHist(values, bins)
	if err != nil {
		return nil, fmt.Errorf("failed to build histogram: %w", err)
	}
	hist.LineStyle.Width = vg.Points(0.5)
	p.Add(hist)

	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("failed to render histogram: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode histogram: %w", err)
	}
	return buf.Bytes(), nil
}

func isConstant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
