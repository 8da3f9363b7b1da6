// Package preprocess normalizes decoded rasters into single-channel intensity grids.
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/draw"

	"github.com/df07/go-depthmesh/pkg/core"
	"github.com/df07/go-depthmesh/pkg/loaders"
)

// DefaultBackgroundThreshold is the intensity above which a pixel counts as background
const DefaultBackgroundThreshold = 240

// Background is the solid backdrop used when flattening transparency
type Background int

const (
	BackgroundWhite Background = iota
	BackgroundBlack
)

// ParseBackground converts "white" or "black" into a Background
func ParseBackground(s string) (Background, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "":
		return BackgroundWhite, nil
	case "black":
		return BackgroundBlack, nil
	default:
		return 0, core.NewError(core.StageOptions, core.ErrInvalidParameter,
			"background %q (valid: white, black)", s)
	}
}

func (b Background) String() string {
	switch b {
	case BackgroundWhite:
		return "white"
	case BackgroundBlack:
		return "black"
	default:
		return fmt.Sprintf("Background(%d)", int(b))
	}
}

// Color returns the backdrop color
func (b Background) Color() color.Gray {
	if b == BackgroundBlack {
		return color.Gray{Y: 0}
	}
	return color.Gray{Y: 255}
}

// ToGrayscale converts a raster to an intensity grid using BT.601 luma weights.
// Single-channel rasters pass through unchanged. Alpha is ignored here;
// use CompositeOnBackground when transparency must be honoured.
func ToGrayscale(img *core.RasterImage) (core.IntensityGrid, error) {
	if err := img.Validate(); err != nil {
		return core.IntensityGrid{}, err
	}

	grid := core.NewGrid[uint8](img.Width, img.Height)
	if img.Channels == 1 {
		copy(grid.Data, img.Pix)
		return grid, nil
	}

	for i := range grid.Data {
		p := img.Pix[i*img.Channels:]
		grid.Data[i] = luma(p[0], p[1], p[2])
	}
	return grid, nil
}

// BackgroundRemover classifies bright pixels as background with a hard threshold.
// It is not content-aware segmentation.
type BackgroundRemover struct {
	Threshold uint8 // pixels strictly above this are background
	Fill      uint8 // intensity written into background cells
}

// NewBackgroundRemover returns a remover with the default 240 threshold and white fill
func NewBackgroundRemover() *BackgroundRemover {
	return &BackgroundRemover{Threshold: DefaultBackgroundThreshold, Fill: 255}
}

// Remove returns a copy of g with background cells filled, plus the background mask
// (255 = background, treated as transparent; 0 = foreground).
func (r *BackgroundRemover) Remove(g core.IntensityGrid) (core.IntensityGrid, core.AlphaMask) {
	out := g.Clone()
	mask := core.NewGrid[uint8](g.Width, g.Height)
	for i, v := range g.Data {
		if v > r.Threshold {
			mask.Data[i] = 255
			out.Data[i] = r.Fill
		}
	}
	return out, mask
}

// RemoveBackground applies the default BackgroundRemover
func RemoveBackground(g core.IntensityGrid) (core.IntensityGrid, core.AlphaMask) {
	return NewBackgroundRemover().Remove(g)
}

// CompositeOnBackground flattens transparency onto a solid backdrop and converts
// the result to grayscale, so every pixel ends up with one opaque intensity.
func CompositeOnBackground(img *core.RasterImage, bg Background) (core.IntensityGrid, error) {
	if err := img.Validate(); err != nil {
		return core.IntensityGrid{}, err
	}
	if !img.HasAlpha() {
		return ToGrayscale(img)
	}

	rect := image.Rect(0, 0, img.Width, img.Height)
	dst := image.NewRGBA(rect)
	draw.Draw(dst, rect, image.NewUniform(bg.Color()), image.Point{}, draw.Src)
	draw.Draw(dst, rect, loaders.ToImage(img), image.Point{}, draw.Over)

	grid := core.NewGrid[uint8](img.Width, img.Height)
	for i := range grid.Data {
		p := dst.Pix[i*4:]
		grid.Data[i] = luma(p[0], p[1], p[2])
	}
	return grid, nil
}

// luma is the fixed-point BT.601 weighting also used by color.GrayModel
func luma(r, g, b uint8) uint8 {
	return uint8((19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 1<<15) >> 16)
}
