package core

import "fmt"

// RasterImage is a decoded image with interleaved 8-bit channels.
// Channels is 1 (gray), 3 (RGB) or 4 (RGBA, straight alpha).
type RasterImage struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// IntensityGrid holds one 8-bit intensity sample per pixel
type IntensityGrid = Grid[uint8]

// AlphaMask marks background pixels with 255 and foreground pixels with 0
type AlphaMask = Grid[uint8]

// DepthField holds normalized height samples in [0,1]
type DepthField = Grid[float64]

// Validate checks the buffer length invariant
func (img *RasterImage) Validate() error {
	if img == nil {
		return NewError(StageDecode, ErrImageDecode, "nil raster")
	}
	switch img.Channels {
	case 1, 3, 4:
	default:
		return NewError(StageDecode, ErrImageDecode, "unsupported channel count %d", img.Channels)
	}
	if img.Width <= 0 || img.Height <= 0 {
		return NewError(StageDecode, ErrImageDecode, "invalid dimensions %dx%d", img.Width, img.Height)
	}
	if want := img.Width * img.Height * img.Channels; len(img.Pix) != want {
		return NewError(StageDecode, ErrImageDecode,
			"pixel buffer has %d bytes, want %d for %dx%dx%d", len(img.Pix), want, img.Width, img.Height, img.Channels)
	}
	return nil
}

// HasAlpha reports whether the raster carries an alpha channel
func (img *RasterImage) HasAlpha() bool {
	return img.Channels == 4
}

// String describes the raster shape
func (img *RasterImage) String() string {
	return fmt.Sprintf("%dx%d/%dch", img.Width, img.Height, img.Channels)
}
