package loaders

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	"image/png"
	"os"

	_ "golang.org/x/image/bmp"  // BMP decoder
	_ "golang.org/x/image/tiff" // TIFF decoder
	_ "golang.org/x/image/webp" // WebP decoder

	"github.com/df07/go-depthmesh/pkg/core"
)

// DecodeRaster decodes PNG, JPEG, GIF, BMP, TIFF or WebP bytes into a RasterImage.
// It returns the detected format name alongside the raster.
func DecodeRaster(data []byte) (*core.RasterImage, string, error) {
	if len(data) == 0 {
		return nil, "", core.NewError(core.StageDecode, core.ErrImageDecode, "empty input")
	}

	// Decode image (auto-detects the encoding from the header)
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", core.WrapError(core.StageDecode, core.ErrImageDecode, err, "%d input bytes", len(data))
	}

	raster := FromImage(img)
	if err := raster.Validate(); err != nil {
		return nil, "", err
	}
	return raster, format, nil
}

// LoadImage reads and decodes an image file
func LoadImage(filename string) (*core.RasterImage, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	raster, _, err := DecodeRaster(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", filename, err)
	}
	return raster, nil
}

// FromImage converts a decoded image into an interleaved 8-bit raster.
// Gray images keep one channel, opaque color images get three,
// and anything with transparency gets four (straight alpha).
func FromImage(img image.Image) *core.RasterImage {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	switch src := img.(type) {
	case *image.Gray:
		pix := make([]uint8, width*height)
		for y := 0; y < height; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+width]
			copy(pix[y*width:], row)
		}
		return &core.RasterImage{Width: width, Height: height, Channels: 1, Pix: pix}
	case *image.Gray16:
		pix := make([]uint8, width*height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				pix[y*width+x] = uint8(src.Gray16At(x+bounds.Min.X, y+bounds.Min.Y).Y >> 8)
			}
		}
		return &core.RasterImage{Width: width, Height: height, Channels: 1, Pix: pix}
	}

	channels := 3
	if !isOpaque(img) {
		channels = 4
	}

	pix := make([]uint8, width*height*channels)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBAModel.Convert(img.At(x+bounds.Min.X, y+bounds.Min.Y)).(color.NRGBA)
			offset := (y*width + x) * channels
			pix[offset] = c.R
			pix[offset+1] = c.G
			pix[offset+2] = c.B
			if channels == 4 {
				pix[offset+3] = c.A
			}
		}
	}

	return &core.RasterImage{Width: width, Height: height, Channels: channels, Pix: pix}
}

// ToImage converts a raster back into a standard library image.
// Single-channel rasters become *image.Gray, everything else *image.NRGBA.
func ToImage(raster *core.RasterImage) image.Image {
	rect := image.Rect(0, 0, raster.Width, raster.Height)
	if raster.Channels == 1 {
		gray := image.NewGray(rect)
		copy(gray.Pix, raster.Pix)
		return gray
	}

	out := image.NewNRGBA(rect)
	for i := 0; i < raster.Width*raster.Height; i++ {
		src := raster.Pix[i*raster.Channels:]
		dst := out.Pix[i*4:]
		dst[0], dst[1], dst[2], dst[3] = src[0], src[1], src[2], 255
		if raster.Channels == 4 {
			dst[3] = src[3]
		}
	}
	return out
}

// EncodePNG encodes an image as PNG bytes
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isOpaque reports whether every pixel of img is fully opaque
func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}
