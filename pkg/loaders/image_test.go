package loaders

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-depthmesh/pkg/core"
)

// TestLoadImage creates a test PNG and verifies loading
func TestLoadImage(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.png")

	// Create a simple 2x2 opaque test image
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	img.Set(1, 0, color.RGBA{R: 255, G: 0, B: 0, A: 255})
	img.Set(0, 1, color.RGBA{R: 0, G: 255, B: 0, A: 255})
	img.Set(1, 1, color.RGBA{R: 0, G: 0, B: 255, A: 255})

	f, err := os.Create(testFile)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	raster, err := LoadImage(testFile)
	require.NoError(t, err)

	assert.Equal(t, 2, raster.Width)
	assert.Equal(t, 2, raster.Height)
	assert.Equal(t, 3, raster.Channels, "opaque images decode to three channels")

	// Verify colors (row-major order)
	assert.Equal(t, []uint8{
		255, 255, 255, 255, 0, 0,
		0, 255, 0, 0, 0, 255,
	}, raster.Pix)
}

func TestDecodeRaster_Channels(t *testing.T) {
	tests := []struct {
		name     string
		img      image.Image
		channels int
	}{
		{"gray", image.NewGray(image.Rect(0, 0, 3, 2)), 1},
		{"gray16", image.NewGray16(image.Rect(0, 0, 3, 2)), 1},
		{"transparent rgba", image.NewNRGBA(image.Rect(0, 0, 3, 2)), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodePNG(tt.img)
			require.NoError(t, err)

			raster, format, err := DecodeRaster(data)
			require.NoError(t, err)
			assert.Equal(t, "png", format)
			assert.Equal(t, tt.channels, raster.Channels)
			assert.Len(t, raster.Pix, 3*2*tt.channels)
		})
	}
}

func TestDecodeRaster_KeepsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 0})
	img.SetNRGBA(1, 0, color.NRGBA{R: 40, G: 50, B: 60, A: 128})

	data, err := EncodePNG(img)
	require.NoError(t, err)

	raster, _, err := DecodeRaster(data)
	require.NoError(t, err)
	require.Equal(t, 4, raster.Channels)
	assert.Equal(t, uint8(0), raster.Pix[3])
	assert.Equal(t, []uint8{40, 50, 60, 128}, raster.Pix[4:8])
}

func TestDecodeRaster_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("definitely not an image")},
		{"truncated png", []byte("\x89PNG\r\n\x1a\n\x00\x00")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeRaster(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrImageDecode)
		})
	}
}

func TestToImage_RoundTrip(t *testing.T) {
	raster := &core.RasterImage{Width: 2, Height: 1, Channels: 4, Pix: []uint8{1, 2, 3, 4, 5, 6, 7, 8}}
	img := ToImage(raster)

	back := FromImage(img)
	assert.Equal(t, raster, back)

	gray := &core.RasterImage{Width: 2, Height: 1, Channels: 1, Pix: []uint8{9, 200}}
	grayImg, ok := ToImage(gray).(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, uint8(200), grayImg.GrayAt(1, 0).Y)
}
