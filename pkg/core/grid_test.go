package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrid_RowMajorLayout(t *testing.T) {
	g := NewGrid[int](3, 2)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			g.Set(x, y, y*10+x)
		}
	}

	assert.Equal(t, []int{0, 1, 2, 10, 11, 12}, g.Data)
	assert.Equal(t, 4, g.Index(1, 1))
	assert.Equal(t, 12, g.At(2, 1))
	assert.Equal(t, 6, g.Len())
	assert.True(t, g.InBounds(2, 1))
	assert.False(t, g.InBounds(3, 0))
	assert.False(t, g.InBounds(0, -1))
}

func TestGridFromSlice(t *testing.T) {
	g, err := GridFromSlice(2, 2, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 3.0, g.At(0, 1))

	_, err = GridFromSlice(3, 2, []float64{1, 2, 3, 4})
	assert.Error(t, err, "stride mismatch must be rejected")
}

func TestGrid_CloneAndMap(t *testing.T) {
	g := NewGrid[uint8](2, 1)
	g.Data[0], g.Data[1] = 10, 20

	c := g.Clone()
	c.Data[0] = 99
	assert.Equal(t, uint8(10), g.Data[0], "clone must not alias")

	f := Map(g, func(v uint8) float64 { return float64(v) / 10 })
	assert.Equal(t, []float64{1, 2}, f.Data)
	assert.Equal(t, g.Width, f.Width)
	assert.Equal(t, g.Height, f.Height)
}

func TestRasterImage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		img     *RasterImage
		wantErr bool
	}{
		{"gray", &RasterImage{Width: 2, Height: 2, Channels: 1, Pix: make([]uint8, 4)}, false},
		{"rgb", &RasterImage{Width: 2, Height: 1, Channels: 3, Pix: make([]uint8, 6)}, false},
		{"rgba", &RasterImage{Width: 1, Height: 1, Channels: 4, Pix: make([]uint8, 4)}, false},
		{"two channels", &RasterImage{Width: 1, Height: 1, Channels: 2, Pix: make([]uint8, 2)}, true},
		{"short buffer", &RasterImage{Width: 2, Height: 2, Channels: 3, Pix: make([]uint8, 11)}, true},
		{"empty", &RasterImage{Width: 0, Height: 0, Channels: 1}, true},
		{"nil", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.img.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrImageDecode)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStageError(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapError(StageExport, ErrExportIO, cause, "writing %s", "out.stl")

	assert.ErrorIs(t, err, ErrExportIO)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrInvalidGeometry)
	assert.Equal(t, "export: export I/O error: writing out.stl: disk full", err.Error())
	assert.Equal(t, ErrExportIO, KindOf(err))

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageExport, stageErr.Stage)

	plain := NewError(StageMesh, ErrInsufficientGeometry, "grid %dx%d", 1, 5)
	assert.Equal(t, "mesh: insufficient geometry: grid 1x5", plain.Error())
	assert.Nil(t, KindOf(errors.New("other")))
}
