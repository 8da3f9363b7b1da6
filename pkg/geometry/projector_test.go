package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-depthmesh/pkg/core"
)

func constantField(width, height int, z float64) core.DepthField {
	f := core.NewGrid[float64](width, height)
	for i := range f.Data {
		f.Data[i] = z
	}
	return f
}

func TestProject_Dense(t *testing.T) {
	f, err := core.GridFromSlice(3, 2, []float64{
		0.0, 0.1, 0.2,
		0.3, 0.4, 0.5,
	})
	require.NoError(t, err)

	cloud, err := Project(f, EmitDense)
	require.NoError(t, err)
	require.Equal(t, 6, cloud.Len())
	assert.True(t, cloud.IsGrid())

	// row-major, y outer and x inner
	assert.Equal(t, core.NewVec3(0, 0, 0), cloud.Vertices[0])
	assert.Equal(t, core.NewVec3(2, 0, 0.2), cloud.Vertices[2])
	assert.Equal(t, core.NewVec3(0, 1, 0.3), cloud.Vertices[3])
	assert.Equal(t, core.NewVec3(2, 1, 0.5), cloud.Vertices[5])
}

func TestProject_SparseSkipsZeroDepth(t *testing.T) {
	f, err := core.GridFromSlice(2, 2, []float64{0, 0.5, 0.25, 0})
	require.NoError(t, err)

	cloud, err := Project(f, EmitSparseNonZero)
	require.NoError(t, err)
	assert.False(t, cloud.IsGrid())
	assert.Equal(t, []core.Vec3{
		core.NewVec3(1, 0, 0.5),
		core.NewVec3(0, 1, 0.25),
	}, cloud.Vertices)
}

func TestProject_AllZeroSparseIsEmpty(t *testing.T) {
	cloud, err := Project(core.NewGrid[float64](4, 4), EmitSparseNonZero)
	require.NoError(t, err)
	assert.Equal(t, 0, cloud.Len())
}

func TestProject_RejectsNonFiniteDepth(t *testing.T) {
	for _, z := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		f := constantField(2, 2, 0.5)
		f.Set(1, 1, z)
		_, err := Project(f, EmitDense)
		assert.ErrorIs(t, err, core.ErrInvalidGeometry, "depth %v", z)
	}
}

func TestPointCloud_ScaleAndBounds(t *testing.T) {
	cloud, err := Project(constantField(3, 3, 0.5), EmitDense)
	require.NoError(t, err)

	cloud.Scale(2)
	box := cloud.BoundingBox()
	assert.Equal(t, core.NewVec3(0, 0, 1), box.Min)
	assert.Equal(t, core.NewVec3(4, 4, 1), box.Max)
}

func TestParseEmissionPolicy(t *testing.T) {
	tests := []struct {
		input    string
		expected EmissionPolicy
	}{
		{"", EmitDense},
		{"dense", EmitDense},
		{"Sparse-NonZero", EmitSparseNonZero},
		{"sparse", EmitSparseNonZero},
	}
	for _, tt := range tests {
		got, err := ParseEmissionPolicy(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, got, tt.input)
		assert.NotEmpty(t, got.String())
	}

	_, err := ParseEmissionPolicy("random")
	assert.ErrorIs(t, err, core.ErrInvalidParameter)
}
