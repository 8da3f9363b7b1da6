package depth

import (
	"math"

	"github.com/df07/go-depthmesh/pkg/core"
)

// GaussianKernel returns a normalized 1D Gaussian kernel of the given odd size.
// Sigma is derived from the size the same way common vision libraries do
// when no explicit sigma is given: 0.3*((size-1)*0.5 - 1) + 0.8.
func GaussianKernel(size int) []float64 {
	if size <= 1 {
		return []float64{1}
	}

	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	half := size / 2
	kernel := make([]float64, size)
	twoSigmaSq := 2 * sigma * sigma

	sum := 0.0
	for i := range kernel {
		x := float64(i - half)
		kernel[i] = math.Exp(-(x * x) / twoSigmaSq)
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// GaussianBlur applies a separable size x size Gaussian blur.
// Borders are handled by mirroring without repeating the edge sample.
func GaussianBlur(f core.DepthField, size int) core.DepthField {
	if size <= 1 || f.Len() == 0 {
		return f.Clone()
	}

	kernel := GaussianKernel(size)
	half := len(kernel) / 2
	temp := core.NewGrid[float64](f.Width, f.Height)
	out := core.NewGrid[float64](f.Width, f.Height)

	// Pass 1: horizontal (f -> temp)
	for y := 0; y < f.Height; y++ {
		row := f.Data[y*f.Width : (y+1)*f.Width]
		for x := 0; x < f.Width; x++ {
			var sum float64
			for k, w := range kernel {
				sum += row[reflect101(x+k-half, f.Width)] * w
			}
			temp.Data[y*f.Width+x] = sum
		}
	}

	// Pass 2: vertical (temp -> out)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			var sum float64
			for k, w := range kernel {
				sum += temp.Data[reflect101(y+k-half, f.Height)*f.Width+x] * w
			}
			out.Data[y*f.Width+x] = sum
		}
	}

	return out
}

// reflect101 mirrors an out-of-range index back into [0, n): -1 -> 1, n -> n-2
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}
