package core

import "fmt"

// Grid is a row-major 2D buffer that carries its own dimensions.
// Cell (x, y) lives at Data[y*Width+x].
type Grid[T any] struct {
	Width  int
	Height int
	Data   []T
}

// NewGrid allocates a zeroed width x height grid
func NewGrid[T any](width, height int) Grid[T] {
	if width < 0 || height < 0 {
		panic(fmt.Sprintf("invalid grid dimensions %dx%d", width, height))
	}
	return Grid[T]{Width: width, Height: height, Data: make([]T, width*height)}
}

// GridFromSlice wraps an existing buffer, checking that its length matches the dimensions
func GridFromSlice[T any](width, height int, data []T) (Grid[T], error) {
	if width < 0 || height < 0 || len(data) != width*height {
		return Grid[T]{}, fmt.Errorf("buffer of length %d does not fit a %dx%d grid", len(data), width, height)
	}
	return Grid[T]{Width: width, Height: height, Data: data}, nil
}

// Index returns the flat offset of cell (x, y)
func (g Grid[T]) Index(x, y int) int {
	return y*g.Width + x
}

// At returns the value of cell (x, y)
func (g Grid[T]) At(x, y int) T {
	return g.Data[y*g.Width+x]
}

// Set stores v at cell (x, y)
func (g Grid[T]) Set(x, y int, v T) {
	g.Data[y*g.Width+x] = v
}

// InBounds reports whether (x, y) is a valid cell
func (g Grid[T]) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.Width && y < g.Height
}

// Len returns the number of cells
func (g Grid[T]) Len() int {
	return g.Width * g.Height
}

// Clone returns a deep copy of the grid
func (g Grid[T]) Clone() Grid[T] {
	data := make([]T, len(g.Data))
	copy(data, g.Data)
	return Grid[T]{Width: g.Width, Height: g.Height, Data: data}
}

// Map applies fn to every cell and returns the result as a new grid of the same shape
func Map[T, U any](g Grid[T], fn func(T) U) Grid[U] {
	out := NewGrid[U](g.Width, g.Height)
	for i, v := range g.Data {
		out.Data[i] = fn(v)
	}
	return out
}
