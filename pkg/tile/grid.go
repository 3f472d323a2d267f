package tile

import (
	"fmt"
	"iter"
)

// Grid partitions a width x height canvas into tiles of a nominal size.
// The last row and column are clipped to the remaining pixels.
type Grid struct {
	width, height int
	tileW, tileH  int
	rows, cols    int
}

// NewGrid validates the geometry and returns the grid over it
func NewGrid(width, height, tileW, tileH int) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: source size %dx%d must be positive", ErrInvalidGeometry, width, height)
	}
	if tileW <= 0 || tileH <= 0 {
		return nil, fmt.Errorf("%w: tile size %dx%d must be positive", ErrInvalidGeometry, tileW, tileH)
	}

	return &Grid{
		width:  width,
		height: height,
		tileW:  tileW,
		tileH:  tileH,
		rows:   ceilDiv(height, tileH),
		cols:   ceilDiv(width, tileW),
	}, nil
}

// Rows returns the number of tile rows
func (g *Grid) Rows() int { return g.rows }

// Cols returns the number of tile columns
func (g *Grid) Cols() int { return g.cols }

// Len returns the total number of boxes
func (g *Grid) Len() int {
	return g.rows * g.cols
}

// At returns the i-th box in row-major order
func (g *Grid) At(i int) Box {
	row, col := i/g.cols, i%g.cols
	y, x := row*g.tileH, col*g.tileW

	return Box{
		Row:    row,
		Col:    col,
		Y:      y,
		X:      x,
		Width:  min(g.tileW, g.width-x),
		Height: min(g.tileH, g.height-y),
	}
}

// Boxes yields every box in row-major order. The sequence is computed on
// demand and may be ranged over more than once.
func (g *Grid) Boxes() iter.Seq[Box] {
	return func(yield func(Box) bool) {
		for i := 0; i < g.Len(); i++ {
			if !yield(g.At(i)) {
				return
			}
		}
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
