package tile

import (
	"math"
	"testing"
)

func TestCanvasBytes(t *testing.T) {
	testCases := []struct {
		name   string
		canvas Canvas
		want   uint64
	}{
		{"rgb uint8", Canvas{Width: 1000, Height: 1000, Bands: 3, Depth: Depth8}, 6000000},
		{"gray uint16", Canvas{Width: 10, Height: 5, Bands: 1, Depth: Depth16}, 100},
		{"empty", Canvas{Bands: 3, Depth: Depth8}, 0},
		{"saturates", Canvas{Width: math.MaxInt, Height: math.MaxInt, Bands: 4, Depth: Depth8}, math.MaxUint64},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.canvas.Bytes(); got != tc.want {
				t.Errorf("Bytes() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestCanvasContains(t *testing.T) {
	c := Canvas{Width: 10, Height: 8, Bands: 1, Depth: Depth8}
	if !c.Contains(Record{Y: 4, X: 6, Width: 4, Height: 4}) {
		t.Error("edge record should fit")
	}
	if c.Contains(Record{Y: 5, X: 6, Width: 4, Height: 4}) {
		t.Error("record past the bottom edge should not fit")
	}
	if c.Contains(Record{X: -1, Width: 1, Height: 1}) {
		t.Error("negative offset should not fit")
	}
}
