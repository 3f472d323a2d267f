package tile

import (
	"fmt"
	"math"
	"math/bits"
	"strings"
)

// Depth is the per-sample bit depth of a raster
type Depth int

// Supported sample depths
const (
	Depth8  Depth = 8
	Depth16 Depth = 16
)

// String returns the dtype name used in reports
func (d Depth) String() string {
	switch d {
	case Depth8:
		return "uint8"
	case Depth16:
		return "uint16"
	default:
		return fmt.Sprintf("depth%d", int(d))
	}
}

// Format identifies an image file format
type Format string

// Known formats
const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatTIFF Format = "tiff"
	FormatBMP  Format = "bmp"
	FormatGIF  Format = "gif"
	FormatWEBP Format = "webp"
)

// FormatFromExt maps a file extension (with or without the leading dot) to a Format
func FormatFromExt(ext string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	case "bmp":
		return FormatBMP, nil
	case "gif":
		return FormatGIF, nil
	case "webp":
		return FormatWEBP, nil
	}
	return "", fmt.Errorf("unsupported image extension %q", ext)
}

// Writable reports whether the I/O provider can encode this format
func (f Format) Writable() bool {
	return f != FormatWEBP && f != ""
}

// Box is one grid cell of a tiled image. Y and X are the top-left pixel
// offsets in the source canvas; Width and Height shrink on the last
// row and column when the canvas is not a multiple of the tile size.
type Box struct {
	Row    int `json:"row"`
	Col    int `json:"col"`
	Y      int `json:"y"`
	X      int `json:"x"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the number of pixels covered by the box
func (b Box) Area() int {
	return b.Width * b.Height
}

// Record is one tile found on disk during a merge
type Record struct {
	Path   string `json:"path"`
	Y      int    `json:"y"`
	X      int    `json:"x"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bands  int    `json:"bands"`
	Depth  Depth  `json:"depth"`
}

// Canvas describes the image reconstructed from a set of records
type Canvas struct {
	Width  int   `json:"width"`
	Height int   `json:"height"`
	Bands  int   `json:"bands"`
	Depth  Depth `json:"depth"`
}

// SampleBytes is the in-memory size of one sample. Rasters hold every
// sample as a uint16 whatever the file depth.
const SampleBytes = 2

// Bytes returns the size of the raster buffer that holds the canvas,
// saturating at math.MaxUint64
func (c Canvas) Bytes() uint64 {
	n := uint64(SampleBytes)
	for _, f := range []int{c.Width, c.Height, c.Bands} {
		if f <= 0 {
			return 0
		}
		hi, lo := bits.Mul64(n, uint64(f))
		if hi != 0 {
			return math.MaxUint64
		}
		n = lo
	}
	return n
}

// Contains reports whether the record's rectangle lies inside the canvas
func (c Canvas) Contains(r Record) bool {
	return r.X >= 0 && r.Y >= 0 && r.X+r.Width <= c.Width && r.Y+r.Height <= c.Height
}
