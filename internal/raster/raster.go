// Package raster holds decoded images as interleaved multi-band sample
// buffers. Unlike image.Image it carries any number of bands, which is what
// band selection and tile pasting operate on.
package raster

import (
	"fmt"

	"github.com/anthonynsimon/bild/parallel"

	"github.com/kiesman99/tiler/pkg/tile"
)

// Raster is a row-major, band-interleaved image. Sample (x, y, b) lives at
// Pix[(y*Width+x)*Bands+b]. 8-bit rasters keep their samples in the low
// byte.
type Raster struct {
	Width  int
	Height int
	Bands  int
	Depth  tile.Depth
	Pix    []uint16
}

// New allocates a zeroed raster
func New(width, height, bands int, depth tile.Depth) *Raster {
	return &Raster{
		Width:  width,
		Height: height,
		Bands:  bands,
		Depth:  depth,
		Pix:    make([]uint16, width*height*bands),
	}
}

// Stride returns the number of samples in one row
func (r *Raster) Stride() int {
	return r.Width * r.Bands
}

// At returns sample b of pixel (x, y)
func (r *Raster) At(x, y, b int) uint16 {
	return r.Pix[(y*r.Width+x)*r.Bands+b]
}

// Set stores sample b of pixel (x, y)
func (r *Raster) Set(x, y, b int, v uint16) {
	r.Pix[(y*r.Width+x)*r.Bands+b] = v
}

// Extract copies the box out of the raster keeping only the selected bands,
// in selection order. A nil selection keeps every band.
func (r *Raster) Extract(box tile.Box, sel tile.BandSelection) (*Raster, error) {
	if box.X < 0 || box.Y < 0 || box.Width <= 0 || box.Height <= 0 ||
		box.X+box.Width > r.Width || box.Y+box.Height > r.Height {
		return nil, fmt.Errorf("%w: box (y=%d,x=%d,%dx%d) outside %dx%d source",
			tile.ErrCropOutOfBounds, box.Y, box.X, box.Width, box.Height, r.Width, r.Height)
	}
	if len(sel) == 0 {
		sel = tile.AllBands(r.Bands)
	}
	for _, b := range sel {
		if b < 0 || b >= r.Bands {
			return nil, fmt.Errorf("%w: band %d out of range [0..%d]", tile.ErrInvalidBandSelection, b, r.Bands-1)
		}
	}

	dst := New(box.Width, box.Height, len(sel), r.Depth)
	identity := len(sel) == r.Bands && isIdentity(sel)

	parallel.Line(box.Height, func(start, end int) {
		for y := start; y < end; y++ {
			src := r.Pix[((box.Y+y)*r.Width+box.X)*r.Bands : ((box.Y+y)*r.Width+box.X+box.Width)*r.Bands]
			row := dst.Pix[y*dst.Stride() : (y+1)*dst.Stride()]
			if identity {
				copy(row, src)
				continue
			}
			for x := 0; x < box.Width; x++ {
				px := src[x*r.Bands : (x+1)*r.Bands]
				for i, b := range sel {
					row[x*len(sel)+i] = px[b]
				}
			}
		}
	})

	return dst, nil
}

// Paste copies src into r with its top-left corner at (x, y), overwriting
// what was there
func (r *Raster) Paste(src *Raster, y, x int) error {
	if x < 0 || y < 0 || x+src.Width > r.Width || y+src.Height > r.Height {
		return fmt.Errorf("%w: %dx%d tile at (y=%d,x=%d) exceeds %dx%d canvas",
			tile.ErrPasteOutOfBounds, src.Width, src.Height, y, x, r.Width, r.Height)
	}
	if src.Bands != r.Bands || src.Depth != r.Depth {
		return fmt.Errorf("%w: tile has %d bands %s, canvas has %d bands %s",
			tile.ErrInconsistentTileFormat, src.Bands, src.Depth, r.Bands, r.Depth)
	}

	stride := src.Stride()
	parallel.Line(src.Height, func(start, end int) {
		for row := start; row < end; row++ {
			off := ((y+row)*r.Width + x) * r.Bands
			copy(r.Pix[off:off+stride], src.Pix[row*stride:(row+1)*stride])
		}
	})

	return nil
}

// WithOpaqueAlpha returns a 4-band copy of a 3-band raster whose fourth
// band is at full scale for the raster's depth
func (r *Raster) WithOpaqueAlpha() (*Raster, error) {
	if r.Bands != 3 {
		return nil, fmt.Errorf("%w: cannot add alpha to a %d-band raster", tile.ErrInconsistentTileFormat, r.Bands)
	}
	opaque := uint16(0xff)
	if r.Depth == tile.Depth16 {
		opaque = 0xffff
	}

	dst := New(r.Width, r.Height, 4, r.Depth)
	parallel.Line(r.Height, func(start, end int) {
		for i := start * r.Width; i < end*r.Width; i++ {
			copy(dst.Pix[4*i:4*i+3], r.Pix[3*i:3*i+3])
			dst.Pix[4*i+3] = opaque
		}
	})
	return dst, nil
}

func isIdentity(sel tile.BandSelection) bool {
	for i, b := range sel {
		if b != i {
			return false
		}
	}
	return true
}
