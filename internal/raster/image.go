package raster

import (
	"fmt"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/parallel"

	"github.com/kiesman99/tiler/pkg/tile"
)

// ModelLayout returns the band count and depth a decoded image of color
// model m is converted to. It only needs the model, so it works on the
// header-only result of image.DecodeConfig and agrees with FromImage.
//
// Opaque RGB models (RGBA, RGBA64, YCbCr) map to 3 bands, the non
// premultiplied ones to 4.
func ModelLayout(m color.Model) (int, tile.Depth) {
	if p, ok := m.(color.Palette); ok {
		if paletteHasAlpha(p) {
			return 4, tile.Depth8
		}
		return 3, tile.Depth8
	}

	switch m {
	case color.GrayModel, color.AlphaModel:
		return 1, tile.Depth8
	case color.Gray16Model, color.Alpha16Model:
		return 1, tile.Depth16
	case color.RGBAModel, color.YCbCrModel:
		return 3, tile.Depth8
	case color.RGBA64Model:
		return 3, tile.Depth16
	case color.NRGBAModel, color.NYCbCrAModel, color.CMYKModel:
		return 4, tile.Depth8
	case color.NRGBA64Model:
		return 4, tile.Depth16
	}
	return 4, tile.Depth16
}

func paletteHasAlpha(p color.Palette) bool {
	for _, c := range p {
		if _, _, _, a := c.RGBA(); a != 0xffff {
			return true
		}
	}
	return false
}

// FromImage converts a decoded image into a raster. CMYK samples are passed
// through as four bands without colour conversion.
func FromImage(img image.Image) *Raster {
	b := img.Bounds()
	bands, depth := ModelLayout(img.ColorModel())
	r := New(b.Dx(), b.Dy(), bands, depth)

	switch src := img.(type) {
	case *image.Gray:
		r.fill(func(x, y int, px []uint16) {
			px[0] = uint16(src.Pix[src.PixOffset(b.Min.X+x, b.Min.Y+y)])
		})
	case *image.Gray16:
		r.fill(func(x, y int, px []uint16) {
			i := src.PixOffset(b.Min.X+x, b.Min.Y+y)
			px[0] = uint16(src.Pix[i])<<8 | uint16(src.Pix[i+1])
		})
	case *image.NRGBA:
		r.fill(func(x, y int, px []uint16) {
			s := src.Pix[src.PixOffset(b.Min.X+x, b.Min.Y+y):]
			px[0], px[1], px[2], px[3] = uint16(s[0]), uint16(s[1]), uint16(s[2]), uint16(s[3])
		})
	case *image.NRGBA64:
		r.fill(func(x, y int, px []uint16) {
			s := src.Pix[src.PixOffset(b.Min.X+x, b.Min.Y+y):]
			for c := 0; c < 4; c++ {
				px[c] = uint16(s[2*c])<<8 | uint16(s[2*c+1])
			}
		})
	case *image.RGBA:
		r.fill(func(x, y int, px []uint16) {
			s := src.Pix[src.PixOffset(b.Min.X+x, b.Min.Y+y):]
			a := uint32(s[3])
			for c := 0; c < 3; c++ {
				px[c] = unpremultiply(uint32(s[c]), a, 0xff)
			}
		})
	case *image.RGBA64:
		r.fill(func(x, y int, px []uint16) {
			s := src.Pix[src.PixOffset(b.Min.X+x, b.Min.Y+y):]
			a := uint32(s[6])<<8 | uint32(s[7])
			for c := 0; c < 3; c++ {
				px[c] = unpremultiply(uint32(s[2*c])<<8|uint32(s[2*c+1]), a, 0xffff)
			}
		})
	case *image.CMYK:
		r.fill(func(x, y int, px []uint16) {
			s := src.Pix[src.PixOffset(b.Min.X+x, b.Min.Y+y):]
			px[0], px[1], px[2], px[3] = uint16(s[0]), uint16(s[1]), uint16(s[2]), uint16(s[3])
		})
	default:
		r.fill(func(x, y int, px []uint16) {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			if bands == 1 {
				px[0] = scale(color.Gray16Model.Convert(c).(color.Gray16).Y, depth)
				return
			}
			n := color.NRGBA64Model.Convert(c).(color.NRGBA64)
			px[0], px[1], px[2] = scale(n.R, depth), scale(n.G, depth), scale(n.B, depth)
			if bands == 4 {
				px[3] = scale(n.A, depth)
			}
		})
	}

	return r
}

func (r *Raster) fill(fn func(x, y int, px []uint16)) {
	parallel.Line(r.Height, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < r.Width; x++ {
				off := (y*r.Width + x) * r.Bands
				fn(x, y, r.Pix[off:off+r.Bands])
			}
		}
	})
}

func unpremultiply(c, a, full uint32) uint16 {
	switch a {
	case 0:
		return 0
	case full:
		return uint16(c)
	}
	return uint16(c * full / a)
}

func scale(v uint16, depth tile.Depth) uint16 {
	if depth == tile.Depth8 {
		return v >> 8
	}
	return v
}

// Encodable reports whether a raster with this many bands has an
// image.Image layout, and so can be written by the standard encoders
func Encodable(bands int) bool {
	return bands == 1 || bands == 3 || bands == 4
}

// Image converts the raster to an image.Image the standard encoders
// understand: 1 band as Gray, 3 bands as opaque RGBA, 4 bands as NRGBA, at
// 8 or 16 bits.
func (r *Raster) Image() (image.Image, error) {
	rect := image.Rect(0, 0, r.Width, r.Height)
	wide := r.Depth == tile.Depth16

	switch {
	case r.Bands == 1 && !wide:
		img := image.NewGray(rect)
		r.fill(func(x, y int, px []uint16) {
			img.Pix[y*img.Stride+x] = uint8(px[0])
		})
		return img, nil
	case r.Bands == 1:
		img := image.NewGray16(rect)
		r.fill(func(x, y int, px []uint16) {
			putWide(img.Pix[y*img.Stride+2*x:], px[0])
		})
		return img, nil
	case r.Bands == 3 && !wide:
		img := image.NewRGBA(rect)
		r.fill(func(x, y int, px []uint16) {
			d := img.Pix[y*img.Stride+4*x:]
			d[0], d[1], d[2], d[3] = uint8(px[0]), uint8(px[1]), uint8(px[2]), 0xff
		})
		return img, nil
	case r.Bands == 3:
		img := image.NewRGBA64(rect)
		r.fill(func(x, y int, px []uint16) {
			d := img.Pix[y*img.Stride+8*x:]
			putWide(d[0:], px[0])
			putWide(d[2:], px[1])
			putWide(d[4:], px[2])
			putWide(d[6:], 0xffff)
		})
		return img, nil
	case r.Bands == 4 && !wide:
		img := image.NewNRGBA(rect)
		r.fill(func(x, y int, px []uint16) {
			d := img.Pix[y*img.Stride+4*x:]
			d[0], d[1], d[2], d[3] = uint8(px[0]), uint8(px[1]), uint8(px[2]), uint8(px[3])
		})
		return img, nil
	case r.Bands == 4:
		img := image.NewNRGBA64(rect)
		r.fill(func(x, y int, px []uint16) {
			d := img.Pix[y*img.Stride+8*x:]
			for c := 0; c < 4; c++ {
				putWide(d[2*c:], px[c])
			}
		})
		return img, nil
	}

	return nil, fmt.Errorf("a %d-band raster has no standard image layout", r.Bands)
}

func putWide(d []uint8, v uint16) {
	d[0], d[1] = uint8(v>>8), uint8(v)
}
