package raster

import (
	"fmt"
	"strings"
	"sync"

	"github.com/anthonynsimon/bild/parallel"

	"github.com/kiesman99/tiler/pkg/tile"
)

// Normalization selects how 16-bit samples are brought down to 8 bits
type Normalization int

const (
	// NormalizeNone keeps the native depth
	NormalizeNone Normalization = iota
	// NormalizeMinMax stretches each band's [min, max] onto [0, 255]
	NormalizeMinMax
	// NormalizeClip clamps samples to [0, 255]
	NormalizeClip
)

// ParseNormalization accepts "none", "minmax" or "clip"
func ParseNormalization(s string) (Normalization, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return NormalizeNone, nil
	case "minmax":
		return NormalizeMinMax, nil
	case "clip":
		return NormalizeClip, nil
	}
	return NormalizeNone, fmt.Errorf("unknown normalization %q (want none, minmax or clip)", s)
}

func (n Normalization) String() string {
	switch n {
	case NormalizeMinMax:
		return "minmax"
	case NormalizeClip:
		return "clip"
	}
	return "none"
}

// Normalize returns an 8-bit copy of a 16-bit raster. 8-bit rasters and
// NormalizeNone return r unchanged.
func (r *Raster) Normalize(mode Normalization) *Raster {
	if mode == NormalizeNone || r.Depth == tile.Depth8 {
		return r
	}

	dst := New(r.Width, r.Height, r.Bands, tile.Depth8)
	switch mode {
	case NormalizeClip:
		parallel.Line(len(r.Pix), func(start, end int) {
			for i := start; i < end; i++ {
				dst.Pix[i] = min(r.Pix[i], 0xff)
			}
		})
	case NormalizeMinMax:
		lo, hi := r.bandRange()
		parallel.Line(r.Height, func(start, end int) {
			for i := start * r.Stride(); i < end*r.Stride(); i++ {
				b := i % r.Bands
				if hi[b] > lo[b] {
					dst.Pix[i] = uint16(float64(r.Pix[i]-lo[b]) / float64(hi[b]-lo[b]) * 255)
				}
			}
		})
	}

	return dst
}

// bandRange returns the per-band minimum and maximum sample
func (r *Raster) bandRange() (lo, hi []uint16) {
	lo = make([]uint16, r.Bands)
	hi = make([]uint16, r.Bands)
	for b := range lo {
		lo[b] = 0xffff
	}

	var mu sync.Mutex
	parallel.Line(r.Height, func(start, end int) {
		l := make([]uint16, r.Bands)
		h := make([]uint16, r.Bands)
		for b := range l {
			l[b] = 0xffff
		}
		for i := start * r.Stride(); i < end*r.Stride(); i++ {
			b := i % r.Bands
			l[b] = min(l[b], r.Pix[i])
			h[b] = max(h[b], r.Pix[i])
		}

		mu.Lock()
		for b := range l {
			lo[b] = min(lo[b], l[b])
			hi[b] = max(hi[b], h[b])
		}
		mu.Unlock()
	})

	return lo, hi
}
