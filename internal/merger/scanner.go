package merger

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"

	"github.com/kiesman99/tiler/pkg/tile"
)

// Scan is the inventory of a tile set and the canvas it spans. It is cheap
// to compute: only image headers are read.
type Scan struct {
	Records []tile.Record `json:"records"`
	// Ignored lists files skipped because of their extension or name
	Ignored []string    `json:"ignored"`
	Canvas  tile.Canvas `json:"canvas"`
	// Bytes is the size of the assembled canvas buffer
	Bytes uint64 `json:"bytes"`
	// Available is the host memory free for allocation, 0 when unknown
	Available uint64 `json:"available"`
}

// Fits reports whether the canvas buffer fits in available memory
func (s *Scan) Fits() bool {
	return s.Available == 0 || s.Bytes <= s.Available
}

type candidate struct {
	path string
	y, x int
	// w and h are known up front for manifest rows, 0 otherwise
	w, h int
}

// Scan inventories dir for tiles with the given extension. Matching is
// case insensitive and treats jpg/jpeg and tif/tiff as the same format; an
// empty ext accepts every readable format. Files are taken in lexical
// order, which is also the order tiles are pasted in.
func (m *Merger) Scan(ctx context.Context, dir, ext string) (*Scan, error) {
	var want tile.Format
	if ext != "" {
		f, err := tile.FormatFromExt(ext)
		if err != nil {
			return nil, err
		}
		want = f
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tile.ErrIORead, err)
	}

	var cands []candidate
	var ignored []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()

		f, err := tile.FormatFromExt(filepath.Ext(name))
		if err != nil || (want != "" && f != want) {
			ignored = append(ignored, name)
			continue
		}
		y, x, err := tile.DecodeName(name)
		if err != nil {
			m.logger().Printf("Skipping %s: %v", name, err)
			ignored = append(ignored, name)
			continue
		}
		cands = append(cands, candidate{path: filepath.Join(dir, name), y: y, x: x})
	}

	if len(cands) == 0 {
		return nil, fmt.Errorf("%w in %s (%d files ignored)", tile.ErrNoTilesFound, dir, len(ignored))
	}

	return m.inventory(ctx, cands, ignored)
}

// inventory probes every candidate and derives the canvas
func (m *Merger) inventory(ctx context.Context, cands []candidate, ignored []string) (*Scan, error) {
	records := make([]tile.Record, len(cands))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers())
	for i, c := range cands {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			info, err := m.Provider.Probe(c.path)
			if err != nil {
				return err
			}
			if c.w != 0 && (c.w != info.Width || c.h != info.Height) {
				return fmt.Errorf("%w: %s is %dx%d, listed as %dx%d",
					tile.ErrInconsistentTileFormat, c.path, info.Width, info.Height, c.w, c.h)
			}
			records[i] = tile.Record{
				Path:   c.path,
				Y:      c.y,
				X:      c.x,
				Width:  info.Width,
				Height: info.Height,
				Bands:  info.Bands,
				Depth:  info.Depth,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	canvas, err := CanvasOf(records)
	if err != nil {
		return nil, err
	}

	s := &Scan{
		Records: records,
		Ignored: ignored,
		Canvas:  canvas,
		Bytes:   canvas.Bytes(),
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.Available = vm.Available
	}
	return s, nil
}

// CanvasOf returns the smallest canvas anchored at the origin that holds
// every record. All records must share depth and band count, except that
// 3-band and 4-band tiles mix into a 4-band canvas: an RGBA tile whose
// alpha is fully opaque is stored as RGB by the PNG encoder.
func CanvasOf(records []tile.Record) (tile.Canvas, error) {
	if len(records) == 0 {
		return tile.Canvas{}, tile.ErrNoTilesFound
	}

	first := records[0]
	c := tile.Canvas{Bands: first.Bands, Depth: first.Depth}
	for _, r := range records {
		if r.Bands == 4 && c.Bands == 3 {
			c.Bands = 4
		}
		if !compatible(r, c) {
			return tile.Canvas{}, &tile.FormatMismatchError{
				Path:      r.Path,
				WantBands: c.Bands,
				GotBands:  r.Bands,
				WantDepth: c.Depth,
				GotDepth:  r.Depth,
			}
		}
		if r.X < 0 || r.Y < 0 || r.X > math.MaxInt-r.Width || r.Y > math.MaxInt-r.Height {
			return tile.Canvas{}, fmt.Errorf("%w: %s at (%d,%d) size %dx%d overflows the canvas",
				tile.ErrInvalidGeometry, r.Path, r.Y, r.X, r.Width, r.Height)
		}
		c.Width = max(c.Width, r.X+r.Width)
		c.Height = max(c.Height, r.Y+r.Height)
	}
	return c, nil
}

// compatible reports whether a record can be pasted into canvas c
func compatible(r tile.Record, c tile.Canvas) bool {
	if r.Depth != c.Depth {
		return false
	}
	return r.Bands == c.Bands || (r.Bands == 3 && c.Bands == 4)
}
