package merger

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kiesman99/tiler/internal/raster"
	"github.com/kiesman99/tiler/pkg/tile"
)

// Assemble allocates the scanned canvas and pastes every record into it in
// scan order, so a later record overwrites an earlier one where they
// overlap. Tiles are decoded ahead of the paster by up to Lookahead
// workers; only one goroutine writes to the canvas.
func (m *Merger) Assemble(ctx context.Context, scan *Scan, progress func(done, total int)) (*raster.Raster, error) {
	c := scan.Canvas
	if c.Width <= 0 || c.Height <= 0 {
		return nil, fmt.Errorf("%w: empty canvas", tile.ErrNoTilesFound)
	}
	for _, rec := range scan.Records {
		if !c.Contains(rec) {
			return nil, fmt.Errorf("%w: %s at (%d,%d) size %dx%d exceeds %dx%d canvas",
				tile.ErrPasteOutOfBounds, rec.Path, rec.Y, rec.X, rec.Width, rec.Height, c.Width, c.Height)
		}
	}

	if limit := m.limit(scan); c.Bytes() > limit {
		return nil, fmt.Errorf("%w: %dx%d canvas with %d bands needs %d bytes, limit is %d",
			tile.ErrCanvasTooLarge, c.Width, c.Height, c.Bands, c.Bytes(), limit)
	}

	canvas := raster.New(c.Width, c.Height, c.Bands, c.Depth)
	total := len(scan.Records)
	slots := make([]chan *raster.Raster, total)
	for i := range slots {
		slots[i] = make(chan *raster.Raster, 1)
	}

	// The producer reserves look-ahead in scan order and the paster frees it
	// in the same order, so the tile the paster waits on always holds a slot.
	sem := semaphore.NewWeighted(int64(m.lookahead()))
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for i, rec := range scan.Records {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				r, err := m.decode(rec, c.Bands)
				if err != nil {
					return err
				}
				slots[i] <- r
				return nil
			})
		}
		return nil
	})

	g.Go(func() error {
		for i, rec := range scan.Records {
			if err := gctx.Err(); err != nil {
				return err
			}

			var r *raster.Raster
			select {
			case r = <-slots[i]:
			case <-gctx.Done():
				return gctx.Err()
			}

			err := canvas.Paste(r, rec.Y, rec.X)
			sem.Release(1)
			if err != nil {
				return fmt.Errorf("%s: %w", rec.Path, err)
			}
			if progress != nil {
				progress(i+1, total)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return canvas, nil
}

// limit is the largest canvas buffer Assemble will allocate
func (m *Merger) limit(scan *Scan) uint64 {
	switch {
	case m.MaxBytes > 0:
		return m.MaxBytes
	case scan.Available > 0:
		return scan.Available
	}
	return DefaultMaxBytes
}

// decode loads a tile, checks it against its probe and adds an opaque
// alpha band when a 3-band tile goes into a 4-band canvas
func (m *Merger) decode(rec tile.Record, bands int) (*raster.Raster, error) {
	r, err := m.Provider.Decode(rec.Path)
	if err != nil {
		return nil, err
	}
	if r.Bands != rec.Bands || r.Depth != rec.Depth {
		return nil, &tile.FormatMismatchError{
			Path:      rec.Path,
			WantBands: rec.Bands,
			GotBands:  r.Bands,
			WantDepth: rec.Depth,
			GotDepth:  r.Depth,
		}
	}
	if r.Width != rec.Width || r.Height != rec.Height {
		return nil, fmt.Errorf("%w: %s decoded as %dx%d, header says %dx%d",
			tile.ErrInconsistentTileFormat, rec.Path, r.Width, r.Height, rec.Width, rec.Height)
	}
	if r.Bands == 3 && bands == 4 {
		return r.WithOpaqueAlpha()
	}
	return r, nil
}
