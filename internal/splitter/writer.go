// Package splitter cuts a source image into grid tiles and writes each one
// as an independent file named after its position.
package splitter

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/kiesman99/tiler/internal/codec"
	"github.com/kiesman99/tiler/internal/raster"
	"github.com/kiesman99/tiler/pkg/tile"
)

// WriteTile crops box out of src, keeps the bands of sel in selection order
// and encodes the result to dir/name. An existing file is overwritten. It
// returns the written path.
func WriteTile(p codec.Provider, src *raster.Raster, box tile.Box, sel tile.BandSelection, dir, name string, f tile.Format) (string, error) {
	sub, err := src.Extract(box, sel)
	if err != nil {
		return "", fmt.Errorf("tile (%d,%d): %w", box.Row, box.Col, err)
	}

	path := filepath.Join(dir, name)
	if err := p.Encode(sub, path, f); err != nil {
		if !errors.Is(err, tile.ErrIOWrite) {
			err = fmt.Errorf("%w: %s: %w", tile.ErrIOWrite, path, err)
		}
		return "", err
	}

	return path, nil
}
