package raster

import (
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/kiesman99/tiler/pkg/tile"
)

// Thumbnail scales r to fit inside maxWidth x maxHeight, keeping the aspect
// ratio. Smaller rasters keep their size. The result is 8-bit with r's band
// count; 16-bit rasters keep only their high byte, so normalize them first
// for a useful contrast.
func (r *Raster) Thumbnail(maxWidth, maxHeight int) (*Raster, error) {
	if maxWidth <= 0 || maxHeight <= 0 {
		return nil, fmt.Errorf("%w: thumbnail box %dx%d", tile.ErrInvalidGeometry, maxWidth, maxHeight)
	}

	img, err := r.Image()
	if err != nil {
		return nil, err
	}

	// imaging always returns NRGBA
	thumb := FromImage(imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos))
	if r.Bands == thumb.Bands {
		return thumb, nil
	}
	return thumb.Extract(tile.Box{Width: thumb.Width, Height: thumb.Height}, tile.AllBands(r.Bands))
}
