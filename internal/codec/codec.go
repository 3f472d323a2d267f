// Package codec is the image I/O provider used by split and merge. It
// decodes files into rasters, probes headers for dimensions and band
// layout, and encodes rasters back to disk.
package codec

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"go.uber.org/multierr"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WEBP format decoder

	"github.com/kiesman99/tiler/internal/raster"
	"github.com/kiesman99/tiler/pkg/tile"
)

// DefaultJPEGQuality is used when Files.JPEGQuality is not set
const DefaultJPEGQuality = 95

// Info is what a header probe reveals about an image file
type Info struct {
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Bands  int        `json:"bands"`
	Depth  tile.Depth `json:"depth"`
	Format string     `json:"format"`
}

// Provider reads and writes image files
type Provider interface {
	// Decode loads the full image at path
	Decode(path string) (*raster.Raster, error)
	// Probe reads only the header of the image at path
	Probe(path string) (Info, error)
	// Encode writes r to path in format f, replacing any existing file
	Encode(r *raster.Raster, path string, f tile.Format) error
}

// Files is the on-disk Provider. PNG, JPEG, TIFF, BMP and GIF can be read
// and written; WEBP can only be read.
type Files struct {
	JPEGQuality int
}

// NewFiles creates a provider with default encoder settings
func NewFiles() *Files {
	return &Files{JPEGQuality: DefaultJPEGQuality}
}

// Decode implements Provider
func (p *Files) Decode(path string) (*raster.Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tile.ErrIORead, err)
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", tile.ErrIORead, path, err)
	}

	return raster.FromImage(img), nil
}

// Probe implements Provider
func (p *Files) Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", tile.ErrIORead, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %w", tile.ErrIORead, path, err)
	}

	bands, depth := raster.ModelLayout(cfg.ColorModel)
	return Info{
		Width:  cfg.Width,
		Height: cfg.Height,
		Bands:  bands,
		Depth:  depth,
		Format: format,
	}, nil
}

// Encode implements Provider. A partially written file is removed on
// failure.
func (p *Files) Encode(r *raster.Raster, path string, f tile.Format) (err error) {
	format, err := imagingFormat(f)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", tile.ErrIOWrite, path, err)
	}
	img, err := r.Image()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", tile.ErrIOWrite, path, err)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %w", tile.ErrIOWrite, err)
	}
	defer func() {
		err = multierr.Append(err, out.Close())
		if err != nil {
			os.Remove(path)
			err = fmt.Errorf("%w: %s: %w", tile.ErrIOWrite, path, err)
		}
	}()

	quality := p.JPEGQuality
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	return imaging.Encode(out, img, format, imaging.JPEGQuality(quality))
}

func imagingFormat(f tile.Format) (imaging.Format, error) {
	switch f {
	case tile.FormatPNG:
		return imaging.PNG, nil
	case tile.FormatJPEG:
		return imaging.JPEG, nil
	case tile.FormatTIFF:
		return imaging.TIFF, nil
	case tile.FormatBMP:
		return imaging.BMP, nil
	case tile.FormatGIF:
		return imaging.GIF, nil
	}
	return 0, fmt.Errorf("cannot encode %q images", f)
}

// FormatOf returns the format implied by a path's extension
func FormatOf(path string) (tile.Format, error) {
	return tile.FormatFromExt(filepath.Ext(path))
}
