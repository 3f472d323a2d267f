package tile

import (
	"errors"
	"fmt"
)

// Error kinds returned by split and merge operations. Wrapped errors carry
// the offending path or coordinate; match with errors.Is.
var (
	ErrInvalidGeometry        = errors.New("invalid geometry")
	ErrInvalidPattern         = errors.New("invalid filename pattern")
	ErrUnparseableFilename    = errors.New("unparseable tile filename")
	ErrInvalidBandSelection   = errors.New("invalid band selection")
	ErrCropOutOfBounds        = errors.New("crop out of bounds")
	ErrPasteOutOfBounds       = errors.New("paste out of bounds")
	ErrInconsistentTileFormat = errors.New("inconsistent tile format")
	ErrNoTilesFound           = errors.New("no tiles found")
	ErrCanvasTooLarge         = errors.New("canvas too large")
	ErrPathOutsideRoot        = errors.New("path outside root")
	ErrIORead                 = errors.New("image read failure")
	ErrIOWrite                = errors.New("image write failure")
)

// FormatMismatchError reports a tile whose band count or dtype differs from
// the rest of the set
type FormatMismatchError struct {
	Path      string
	WantBands int
	GotBands  int
	WantDepth Depth
	GotDepth  Depth
}

func (e *FormatMismatchError) Error() string {
	return fmt.Sprintf("%s: %s: expected %d bands %s, got %d bands %s",
		ErrInconsistentTileFormat, e.Path, e.WantBands, e.WantDepth, e.GotBands, e.GotDepth)
}

func (e *FormatMismatchError) Unwrap() error {
	return ErrInconsistentTileFormat
}
