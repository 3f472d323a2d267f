package splitter

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kiesman99/tiler/internal/codec"
	"github.com/kiesman99/tiler/internal/manifest"
	"github.com/kiesman99/tiler/internal/raster"
	"github.com/kiesman99/tiler/pkg/tile"
)

// Options contains all split parameters
type Options struct {
	Input     string
	OutputDir string

	// Base replaces {base}; defaults to the input file name without extension
	Base string
	// Ext is the output extension; defaults to the input's
	Ext string

	TileWidth  int
	TileHeight int
	// Pattern defaults to tile.DefaultPattern
	Pattern string

	Bands     tile.BandSelection
	Normalize raster.Normalization

	// AllowUnmergeable accepts patterns whose names cannot be merged back
	AllowUnmergeable bool

	// Manifest, when set, is written next to the tiles (relative paths
	// resolve against OutputDir)
	Manifest string
	Scene    string
	Fold     string

	// Progress is called after each tile with the number of tiles written
	// so far. Calls are serialized.
	Progress func(done, total int)
}

// Result describes a finished split
type Result struct {
	Tiles    int            `json:"tiles"`
	Rows     int            `json:"rows"`
	Cols     int            `json:"cols"`
	Width    int            `json:"width"`
	Height   int            `json:"height"`
	Bands    int            `json:"bands"`
	Depth    tile.Depth     `json:"depth"`
	Format   tile.Format    `json:"format"`
	Files    []string       `json:"files"`
	Advisory *tile.Advisory `json:"advisory,omitempty"`
	Manifest string         `json:"manifest,omitempty"`
	Uploaded []string       `json:"uploaded,omitempty"`
}

// Uploader copies finished files to remote storage and returns their keys
type Uploader interface {
	Upload(ctx context.Context, files []string) ([]string, error)
}

// Splitter cuts images into tiles
type Splitter struct {
	Provider codec.Provider
	Selector *tile.BandSelector
	Logger   *log.Logger
	Workers  int
	Uploader Uploader
}

// New creates a splitter with one worker per CPU
func New(p codec.Provider, sel *tile.BandSelector) *Splitter {
	return &Splitter{
		Provider: p,
		Selector: sel,
		Workers:  runtime.NumCPU(),
	}
}

func (s *Splitter) logger() *log.Logger {
	if s.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return s.Logger
}

// Split decodes opts.Input and writes one file per grid cell into
// opts.OutputDir. Cancellation is checked between tiles; tiles already
// written are left in place.
func (s *Splitter) Split(ctx context.Context, opts Options) (*Result, error) {
	if opts.Pattern == "" {
		opts.Pattern = tile.DefaultPattern
	}
	pattern, err := tile.ParsePattern(opts.Pattern)
	if err != nil {
		return nil, err
	}
	if !opts.AllowUnmergeable {
		if err := pattern.ValidateMergeable(); err != nil {
			return nil, err
		}
	}
	if opts.TileWidth <= 0 || opts.TileHeight <= 0 {
		return nil, fmt.Errorf("%w: tile size %dx%d", tile.ErrInvalidGeometry, opts.TileWidth, opts.TileHeight)
	}

	ext := strings.TrimPrefix(opts.Ext, ".")
	if ext == "" {
		ext = strings.TrimPrefix(filepath.Ext(opts.Input), ".")
	}
	format, err := tile.FormatFromExt(ext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tile.ErrIOWrite, err)
	}
	if !format.Writable() {
		return nil, fmt.Errorf("%w: %s tiles cannot be written", tile.ErrIOWrite, format)
	}

	base := opts.Base
	if base == "" {
		base = strings.TrimSuffix(filepath.Base(opts.Input), filepath.Ext(opts.Input))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := s.Provider.Decode(opts.Input)
	if err != nil {
		return nil, err
	}

	grid, err := tile.NewGrid(src.Width, src.Height, opts.TileWidth, opts.TileHeight)
	if err != nil {
		return nil, err
	}

	sel, advisory, err := s.Selector.Resolve(src.Bands, opts.Bands, format)
	if err != nil {
		return nil, err
	}
	if !raster.Encodable(len(sel)) {
		return nil, fmt.Errorf("%w: %d bands %v have no %s layout", tile.ErrInvalidBandSelection, len(sel), sel, format)
	}
	if advisory != nil {
		s.logger().Printf("Warning: %s", advisory)
	}

	src = src.Normalize(opts.Normalize)

	names, err := tileNames(pattern, grid, base, ext)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %w", tile.ErrIOWrite, err)
	}

	s.logger().Printf("Splitting %s (%dx%d, %d bands %s) into %d tiles of %dx%d",
		opts.Input, src.Width, src.Height, src.Bands, src.Depth, grid.Len(), opts.TileWidth, opts.TileHeight)

	files, err := s.writeTiles(ctx, src, grid, sel, opts.OutputDir, names, format, opts.Progress)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Tiles:    grid.Len(),
		Rows:     grid.Rows(),
		Cols:     grid.Cols(),
		Width:    src.Width,
		Height:   src.Height,
		Bands:    len(sel),
		Depth:    src.Depth,
		Format:   format,
		Files:    files,
		Advisory: advisory,
	}

	upload := files
	if opts.Manifest != "" {
		res.Manifest, err = writeManifest(opts, base, grid, names)
		if err != nil {
			return nil, err
		}
		upload = append(append([]string(nil), files...), res.Manifest)
	}

	if s.Uploader != nil {
		res.Uploaded, err = s.Uploader.Upload(ctx, upload)
		if err != nil {
			return res, err
		}
	}

	return res, nil
}

// tileNames renders every file name up front so a pattern error or two
// tiles sharing a name fail before anything is written
func tileNames(p *tile.Pattern, grid *tile.Grid, base, ext string) ([]string, error) {
	names := make([]string, grid.Len())
	seen := make(map[string]int, len(names))
	for i := range names {
		name, err := p.Name(base, ext, grid.At(i), i)
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(name)
		if j, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: %q renders %q for tiles %d and %d", tile.ErrInvalidPattern, p, name, j, i)
		}
		seen[key] = i
		names[i] = name
	}
	return names, nil
}

func (s *Splitter) writeTiles(ctx context.Context, src *raster.Raster, grid *tile.Grid, sel tile.BandSelection,
	dir string, names []string, format tile.Format, progress func(done, total int)) ([]string, error) {

	total := grid.Len()
	files := make([]string, total)

	workers := s.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := 0; i < total; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			path, err := WriteTile(s.Provider, src, grid.At(i), sel, dir, names[i], format)
			if err != nil {
				return err
			}
			files[i] = path

			mu.Lock()
			defer mu.Unlock()
			done++
			if progress != nil {
				progress(done, total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return files, nil
}

func writeManifest(opts Options, base string, grid *tile.Grid, names []string) (string, error) {
	path := opts.Manifest
	if !filepath.IsAbs(path) {
		path = filepath.Join(opts.OutputDir, path)
	}

	scene := opts.Scene
	if scene == "" {
		scene = base
	}

	entries := make([]manifest.Entry, 0, len(names))
	for b := range grid.Boxes() {
		entries = append(entries, manifest.FromBox(scene, names[len(entries)], b, opts.Fold))
	}

	if err := manifest.Write(path, entries); err != nil {
		return "", err
	}
	return path, nil
}
