// Package merger rebuilds a single image from a directory of tiles whose
// names end in _<y>_<x>, or from the rows of a tile manifest.
package merger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/kiesman99/tiler/internal/codec"
	"github.com/kiesman99/tiler/internal/manifest"
	"github.com/kiesman99/tiler/pkg/tile"
)

// Merger scans tile sets and assembles them into one image
type Merger struct {
	Provider codec.Provider
	Selector *tile.BandSelector
	Logger   *log.Logger
	// Workers bounds concurrent header probes
	Workers int
	// Lookahead bounds how many decoded tiles may wait to be pasted
	Lookahead int
	// MaxBytes caps the canvas buffer. When 0 the cap is the memory
	// available at scan time, or DefaultMaxBytes if that is unknown.
	MaxBytes uint64
	// Root, when set, confines the tile paths listed in manifests
	Root string
}

// DefaultMaxBytes caps canvases when host memory cannot be read
const DefaultMaxBytes = 16 << 30

// New creates a merger sized to the number of CPUs
func New(p codec.Provider, sel *tile.BandSelector) *Merger {
	return &Merger{
		Provider:  p,
		Selector:  sel,
		Workers:   runtime.NumCPU(),
		Lookahead: runtime.NumCPU(),
	}
}

func (m *Merger) logger() *log.Logger {
	if m.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return m.Logger
}

func (m *Merger) workers() int {
	if m.Workers <= 0 {
		return runtime.NumCPU()
	}
	return m.Workers
}

func (m *Merger) lookahead() int {
	if m.Lookahead <= 0 {
		return m.workers()
	}
	return m.Lookahead
}

// Options contains the parameters of a directory merge
type Options struct {
	Dir string
	// Ext filters tiles by extension; empty accepts any readable format
	Ext string
	// Output is the merged file; its extension picks the format
	Output   string
	Progress func(done, total int)
}

// ManifestOptions contains the parameters of a manifest merge
type ManifestOptions struct {
	Manifest string
	// Fold keeps only rows of this fold when set
	Fold     string
	Output   string
	Progress func(done, total int)
}

// Result describes a finished merge
type Result struct {
	Output   string         `json:"output"`
	Width    int            `json:"width"`
	Height   int            `json:"height"`
	Bands    int            `json:"bands"`
	Depth    tile.Depth     `json:"depth"`
	Format   tile.Format    `json:"format"`
	Tiles    int            `json:"tiles"`
	Ignored  []string       `json:"ignored"`
	Advisory *tile.Advisory `json:"advisory,omitempty"`
}

// Merge scans opts.Dir and writes the assembled image to opts.Output
func (m *Merger) Merge(ctx context.Context, opts Options) (*Result, error) {
	format, err := outputFormat(opts.Output)
	if err != nil {
		return nil, err
	}

	scan, err := m.Scan(ctx, opts.Dir, opts.Ext)
	if err != nil {
		return nil, err
	}
	return m.write(ctx, scan, opts.Output, format, opts.Progress)
}

// MergeManifest assembles the tiles listed in a manifest. Relative tile
// paths resolve against the manifest's directory; rows whose file does not
// exist are skipped and reported as ignored.
func (m *Merger) MergeManifest(ctx context.Context, opts ManifestOptions) (*Result, error) {
	format, err := outputFormat(opts.Output)
	if err != nil {
		return nil, err
	}

	entries, err := manifest.Read(opts.Manifest)
	if err != nil {
		return nil, err
	}
	entries = manifest.Filter(entries, opts.Fold)

	root := filepath.Dir(opts.Manifest)
	var cands []candidate
	var ignored []string
	for _, e := range entries {
		path := e.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		if m.Root != "" && !Within(m.Root, path) {
			return nil, fmt.Errorf("%w: manifest row %s resolves to %s", tile.ErrPathOutsideRoot, e.Path, path)
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			m.logger().Printf("Skipping %s: file not found", e.Path)
			ignored = append(ignored, e.Path)
			continue
		}
		if e.X0 < 0 || e.Y0 < 0 || e.W <= 0 || e.H <= 0 {
			return nil, fmt.Errorf("%w: %s has rectangle (%d,%d) %dx%d", tile.ErrInvalidGeometry, e.Path, e.Y0, e.X0, e.W, e.H)
		}
		cands = append(cands, candidate{path: path, y: e.Y0, x: e.X0, w: e.W, h: e.H})
	}

	if len(cands) == 0 {
		return nil, fmt.Errorf("%w in manifest %s (%d rows ignored)", tile.ErrNoTilesFound, opts.Manifest, len(ignored))
	}

	scan, err := m.inventory(ctx, cands, ignored)
	if err != nil {
		return nil, err
	}
	return m.write(ctx, scan, opts.Output, format, opts.Progress)
}

// Within reports whether path lies inside root once both are cleaned
func Within(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func outputFormat(path string) (tile.Format, error) {
	f, err := codec.FormatOf(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", tile.ErrIOWrite, err)
	}
	if !f.Writable() {
		return "", fmt.Errorf("%w: %s output cannot be written", tile.ErrIOWrite, f)
	}
	return f, nil
}

func (m *Merger) write(ctx context.Context, scan *Scan, out string, format tile.Format, progress func(done, total int)) (*Result, error) {
	c := scan.Canvas
	m.logger().Printf("Merging %d tiles into %dx%d canvas (%d bands %s, %d bytes)",
		len(scan.Records), c.Width, c.Height, c.Bands, c.Depth, scan.Bytes)
	sel, advisory, err := m.Selector.Resolve(c.Bands, nil, format)
	if err != nil {
		return nil, err
	}
	if advisory != nil {
		m.logger().Printf("Warning: %s", advisory)
	}

	canvas, err := m.Assemble(ctx, scan, progress)
	if err != nil {
		return nil, err
	}
	if len(sel) != canvas.Bands {
		canvas, err = canvas.Extract(tile.Box{Width: canvas.Width, Height: canvas.Height}, sel)
		if err != nil {
			return nil, err
		}
	}

	if dir := filepath.Dir(out); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: %w", tile.ErrIOWrite, err)
		}
	}
	if err := m.Provider.Encode(canvas, out, format); err != nil {
		if !errors.Is(err, tile.ErrIOWrite) {
			err = fmt.Errorf("%w: %s: %w", tile.ErrIOWrite, out, err)
		}
		return nil, err
	}

	return &Result{
		Output:   out,
		Width:    canvas.Width,
		Height:   canvas.Height,
		Bands:    canvas.Bands,
		Depth:    canvas.Depth,
		Format:   format,
		Tiles:    len(scan.Records),
		Ignored:  scan.Ignored,
		Advisory: advisory,
	}, nil
}
