// Package codectest provides an in-memory codec.Provider for tests.
package codectest

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kiesman99/tiler/internal/codec"
	"github.com/kiesman99/tiler/internal/raster"
	"github.com/kiesman99/tiler/pkg/tile"
)

// Memory keeps encoded rasters in a map keyed by path. It is safe for
// concurrent use.
type Memory struct {
	mu      sync.Mutex
	images  map[string]*raster.Raster
	formats map[string]tile.Format
	fail    map[string]error
	encodes int
}

// NewMemory returns an empty provider
func NewMemory() *Memory {
	return &Memory{
		images:  map[string]*raster.Raster{},
		formats: map[string]tile.Format{},
		fail:    map[string]error{},
	}
}

// Put stores r at path as if it had been written
func (m *Memory) Put(path string, r *raster.Raster) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[filepath.Clean(path)] = clone(r)
}

// FailOn makes every operation on path return err
func (m *Memory) FailOn(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[filepath.Clean(path)] = err
}

// Paths lists the stored paths in lexical order
func (m *Memory) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.images))
	for p := range m.images {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Get returns the raster stored at path
func (m *Memory) Get(path string) (*raster.Raster, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.images[filepath.Clean(path)]
	return r, ok
}

// Format returns the format path was encoded with
func (m *Memory) Format(path string) tile.Format {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.formats[filepath.Clean(path)]
}

// Encodes counts successful Encode calls
func (m *Memory) Encodes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.encodes
}

// Decode implements codec.Provider
func (m *Memory) Decode(path string) (*raster.Raster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err := m.fail[path]; err != nil {
		return nil, fmt.Errorf("%w: %s: %w", tile.ErrIORead, path, err)
	}
	r, ok := m.images[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s: no such file", tile.ErrIORead, path)
	}
	return clone(r), nil
}

// Probe implements codec.Provider
func (m *Memory) Probe(path string) (codec.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err := m.fail[path]; err != nil {
		return codec.Info{}, fmt.Errorf("%w: %s: %w", tile.ErrIORead, path, err)
	}
	r, ok := m.images[path]
	if !ok {
		return codec.Info{}, fmt.Errorf("%w: %s: no such file", tile.ErrIORead, path)
	}
	return codec.Info{Width: r.Width, Height: r.Height, Bands: r.Bands, Depth: r.Depth, Format: string(m.formats[path])}, nil
}

// Encode implements codec.Provider
func (m *Memory) Encode(r *raster.Raster, path string, f tile.Format) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err := m.fail[path]; err != nil {
		return fmt.Errorf("%w: %s: %w", tile.ErrIOWrite, path, err)
	}
	if !f.Writable() {
		return fmt.Errorf("%w: %s: cannot encode %q", tile.ErrIOWrite, path, f)
	}
	m.images[path] = clone(r)
	m.formats[path] = f
	m.encodes++
	return nil
}

func clone(r *raster.Raster) *raster.Raster {
	c := *r
	c.Pix = append([]uint16(nil), r.Pix...)
	return &c
}
