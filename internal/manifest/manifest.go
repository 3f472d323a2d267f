// Package manifest reads and writes tile manifests: one entry per tile with
// its scene, path and pixel rectangle. The format follows the file
// extension, CSV with a header line or YAML with a top level rows list.
package manifest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/kiesman99/tiler/pkg/tile"
)

// Entry is one manifest row
type Entry struct {
	SceneID string `yaml:"scene_id"`
	Path    string `yaml:"path"`
	X0      int    `yaml:"x0"`
	Y0      int    `yaml:"y0"`
	W       int    `yaml:"w"`
	H       int    `yaml:"h"`
	Row     int    `yaml:"row"`
	Col     int    `yaml:"col"`
	Fold    string `yaml:"fold,omitempty"`
}

// FromBox builds the entry for a tile written at path
func FromBox(scene, path string, b tile.Box, fold string) Entry {
	return Entry{
		SceneID: scene,
		Path:    path,
		X0:      b.X,
		Y0:      b.Y,
		W:       b.Width,
		H:       b.Height,
		Row:     b.Row,
		Col:     b.Col,
		Fold:    fold,
	}
}

type document struct {
	Rows []Entry `yaml:"rows"`
}

var header = []string{"scene_id", "path", "x0", "y0", "w", "h", "row", "col", "fold"}

var required = []string{"path", "x0", "y0", "w", "h"}

type encoding int

const (
	encodingCSV encoding = iota
	encodingYAML
)

func encodingOf(path string) (encoding, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return encodingCSV, nil
	case ".yaml", ".yml":
		return encodingYAML, nil
	}
	return 0, fmt.Errorf("manifest %s: unknown extension (want .csv, .yaml or .yml)", path)
}

// Write stores entries at path, replacing any existing file
func Write(path string, entries []Entry) (err error) {
	enc, err := encodingOf(path)
	if err != nil {
		return fmt.Errorf("%w: %w", tile.ErrIOWrite, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %w", tile.ErrIOWrite, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
		if err != nil {
			err = fmt.Errorf("%w: manifest %s: %w", tile.ErrIOWrite, path, err)
		}
	}()

	if enc == encodingYAML {
		ye := yaml.NewEncoder(f)
		ye.SetIndent(2)
		return multierr.Append(ye.Encode(document{Rows: entries}), ye.Close())
	}
	return writeCSV(f, entries)
}

func writeCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range entries {
		rec := []string{
			e.SceneID,
			e.Path,
			strconv.Itoa(e.X0),
			strconv.Itoa(e.Y0),
			strconv.Itoa(e.W),
			strconv.Itoa(e.H),
			strconv.Itoa(e.Row),
			strconv.Itoa(e.Col),
			e.Fold,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read loads the entries stored at path. CSV manifests may carry extra
// columns; path, x0, y0, w and h are required.
func Read(path string) ([]Entry, error) {
	enc, err := encodingOf(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tile.ErrIORead, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tile.ErrIORead, err)
	}
	defer f.Close()

	var entries []Entry
	if enc == encodingYAML {
		var doc document
		if err := yaml.NewDecoder(f).Decode(&doc); err != nil && err != io.EOF {
			return nil, fmt.Errorf("%w: manifest %s: %w", tile.ErrIORead, path, err)
		}
		entries = doc.Rows
	} else {
		entries, err = readCSV(f)
		if err != nil {
			return nil, fmt.Errorf("%w: manifest %s: %w", tile.ErrIORead, path, err)
		}
	}

	for i, e := range entries {
		if e.Path == "" {
			return nil, fmt.Errorf("%w: manifest %s: entry %d has no path", tile.ErrIORead, path, i+1)
		}
	}
	return entries, nil
}

func readCSV(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cols := make(map[string]int, len(head))
	for i, name := range head {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var entries []Entry
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}

		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		number := func(name string) (int, error) {
			s := field(name)
			if s == "" {
				return 0, nil
			}
			v, err := strconv.Atoi(s)
			if err != nil {
				return 0, fmt.Errorf("line %d: column %s: %q is not an integer", line, name, s)
			}
			return v, nil
		}

		e := Entry{SceneID: field("scene_id"), Path: field("path"), Fold: field("fold")}
		for _, n := range []struct {
			name string
			dst  *int
		}{
			{"x0", &e.X0}, {"y0", &e.Y0}, {"w", &e.W}, {"h", &e.H}, {"row", &e.Row}, {"col", &e.Col},
		} {
			if *n.dst, err = number(n.name); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
}

// Filter returns the entries of the given fold. An empty fold keeps all
// entries.
func Filter(entries []Entry, fold string) []Entry {
	if fold == "" {
		return entries
	}
	var out []Entry
	for _, e := range entries {
		if e.Fold == fold {
			out = append(out, e)
		}
	}
	return out
}
