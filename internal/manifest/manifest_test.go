package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/kiesman99/tiler/pkg/tile"
)

func sampleEntries() []Entry {
	return []Entry{
		FromBox("scene", "scene_0_0.png", tile.Box{Row: 0, Col: 0, Y: 0, X: 0, Width: 512, Height: 512}, "train"),
		FromBox("scene", "scene_0_512.png", tile.Box{Row: 0, Col: 1, Y: 0, X: 512, Width: 488, Height: 512}, "val"),
		FromBox("scene", "scene_512_0.png", tile.Box{Row: 1, Col: 0, Y: 512, X: 0, Width: 512, Height: 488}, ""),
	}
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"manifest.csv", "manifest.yaml", "manifest.YML"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := Write(path, sampleEntries()); err != nil {
				t.Fatalf("Write failed: %v", err)
			}

			got, err := Read(path)
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if !reflect.DeepEqual(got, sampleEntries()) {
				t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, sampleEntries())
			}
		})
	}
}

func TestRead_CSVColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.csv")
	data := "path,w,h,x0,y0,fold,label\n" +
		"a_0_0.png,10,20,0,0,train,cat\n" +
		"b_0_10.png, 5,20,10,0,,dog\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	want := []Entry{
		{Path: "a_0_0.png", W: 10, H: 20, Fold: "train"},
		{Path: "b_0_10.png", X0: 10, W: 5, H: 20},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestRead_Errors(t *testing.T) {
	dir := t.TempDir()

	testCases := []struct {
		name string
		file string
		data string
	}{
		{"missing column", "a.csv", "path,x0,y0,w\nt_0_0.png,0,0,4\n"},
		{"bad integer", "b.csv", "path,x0,y0,w,h\nt_0_0.png,zero,0,4,4\n"},
		{"empty path", "c.csv", "path,x0,y0,w,h\n,0,0,4,4\n"},
		{"bad yaml", "d.yaml", "rows: [path: {\n"},
		{"unknown extension", "e.json", "[]"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.file)
			if err := os.WriteFile(path, []byte(tc.data), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Read(path); !errors.Is(err, tile.ErrIORead) {
				t.Errorf("Expected ErrIORead, got %v", err)
			}
		})
	}

	if _, err := Read(filepath.Join(dir, "missing.csv")); !errors.Is(err, tile.ErrIORead) {
		t.Errorf("Expected ErrIORead for missing file, got %v", err)
	}
}

func TestWrite_UnknownExtension(t *testing.T) {
	if err := Write(filepath.Join(t.TempDir(), "m.txt"), sampleEntries()); !errors.Is(err, tile.ErrIOWrite) {
		t.Errorf("Expected ErrIOWrite, got %v", err)
	}
}

func TestFilter(t *testing.T) {
	entries := sampleEntries()

	if got := Filter(entries, ""); len(got) != 3 {
		t.Errorf("empty fold should keep all entries, got %d", len(got))
	}
	got := Filter(entries, "val")
	if len(got) != 1 || got[0].Path != "scene_0_512.png" {
		t.Errorf("unexpected filter result %+v", got)
	}
	if got := Filter(entries, "test"); len(got) != 0 {
		t.Errorf("Expected no entries, got %+v", got)
	}
}
