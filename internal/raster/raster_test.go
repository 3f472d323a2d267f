package raster

import (
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/kiesman99/tiler/pkg/tile"
)

// createPatternRaster fills every sample with a value derived from its
// position so misplaced pixels are detectable
func createPatternRaster(w, h, bands int, depth tile.Depth) *Raster {
	r := New(w, h, bands, depth)
	mask := uint16(0xff)
	if depth == tile.Depth16 {
		mask = 0xffff
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for b := 0; b < bands; b++ {
				r.Set(x, y, b, uint16(x*7+y*13+b*29)&mask)
			}
		}
	}
	return r
}

func TestExtract(t *testing.T) {
	src := createPatternRaster(20, 10, 4, tile.Depth8)

	box := tile.Box{Y: 2, X: 5, Width: 6, Height: 3}
	out, err := src.Extract(box, tile.BandSelection{3, 0})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if out.Width != 6 || out.Height != 3 || out.Bands != 2 {
		t.Fatalf("dimensions: got %dx%dx%d, want 6x3x2", out.Width, out.Height, out.Bands)
	}
	for y := 0; y < 3; y++ {
		for x := 0; x < 6; x++ {
			if got, want := out.At(x, y, 0), src.At(x+5, y+2, 3); got != want {
				t.Errorf("(%d,%d) band 0: got %d, want %d", x, y, got, want)
			}
			if got, want := out.At(x, y, 1), src.At(x+5, y+2, 0); got != want {
				t.Errorf("(%d,%d) band 1: got %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestExtract_AllBands(t *testing.T) {
	src := createPatternRaster(8, 8, 3, tile.Depth16)

	out, err := src.Extract(tile.Box{Y: 4, X: 4, Width: 4, Height: 4}, nil)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if out.Bands != 3 || out.Depth != tile.Depth16 {
		t.Errorf("Expected 3 bands uint16, got %d %s", out.Bands, out.Depth)
	}
	if out.At(3, 3, 2) != src.At(7, 7, 2) {
		t.Error("corner sample mismatch")
	}
}

func TestExtract_OutOfBounds(t *testing.T) {
	src := New(10, 10, 1, tile.Depth8)

	boxes := []tile.Box{
		{Y: -1, X: 0, Width: 5, Height: 5},
		{Y: 0, X: 6, Width: 5, Height: 5},
		{Y: 6, X: 0, Width: 5, Height: 5},
		{Y: 0, X: 0, Width: 0, Height: 5},
	}
	for _, b := range boxes {
		if _, err := src.Extract(b, nil); !errors.Is(err, tile.ErrCropOutOfBounds) {
			t.Errorf("Extract(%+v): expected ErrCropOutOfBounds, got %v", b, err)
		}
	}

	if _, err := src.Extract(tile.Box{Width: 1, Height: 1}, tile.BandSelection{1}); !errors.Is(err, tile.ErrInvalidBandSelection) {
		t.Errorf("Expected ErrInvalidBandSelection, got %v", err)
	}
}

func TestPaste(t *testing.T) {
	dst := New(10, 10, 2, tile.Depth8)
	src := createPatternRaster(4, 3, 2, tile.Depth8)

	if err := dst.Paste(src, 7, 6); err != nil {
		t.Fatalf("Paste failed: %v", err)
	}
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			if dst.At(x+6, y+7, 1) != src.At(x, y, 1) {
				t.Errorf("pixel (%d,%d) not pasted", x, y)
			}
		}
	}
	if dst.At(5, 7, 0) != 0 || dst.At(6, 6, 0) != 0 {
		t.Error("paste wrote outside its rectangle")
	}
}

func TestPaste_LastWriteWins(t *testing.T) {
	dst := New(4, 4, 1, tile.Depth8)
	a := New(4, 4, 1, tile.Depth8)
	b := New(2, 2, 1, tile.Depth8)
	for i := range a.Pix {
		a.Pix[i] = 1
	}
	for i := range b.Pix {
		b.Pix[i] = 2
	}

	_ = dst.Paste(a, 0, 0)
	_ = dst.Paste(b, 1, 1)

	if dst.At(1, 1, 0) != 2 || dst.At(0, 0, 0) != 1 || dst.At(3, 3, 0) != 1 {
		t.Errorf("unexpected overlap result %v", dst.Pix)
	}
}

func TestPaste_Errors(t *testing.T) {
	dst := New(10, 10, 3, tile.Depth8)

	if err := dst.Paste(New(5, 5, 3, tile.Depth8), 6, 0); !errors.Is(err, tile.ErrPasteOutOfBounds) {
		t.Errorf("Expected ErrPasteOutOfBounds, got %v", err)
	}
	if err := dst.Paste(New(5, 5, 3, tile.Depth8), 0, -1); !errors.Is(err, tile.ErrPasteOutOfBounds) {
		t.Errorf("Expected ErrPasteOutOfBounds, got %v", err)
	}
	if err := dst.Paste(New(5, 5, 4, tile.Depth8), 0, 0); !errors.Is(err, tile.ErrInconsistentTileFormat) {
		t.Errorf("Expected ErrInconsistentTileFormat, got %v", err)
	}
	if err := dst.Paste(New(5, 5, 3, tile.Depth16), 0, 0); !errors.Is(err, tile.ErrInconsistentTileFormat) {
		t.Errorf("Expected ErrInconsistentTileFormat, got %v", err)
	}
}

func TestWithOpaqueAlpha(t *testing.T) {
	for _, depth := range []tile.Depth{tile.Depth8, tile.Depth16} {
		src := createPatternRaster(5, 3, 3, depth)
		out, err := src.WithOpaqueAlpha()
		if err != nil {
			t.Fatalf("%s: WithOpaqueAlpha failed: %v", depth, err)
		}
		if out.Bands != 4 || out.Depth != depth || out.Width != 5 || out.Height != 3 {
			t.Fatalf("%s: got %dx%dx%d %s", depth, out.Width, out.Height, out.Bands, out.Depth)
		}

		opaque := uint16(0xff)
		if depth == tile.Depth16 {
			opaque = 0xffff
		}
		for y := 0; y < 3; y++ {
			for x := 0; x < 5; x++ {
				for b := 0; b < 3; b++ {
					if out.At(x, y, b) != src.At(x, y, b) {
						t.Fatalf("%s: (%d,%d) band %d changed", depth, x, y, b)
					}
				}
				if out.At(x, y, 3) != opaque {
					t.Fatalf("%s: (%d,%d) alpha %d, want %d", depth, x, y, out.At(x, y, 3), opaque)
				}
			}
		}
	}

	if _, err := New(2, 2, 1, tile.Depth8).WithOpaqueAlpha(); !errors.Is(err, tile.ErrInconsistentTileFormat) {
		t.Errorf("Expected ErrInconsistentTileFormat, got %v", err)
	}
}

func TestCanvasBytesMatchesBuffer(t *testing.T) {
	for _, c := range []tile.Canvas{
		{Width: 1000, Height: 1000, Bands: 3, Depth: tile.Depth8},
		{Width: 7, Height: 3, Bands: 1, Depth: tile.Depth16},
		{Width: 33, Height: 17, Bands: 4, Depth: tile.Depth8},
	} {
		r := New(c.Width, c.Height, c.Bands, c.Depth)
		if want := uint64(binary.Size(r.Pix)); c.Bytes() != want {
			t.Errorf("%+v: Bytes() = %d, buffer is %d bytes", c, c.Bytes(), want)
		}
	}
}

func TestImageRoundTrip(t *testing.T) {
	testCases := []struct {
		bands int
		depth tile.Depth
	}{
		{1, tile.Depth8},
		{1, tile.Depth16},
		{3, tile.Depth8},
		{3, tile.Depth16},
		{4, tile.Depth8},
		{4, tile.Depth16},
	}

	for _, tc := range testCases {
		src := createPatternRaster(9, 5, tc.bands, tc.depth)
		img, err := src.Image()
		if err != nil {
			t.Fatalf("%d bands %s: Image failed: %v", tc.bands, tc.depth, err)
		}
		back := FromImage(img)

		if back.Bands != tc.bands || back.Depth != tc.depth {
			t.Errorf("%d bands %s: round trip gave %d bands %s", tc.bands, tc.depth, back.Bands, back.Depth)
			continue
		}
		for i := range src.Pix {
			if src.Pix[i] != back.Pix[i] {
				t.Errorf("%d bands %s: sample %d: got %d, want %d", tc.bands, tc.depth, i, back.Pix[i], src.Pix[i])
				break
			}
		}
	}
}

func TestImage_UnsupportedLayout(t *testing.T) {
	for _, bands := range []int{2, 5} {
		if Encodable(bands) {
			t.Errorf("Encodable(%d) = true", bands)
		}
		if _, err := New(2, 2, bands, tile.Depth8).Image(); err == nil {
			t.Errorf("Expected error for %d bands", bands)
		}
	}
}

func TestFromImage_SubImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	sub := img.SubImage(image.Rect(3, 4, 6, 6))

	r := FromImage(sub)
	if r.Width != 3 || r.Height != 2 || r.Bands != 1 {
		t.Fatalf("Expected 3x2x1, got %dx%dx%d", r.Width, r.Height, r.Bands)
	}
	if r.At(0, 0, 0) != 43 || r.At(2, 1, 0) != 55 {
		t.Errorf("unexpected samples %v", r.Pix)
	}
}

func TestFromImage_Models(t *testing.T) {
	rect := image.Rect(0, 0, 2, 2)
	opaque := color.Palette{color.Black, color.White}
	translucent := color.Palette{color.Transparent, color.White}

	testCases := []struct {
		name  string
		img   image.Image
		bands int
		depth tile.Depth
	}{
		{"gray", image.NewGray(rect), 1, tile.Depth8},
		{"gray16", image.NewGray16(rect), 1, tile.Depth16},
		{"rgba", image.NewRGBA(rect), 3, tile.Depth8},
		{"rgba64", image.NewRGBA64(rect), 3, tile.Depth16},
		{"nrgba", image.NewNRGBA(rect), 4, tile.Depth8},
		{"nrgba64", image.NewNRGBA64(rect), 4, tile.Depth16},
		{"ycbcr", image.NewYCbCr(rect, image.YCbCrSubsampleRatio420), 3, tile.Depth8},
		{"cmyk", image.NewCMYK(rect), 4, tile.Depth8},
		{"opaque palette", image.NewPaletted(rect, opaque), 3, tile.Depth8},
		{"alpha palette", image.NewPaletted(rect, translucent), 4, tile.Depth8},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := FromImage(tc.img)
			if r.Bands != tc.bands || r.Depth != tc.depth {
				t.Errorf("got %d bands %s, want %d bands %s", r.Bands, r.Depth, tc.bands, tc.depth)
			}
			bands, depth := ModelLayout(tc.img.ColorModel())
			if bands != tc.bands || depth != tc.depth {
				t.Errorf("ModelLayout: got %d %s", bands, depth)
			}
		})
	}
}

func TestFromImage_Unpremultiplies(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Pix[0], img.Pix[1], img.Pix[2], img.Pix[3] = 50, 100, 0, 200

	r := FromImage(img)
	if r.At(0, 0, 0) != 63 || r.At(0, 0, 1) != 127 {
		t.Errorf("Expected unpremultiplied (63,127), got (%d,%d)", r.At(0, 0, 0), r.At(0, 0, 1))
	}
}

func TestNormalize(t *testing.T) {
	r := New(4, 1, 2, tile.Depth16)
	copy(r.Pix, []uint16{1000, 7, 2000, 7, 3000, 7, 5000, 300})

	mm := r.Normalize(NormalizeMinMax)
	if mm.Depth != tile.Depth8 {
		t.Fatalf("Expected uint8 result, got %s", mm.Depth)
	}
	want := []uint16{0, 0, 63, 0, 127, 0, 255, 255}
	for i := range want {
		if mm.Pix[i] != want[i] {
			t.Errorf("minmax sample %d: got %d, want %d", i, mm.Pix[i], want[i])
		}
	}

	clip := r.Normalize(NormalizeClip)
	wantClip := []uint16{255, 7, 255, 7, 255, 7, 255, 255}
	for i := range wantClip {
		if clip.Pix[i] != wantClip[i] {
			t.Errorf("clip sample %d: got %d, want %d", i, clip.Pix[i], wantClip[i])
		}
	}

	if r.Normalize(NormalizeNone) != r {
		t.Error("NormalizeNone should return the raster unchanged")
	}
	r8 := New(1, 1, 1, tile.Depth8)
	if r8.Normalize(NormalizeMinMax) != r8 {
		t.Error("8-bit rasters should be returned unchanged")
	}
}

func TestNormalize_ConstantBand(t *testing.T) {
	r := New(3, 3, 1, tile.Depth16)
	for i := range r.Pix {
		r.Pix[i] = 4242
	}
	out := r.Normalize(NormalizeMinMax)
	for i, v := range out.Pix {
		if v != 0 {
			t.Fatalf("sample %d: expected 0 for constant band, got %d", i, v)
		}
	}
}

func TestParseNormalization(t *testing.T) {
	for _, s := range []string{"none", "MINMAX", "clip", ""} {
		if _, err := ParseNormalization(s); err != nil {
			t.Errorf("ParseNormalization(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseNormalization("gamma"); err == nil {
		t.Error("Expected error for unknown mode")
	}
}
