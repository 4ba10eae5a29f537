package overlays

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"

	"github.com/kikiluvv/reelforge/internal/timeline"
)

// a small frame keeps the tests fast; 216 is a fifth of the reference width
var testGeometry = timeline.Geometry{Name: "test", Width: 216, Height: 384}

func newTestRasterizer(t *testing.T, opts Options) *Rasterizer {
	t.Helper()
	r, err := New(zerolog.Nop(), opts)
	if err != nil {
		t.Fatalf("failed to create rasterizer: %v", err)
	}
	return r
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode png: %v", err)
	}
	return img
}

func centered(text string) timeline.Overlay {
	return timeline.Overlay{
		ID:                "o1",
		Text:              text,
		Color:             "#FFFFFF",
		Background:        "#FF0000",
		FontSize:          64,
		Weight:            timeline.WeightBold,
		X:                 50,
		Y:                 50,
		BackgroundOpacity: 1,
	}
}

func TestRasterizeFrameSize(t *testing.T) {
	for _, ss := range []int{1, 2} {
		r := newTestRasterizer(t, Options{Supersample: ss})
		data, err := r.Rasterize(centered("Hello"), testGeometry)
		if err != nil {
			t.Fatalf("supersample %d: rasterize: %v", ss, err)
		}
		b := decode(t, data).Bounds()
		if b.Dx() != testGeometry.Width || b.Dy() != testGeometry.Height {
			t.Errorf("supersample %d: expected %dx%d, got %dx%d", ss, testGeometry.Width, testGeometry.Height, b.Dx(), b.Dy())
		}
	}
}

func TestRasterizeBackdrop(t *testing.T) {
	r := newTestRasterizer(t, Options{})

	data, err := r.Rasterize(centered(""), testGeometry)
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	img := decode(t, data)

	// the anchor sits inside the backdrop
	cr, cg, cb, ca := img.At(108, 192).RGBA()
	if cr != 0xffff || cg != 0 || cb != 0 || ca != 0xffff {
		t.Errorf("expected opaque red at anchor, got %04x %04x %04x %04x", cr, cg, cb, ca)
	}

	// everything far from the anchor is transparent
	for _, p := range []image.Point{{0, 0}, {215, 383}, {108, 20}, {5, 192}} {
		if _, _, _, a := img.At(p.X, p.Y).RGBA(); a != 0 {
			t.Errorf("expected transparent pixel at %v, got alpha %d", p, a)
		}
	}
}

func TestRasterizeBackdropFitsTextHeight(t *testing.T) {
	r := newTestRasterizer(t, Options{})

	o := centered("MMMMMM")
	data, err := r.Rasterize(o, testGeometry)
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	img := decode(t, data)

	fontPx := int(math.Round(o.FontSize / timeline.ReferenceWidth * float64(testGeometry.Width)))
	pad := int(math.Round(PaddingRatio * float64(testGeometry.Width)))
	face, err := opentype.NewFace(r.bold, &opentype.FaceOptions{Size: float64(fontPx), DPI: 72, Hinting: font.HintingNone})
	if err != nil {
		t.Fatalf("face: %v", err)
	}
	defer face.Close()
	m := face.Metrics()
	want := (m.Ascent + m.Descent).Ceil() + 2*pad

	var got int
	for y := 0; y < testGeometry.Height; y++ {
		if _, _, _, a := img.At(testGeometry.Width/2, y).RGBA(); a != 0 {
			got++
		}
	}
	if got != want {
		t.Errorf("expected backdrop %d px tall, got %d", want, got)
	}
}

func TestRasterizeBackdropOpacity(t *testing.T) {
	r := newTestRasterizer(t, Options{})

	o := centered("")
	o.Background = "#000000"
	o.BackgroundOpacity = 0.5

	data, err := r.Rasterize(o, testGeometry)
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	if _, _, _, a := decode(t, data).At(108, 192).RGBA(); a != 128*0x101 {
		t.Errorf("expected half alpha, got %d", a)
	}
}

func TestRasterizeTextWithoutBackdrop(t *testing.T) {
	r := newTestRasterizer(t, Options{})

	o := centered("Hello world")
	o.BackgroundOpacity = 0

	data, err := r.Rasterize(o, testGeometry)
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	img := decode(t, data)

	var painted int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a > 0 {
				painted++
				if y < 160 || y > 230 {
					t.Fatalf("text pixel far from anchor row at (%d,%d)", x, y)
				}
			}
		}
	}
	if painted == 0 {
		t.Error("expected text pixels to be drawn")
	}
}

func TestRasterizeRejectsBadInput(t *testing.T) {
	r := newTestRasterizer(t, Options{})

	bad := centered("x")
	bad.Color = "not-a-color"
	if _, err := r.Rasterize(bad, testGeometry); err == nil {
		t.Error("expected error for invalid color")
	}

	tiny := centered("x")
	tiny.FontSize = 0.1
	if _, err := r.Rasterize(tiny, testGeometry); err == nil {
		t.Error("expected error for sub-pixel font")
	}

	if _, err := r.Rasterize(centered("x"), timeline.Geometry{}); err == nil {
		t.Error("expected error for empty frame")
	}
}

func TestRasterizeAllSkipsFailuresInOrder(t *testing.T) {
	r := newTestRasterizer(t, Options{Concurrency: 3})

	good1 := centered("one")
	good1.ID = "a"
	bad := centered("two")
	bad.ID = "b"
	bad.Background = "#12"
	good2 := centered("three")
	good2.ID = "c"

	results, err := r.RasterizeAll(context.Background(), []timeline.Overlay{good1, bad, good2}, testGeometry)
	if err != nil {
		t.Fatalf("rasterize all: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, id := range []string{"a", "b", "c"} {
		if results[i].OverlayID != id {
			t.Errorf("result %d: expected %q, got %q", i, id, results[i].OverlayID)
		}
	}
	if !results[0].OK() || !results[2].OK() {
		t.Error("expected valid overlays to render")
	}
	if results[1].OK() || results[1].Err == nil {
		t.Error("expected invalid overlay to be skipped")
	}
}

func TestRasterizeEncodeFailureIsSkipped(t *testing.T) {
	r := newTestRasterizer(t, Options{})
	r.encode = func(io.Writer, image.Image) error { return errors.New("disk full") }

	results, err := r.RasterizeAll(context.Background(), []timeline.Overlay{centered("x")}, testGeometry)
	if err != nil {
		t.Fatalf("encode failure should not fail the batch: %v", err)
	}
	if results[0].OK() {
		t.Error("expected overlay to be skipped")
	}
}

func TestRasterizeAllCanceled(t *testing.T) {
	r := newTestRasterizer(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.RasterizeAll(ctx, []timeline.Overlay{centered("x")}, testGeometry); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    [4]uint8
		wantErr bool
	}{
		{"#FFFFFF", [4]uint8{255, 255, 255, 255}, false},
		{"#f00", [4]uint8{255, 0, 0, 255}, false},
		{"00ff0080", [4]uint8{0, 255, 0, 128}, false},
		{" #123456 ", [4]uint8{0x12, 0x34, 0x56, 255}, false},
		{"#12", [4]uint8{}, true},
		{"#GGGGGG", [4]uint8{}, true},
	}
	for _, tt := range tests {
		c, err := ParseHexColor(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: expected error=%v, got %v", tt.in, tt.wantErr, err)
			continue
		}
		if got := [4]uint8{c.R, c.G, c.B, c.A}; !tt.wantErr && got != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.in, tt.want, got)
		}
	}
}
