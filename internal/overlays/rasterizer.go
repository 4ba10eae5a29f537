// Package overlays renders caption overlays into full-frame transparent PNGs
// that the filter graph composites at the origin.
package overlays

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/sync/errgroup"

	"github.com/kikiluvv/reelforge/internal/timeline"
)

// Layout constants relative to the export frame
const (
	// PaddingRatio is the backdrop padding on each side as a fraction of width
	PaddingRatio = 0.02
	// BaselineBias shifts text down by this fraction of the font size
	BaselineBias = 0.08

	DefaultTextColor       = "#FFFFFF"
	DefaultBackgroundColor = "#000000"
)

// Options configures a Rasterizer
type Options struct {
	// FontRegular and FontBold are TTF/OTF paths; empty uses the Go fonts.
	FontRegular string
	FontBold    string

	// Supersample renders at N times the frame size and scales down.
	Supersample int

	// Concurrency bounds RasterizeAll; <= 0 means one overlay at a time.
	Concurrency int
}

// Result is the outcome for one overlay. Err is set when the overlay was
// skipped; PNG is set otherwise.
type Result struct {
	OverlayID string
	PNG       []byte
	Err       error
}

// OK reports whether the overlay rendered
func (r Result) OK() bool {
	return r.Err == nil && len(r.PNG) > 0
}

// Rasterizer draws overlays. It is safe for concurrent use.
type Rasterizer struct {
	logger      zerolog.Logger
	regular     *opentype.Font
	bold        *opentype.Font
	supersample int
	concurrency int

	encode func(io.Writer, image.Image) error
}

// New loads the fonts and returns a ready Rasterizer
func New(logger zerolog.Logger, opts Options) (*Rasterizer, error) {
	regular, err := loadFont(opts.FontRegular, goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("regular font: %w", err)
	}
	bold, err := loadFont(opts.FontBold, gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("bold font: %w", err)
	}

	ss := opts.Supersample
	if ss < 1 {
		ss = 1
	}
	conc := opts.Concurrency
	if conc < 1 {
		conc = 1
	}

	return &Rasterizer{
		logger:      logger.With().Str("component", "rasterizer").Logger(),
		regular:     regular,
		bold:        bold,
		supersample: ss,
		concurrency: conc,
		encode:      png.Encode,
	}, nil
}

func loadFont(path string, fallback []byte) (*opentype.Font, error) {
	data := fallback
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read font file: %w", err)
		}
		data = b
	}

	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	return f, nil
}

// Rasterize renders one overlay into a transparent PNG of exactly geo's size
func (r *Rasterizer) Rasterize(o timeline.Overlay, geo timeline.Geometry) ([]byte, error) {
	if geo.Width <= 0 || geo.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", geo.Width, geo.Height)
	}

	textColor, err := ParseHexColor(orDefault(o.Color, DefaultTextColor))
	if err != nil {
		return nil, err
	}
	bgColor, err := ParseHexColor(orDefault(o.Background, DefaultBackgroundColor))
	if err != nil {
		return nil, err
	}

	s := r.supersample
	w, h := geo.Width*s, geo.Height*s

	// sizes are rounded at export resolution so supersampling does not shift them
	fontPx := int(math.Round(o.FontSize/timeline.ReferenceWidth*float64(geo.Width))) * s
	pad := int(math.Round(PaddingRatio*float64(geo.Width))) * s
	if fontPx <= 0 {
		return nil, fmt.Errorf("font size %.1f renders below one pixel", o.FontSize)
	}

	face, err := opentype.NewFace(r.fontFor(o.Weight), &opentype.FaceOptions{
		Size:    float64(fontPx),
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	defer face.Close()

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))

	ax := int(math.Round(o.X / 100 * float64(w)))
	ay := int(math.Round(o.Y / 100 * float64(h)))
	m := face.Metrics()
	textW := font.MeasureString(face, o.Text).Ceil()
	textH := (m.Ascent + m.Descent).Ceil()

	if o.BackgroundOpacity > 0 {
		boxW := textW + 2*pad
		boxH := textH + 2*pad
		box := image.Rect(ax-boxW/2, ay-boxH/2, ax-boxW/2+boxW, ay-boxH/2+boxH)
		mask := roundedRect{r: box, radius: pad}
		fill := image.NewUniform(withOpacity(bgColor, o.BackgroundOpacity))
		draw.DrawMask(canvas, box, fill, image.Point{}, mask, box.Min, draw.Over)
	}

	cy := fixed.I(ay) + fixed.Int26_6(math.Round(BaselineBias*float64(fontPx)*64))
	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(textColor),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(ax - textW/2),
			Y: cy + (m.Ascent-m.Descent)/2,
		},
	}
	drawer.DrawString(o.Text)

	var out image.Image = canvas
	if s > 1 {
		out = resize.Resize(uint(geo.Width), uint(geo.Height), canvas, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := r.encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode overlay image: %w", err)
	}
	return buf.Bytes(), nil
}

// RasterizeAll renders overlays in parallel and returns one Result per
// overlay in input order. A failed overlay is logged and reported in its
// Result; only context cancellation fails the whole call.
func (r *Rasterizer) RasterizeAll(ctx context.Context, overlays []timeline.Overlay, geo timeline.Geometry) ([]Result, error) {
	results := make([]Result, len(overlays))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, o := range overlays {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := r.Rasterize(o, geo)
			results[i] = Result{OverlayID: o.ID, PNG: data, Err: err}
			if err != nil {
				r.logger.Warn().
					Err(err).
					Str("overlay_id", o.ID).
					Msg("skipping overlay")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Rasterizer) fontFor(w timeline.Weight) *opentype.Font {
	if w == timeline.WeightBold {
		return r.bold
	}
	return r.regular
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
