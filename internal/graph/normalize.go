package graph

import (
	"math"

	"github.com/kikiluvv/reelforge/internal/timeline"
	"github.com/kikiluvv/reelforge/pkg/util"
)

// Window is an overlay's visible span in clip-relative seconds, rounded to
// two decimals.
type Window struct {
	Start float64
	End   float64
}

// Normalize maps an absolute [start, end] overlay span into the clip time
// base of the trim window. ok is false when the window collapses, which
// happens for overlays entirely outside the trimmed range.
func Normalize(trimStart, trimEnd, start, end float64) (w Window, ok bool) {
	clip := trimEnd - trimStart

	s := math.Max(0, start-trimStart)
	e := math.Max(s, math.Min(end-trimStart, clip))

	w = Window{Start: util.Round2(s), End: util.Round2(e)}
	return w, w.End > w.Start
}

// Placement pairs an overlay with its normalized window
type Placement struct {
	Overlay timeline.Overlay
	Window  Window
}

// NormalizeOverlays returns the overlays that stay visible after trimming,
// in timeline order.
func NormalizeOverlays(tl timeline.Timeline) []Placement {
	out := make([]Placement, 0, len(tl.Overlays))
	for _, o := range tl.Overlays {
		w, ok := Normalize(tl.TrimStart, tl.TrimEnd, o.Start, o.End)
		if !ok {
			continue
		}
		out = append(out, Placement{Overlay: o, Window: w})
	}
	return out
}
