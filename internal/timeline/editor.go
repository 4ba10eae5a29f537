package timeline

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Editor applies UI edits to a timeline
type Editor struct {
	tl             *Timeline
	sourceDuration float64
}

// NewEditor wraps a timeline for editing
func NewEditor(tl *Timeline, sourceDuration float64) *Editor {
	return &Editor{tl: tl, sourceDuration: sourceDuration}
}

// Timeline returns the edited timeline
func (e *Editor) Timeline() *Timeline {
	return e.tl
}

// SetTrim moves the trim window, refusing windows shorter than MinClipLength
func (e *Editor) SetTrim(start, end float64) error {
	if start < 0 || end <= start {
		return fmt.Errorf("%w: start=%.2f end=%.2f", ErrInvalidTrim, start, end)
	}
	if e.sourceDuration > 0 && end > e.sourceDuration {
		return fmt.Errorf("%w: end %.2f exceeds source duration %.2f", ErrInvalidTrim, end, e.sourceDuration)
	}
	if end-start < MinClipLength {
		return fmt.Errorf("%w: %.2fs", ErrClipTooShort, end-start)
	}
	e.tl.TrimStart = start
	e.tl.TrimEnd = end
	return nil
}

// AddOverlay appends a caption with a DefaultOverlayDuration window anchored
// at the preview time and clamped into the trim window.
func (e *Editor) AddOverlay(at float64, text string) Overlay {
	lo, hi := e.tl.TrimStart, e.tl.TrimEnd

	start := clamp(at, lo, hi)
	end := math.Min(start+DefaultOverlayDuration, hi)
	if end-start < DefaultOverlayDuration {
		start = math.Max(lo, end-DefaultOverlayDuration)
	}

	o := Overlay{
		ID:                uuid.NewString(),
		Text:              text,
		Start:             start,
		End:               end,
		Color:             "#FFFFFF",
		Background:        "#000000",
		FontSize:          64,
		Weight:            WeightBold,
		X:                 50,
		Y:                 80,
		BackgroundOpacity: 0.45,
	}
	e.tl.Overlays = append(e.tl.Overlays, o)
	return o
}

// Get returns the overlay with the given id
func (e *Editor) Get(id string) (Overlay, bool) {
	if i := e.index(id); i >= 0 {
		return e.tl.Overlays[i], true
	}
	return Overlay{}, false
}

// UpdateOverlay mutates one overlay in place
func (e *Editor) UpdateOverlay(id string, fn func(*Overlay)) error {
	i := e.index(id)
	if i < 0 {
		return fmt.Errorf("overlay %q not found", id)
	}
	o := e.tl.Overlays[i]
	fn(&o)
	if o.End <= o.Start {
		return fmt.Errorf("overlay %q: end must be after start", id)
	}
	o.ID = id
	e.tl.Overlays[i] = o
	return nil
}

// RemoveOverlay deletes an overlay, keeping the order of the rest
func (e *Editor) RemoveOverlay(id string) bool {
	i := e.index(id)
	if i < 0 {
		return false
	}
	e.tl.Overlays = append(e.tl.Overlays[:i], e.tl.Overlays[i+1:]...)
	return true
}

func (e *Editor) index(id string) int {
	for i, o := range e.tl.Overlays {
		if o.ID == id {
			return i
		}
	}
	return -1
}
