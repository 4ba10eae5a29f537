package timeline

import (
	"errors"
	"testing"
)

func TestAddOverlayClampsIntoTrim(t *testing.T) {
	tl := New(30)
	tl.TrimStart, tl.TrimEnd = 5, 15
	ed := NewEditor(tl, 30)

	cases := []struct {
		at         float64
		start, end float64
	}{
		{at: 7, start: 7, end: 10},
		{at: 1, start: 5, end: 8},
		{at: 14, start: 12, end: 15},
		{at: 40, start: 12, end: 15},
	}
	for _, tc := range cases {
		o := ed.AddOverlay(tc.at, "caption")
		if o.Start != tc.start || o.End != tc.end {
			t.Errorf("AddOverlay(%v): expected [%v,%v], got [%v,%v]", tc.at, tc.start, tc.end, o.Start, o.End)
		}
		if o.ID == "" {
			t.Error("expected generated id")
		}
	}
	if len(tl.Overlays) != len(cases) {
		t.Errorf("expected %d overlays, got %d", len(cases), len(tl.Overlays))
	}
}

func TestUpdateAndRemoveOverlay(t *testing.T) {
	tl := New(30)
	ed := NewEditor(tl, 30)
	a := ed.AddOverlay(0, "a")
	b := ed.AddOverlay(1, "b")
	c := ed.AddOverlay(2, "c")

	if err := ed.UpdateOverlay(b.ID, func(o *Overlay) { o.Text = "B"; o.ID = "hijack" }); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, ok := ed.Get(b.ID)
	if !ok || got.Text != "B" {
		t.Errorf("expected updated text %q, got %+v", "B", got)
	}

	if err := ed.UpdateOverlay(a.ID, func(o *Overlay) { o.End = o.Start }); err == nil {
		t.Error("expected error for collapsed window")
	}

	if !ed.RemoveOverlay(b.ID) {
		t.Fatal("expected removal")
	}
	if ed.RemoveOverlay(b.ID) {
		t.Error("second removal should report false")
	}
	if len(tl.Overlays) != 2 || tl.Overlays[0].ID != a.ID || tl.Overlays[1].ID != c.ID {
		t.Errorf("expected order [a c] after removal, got %+v", tl.Overlays)
	}
}

func TestSetTrim(t *testing.T) {
	ed := NewEditor(New(10), 10)

	if err := ed.SetTrim(1, 1.3); !errors.Is(err, ErrClipTooShort) {
		t.Errorf("expected ErrClipTooShort, got %v", err)
	}
	if err := ed.SetTrim(1, 11); !errors.Is(err, ErrInvalidTrim) {
		t.Errorf("expected ErrInvalidTrim, got %v", err)
	}
	if err := ed.SetTrim(1, 4); err != nil {
		t.Fatalf("set trim: %v", err)
	}
	if ed.Timeline().ClipDuration() != 3 {
		t.Errorf("expected clip duration 3, got %v", ed.Timeline().ClipDuration())
	}
}
