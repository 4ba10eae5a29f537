package graph

import (
	"testing"

	"github.com/kikiluvv/reelforge/internal/timeline"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name               string
		trimStart, trimEnd float64
		start, end         float64
		wantStart, wantEnd float64
		wantOK             bool
	}{
		{"inside", 0, 10, 2, 5, 2, 5, true},
		{"shifted by trim", 3, 10, 4, 6, 1, 3, true},
		{"starts before trim", 3, 10, 1, 5, 0, 2, true},
		{"ends after trim", 0, 10, 8, 15, 8, 10, true},
		{"covers whole clip", 2, 6, 0, 100, 0, 4, true},
		{"after trim end", 0, 10, 12, 15, 12, 12, false},
		{"before trim start", 5, 10, 1, 4, 0, 0, false},
		{"ends exactly at trim start", 5, 10, 1, 5, 0, 0, false},
		{"starts exactly at trim end", 0, 10, 10, 12, 10, 10, false},
		{"rounded", 1.004, 9.374, 2.2261, 4.5, 1.22, 3.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, ok := Normalize(tt.trimStart, tt.trimEnd, tt.start, tt.end)
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v (window %+v)", tt.wantOK, ok, w)
			}
			if w.Start != tt.wantStart || w.End != tt.wantEnd {
				t.Errorf("expected (%.2f,%.2f), got (%.2f,%.2f)", tt.wantStart, tt.wantEnd, w.Start, w.End)
			}
			if w.Start > w.End {
				t.Errorf("window start %.2f after end %.2f", w.Start, w.End)
			}
		})
	}
}

func TestNormalizeOverlaysKeepsOrderAndDropsCollapsed(t *testing.T) {
	tl := timeline.Timeline{
		TrimStart: 2,
		TrimEnd:   10,
		Overlays: []timeline.Overlay{
			{ID: "c", Start: 5, End: 6},
			{ID: "gone-early", Start: 0, End: 1},
			{ID: "a", Start: 1, End: 4},
			{ID: "gone-late", Start: 11, End: 12},
			{ID: "b", Start: 9, End: 20},
		},
	}

	got := NormalizeOverlays(tl)

	wantIDs := []string{"c", "a", "b"}
	if len(got) != len(wantIDs) {
		t.Fatalf("expected %d placements, got %d", len(wantIDs), len(got))
	}
	for i, id := range wantIDs {
		if got[i].Overlay.ID != id {
			t.Errorf("placement %d: expected %q, got %q", i, id, got[i].Overlay.ID)
		}
	}

	if got[1].Window != (Window{Start: 0, End: 2}) {
		t.Errorf("expected clipped window (0,2), got %+v", got[1].Window)
	}
	if got[2].Window != (Window{Start: 7, End: 8}) {
		t.Errorf("expected clipped window (7,8), got %+v", got[2].Window)
	}
}
