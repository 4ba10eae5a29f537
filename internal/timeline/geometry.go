package timeline

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Geometry is an exact export frame size in pixels
type Geometry struct {
	Name   string
	Width  int
	Height int
}

const (
	PresetPortrait  = "portrait"
	PresetSquare    = "square"
	PresetLandscape = "landscape"
)

var presets = map[string]Geometry{
	PresetPortrait:  {Name: PresetPortrait, Width: 1080, Height: 1920},
	PresetSquare:    {Name: PresetSquare, Width: 1080, Height: 1080},
	PresetLandscape: {Name: PresetLandscape, Width: 1920, Height: 1080},
}

// Lookup returns a preset by name
func Lookup(name string) (Geometry, error) {
	g, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Geometry{}, fmt.Errorf("unsupported geometry preset: %q", name)
	}
	return g, nil
}

// PresetNames returns the preset names in sorted order
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Landscape reports whether the frame is wider than tall
func (g Geometry) Landscape() bool {
	return g.Width > g.Height
}

func (g Geometry) String() string {
	return fmt.Sprintf("%s (%dx%d)", g.Name, g.Width, g.Height)
}
