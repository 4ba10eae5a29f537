package overlays

import (
	"image"
	"image/color"
)

// roundedRect is an alpha mask covering r with corners of the given radius
type roundedRect struct {
	r      image.Rectangle
	radius int
}

func (m roundedRect) ColorModel() color.Model {
	return color.AlphaModel
}

func (m roundedRect) Bounds() image.Rectangle {
	return m.r
}

func (m roundedRect) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}).In(m.r) {
		return color.Transparent
	}

	rad := m.radius
	if limit := min(m.r.Dx(), m.r.Dy()) / 2; rad > limit {
		rad = limit
	}
	if rad <= 0 {
		return color.Opaque
	}

	// distance from the nearest corner circle center, only inside corner boxes
	cx, cy := x, y
	switch {
	case x < m.r.Min.X+rad:
		cx = m.r.Min.X + rad
	case x >= m.r.Max.X-rad:
		cx = m.r.Max.X - rad - 1
	}
	switch {
	case y < m.r.Min.Y+rad:
		cy = m.r.Min.Y + rad
	case y >= m.r.Max.Y-rad:
		cy = m.r.Max.Y - rad - 1
	}

	dx, dy := x-cx, y-cy
	if dx*dx+dy*dy > rad*rad {
		return color.Transparent
	}
	return color.Opaque
}
