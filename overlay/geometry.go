package overlay

import "math"

// rotations below this (radians) are drawn unrotated
const rotationEpsilon = 1e-9

// Box is an axis-aligned box in world-pixel space.
type Box struct {
	MinX, MinY float64
	MaxX, MaxY float64
	Width      float64
	Height     float64
}

func (b Box) Center() (float64, float64) {
	return (b.MinX + b.MaxX) / 2, (b.MinY + b.MaxY) / 2
}

func (b Box) Rect() Rect {
	return Rect{Left: b.MinX, Top: b.MinY, Right: b.MaxX, Bottom: b.MaxY}
}

// Degenerate reports whether the box has no drawable area.
func (b Box) Degenerate() bool {
	return !(b.Width > 0 && b.Height > 0)
}

// Pad shrinks the box by the padding fractions. Negative fractions grow
// it; fractions adding up to 1 or more on one axis collapse or invert it.
func (b Box) Pad(p Padding) Box {
	padL := b.Width * p.Left
	padR := b.Width * p.Right
	padT := b.Height * p.Top
	padB := b.Height * p.Bottom

	return Box{
		MinX:   b.MinX + padL,
		MinY:   b.MinY + padT,
		MaxX:   b.MaxX - padR,
		MaxY:   b.MaxY - padB,
		Width:  b.Width - padL - padR,
		Height: b.Height - padT - padB,
	}
}

// Corners returns the box corners clockwise from the top-left, rotated
// by angle radians about the box center.
func (b Box) Corners(angle float64) [4][2]float64 {
	corners := [4][2]float64{
		{b.MinX, b.MinY},
		{b.MaxX, b.MinY},
		{b.MaxX, b.MaxY},
		{b.MinX, b.MaxY},
	}
	if angle == 0 {
		return corners
	}

	cx, cy := b.Center()
	cos, sin := math.Cos(angle), math.Sin(angle)
	for i, p := range corners {
		dx, dy := p[0]-cx, p[1]-cy
		corners[i] = [2]float64{cx + dx*cos - dy*sin, cy + dx*sin + dy*cos}
	}
	return corners
}

// Rect is an axis-aligned rectangle given by its edges.
type Rect struct {
	Left, Top, Right, Bottom float64
}

func (r Rect) Width() float64 {
	return r.Right - r.Left
}

func (r Rect) Height() float64 {
	return r.Bottom - r.Top
}

// TileRect is the world-pixel rectangle of tile x, y.
func TileRect(x, y int, tileSize float64) Rect {
	return Rect{
		Left:   float64(x) * tileSize,
		Top:    float64(y) * tileSize,
		Right:  float64(x+1) * tileSize,
		Bottom: float64(y+1) * tileSize,
	}
}

// Intersect returns the overlap of a and b; ok is false when they only
// touch or do not meet.
func Intersect(a, b Rect) (r Rect, ok bool) {
	r = Rect{
		Left:   math.Max(a.Left, b.Left),
		Top:    math.Max(a.Top, b.Top),
		Right:  math.Min(a.Right, b.Right),
		Bottom: math.Min(a.Bottom, b.Bottom),
	}
	if r.Right <= r.Left || r.Bottom <= r.Top {
		return Rect{}, false
	}
	return r, true
}

// RotatedEnvelope is the axis-aligned envelope of b rotated by angle
// radians about its center.
func RotatedEnvelope(b Box, angle float64) Rect {
	env := Rect{
		Left:   math.Inf(1),
		Top:    math.Inf(1),
		Right:  math.Inf(-1),
		Bottom: math.Inf(-1),
	}
	for _, p := range b.Corners(angle) {
		env.Left = math.Min(env.Left, p[0])
		env.Top = math.Min(env.Top, p[1])
		env.Right = math.Max(env.Right, p[0])
		env.Bottom = math.Max(env.Bottom, p[1])
	}
	return env
}

// selectionRect is the rectangle tested against tiles to decide whether
// they need drawing.
func selectionRect(b Box, angle float64) Rect {
	if math.Abs(angle) > rotationEpsilon {
		return RotatedEnvelope(b, angle)
	}
	return b.Rect()
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
