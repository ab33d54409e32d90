package overlay

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_intersect(t *testing.T) {
	testData := []struct {
		name string
		a, b Rect
		want Rect
		ok   bool
	}{
		{"overlap", Rect{0, 0, 10, 10}, Rect{5, 2, 20, 8}, Rect{5, 2, 10, 8}, true},
		{"contained", Rect{0, 0, 256, 256}, Rect{72, 93, 145, 178}, Rect{72, 93, 145, 178}, true},
		{"touching edge", Rect{0, 0, 256, 256}, Rect{256, 0, 300, 10}, Rect{}, false},
		{"disjoint", Rect{0, 0, 1, 1}, Rect{2, 2, 3, 3}, Rect{}, false},
		{"zero width", Rect{0, 0, 10, 10}, Rect{5, 0, 5, 10}, Rect{}, false},
		{"inverted", Rect{0, 0, 10, 10}, Rect{8, 0, 2, 10}, Rect{}, false},
	}

	for _, tst := range testData {
		got, ok := Intersect(tst.a, tst.b)
		assert.Equal(t, tst.ok, ok, tst.name)
		assert.Equal(t, tst.want, got, tst.name)
	}

	r, _ := Intersect(Rect{0, 0, 10, 10}, Rect{5, 2, 20, 8})
	assert.Equal(t, 5.0, r.Width())
	assert.Equal(t, 6.0, r.Height())
}

func Test_rotated_envelope(t *testing.T) {
	b := Box{MinX: -2, MinY: -1, MaxX: 2, MaxY: 1, Width: 4, Height: 2}

	env := RotatedEnvelope(b, math.Pi/2)
	assert.InDelta(t, -1, env.Left, 1e-12)
	assert.InDelta(t, -2, env.Top, 1e-12)
	assert.InDelta(t, 1, env.Right, 1e-12)
	assert.InDelta(t, 2, env.Bottom, 1e-12)

	env = RotatedEnvelope(b, math.Pi/4)
	half := 3 / math.Sqrt2
	assert.InDelta(t, -half, env.Left, 1e-12)
	assert.InDelta(t, half, env.Bottom, 1e-12)

	assert.Equal(t, b.Rect(), RotatedEnvelope(b, 0))
}

func Test_selection_rect(t *testing.T) {
	b := Box{MinX: 10, MinY: 10, MaxX: 20, MaxY: 30, Width: 10, Height: 20}

	assert.Equal(t, b.Rect(), selectionRect(b, 0))
	assert.Equal(t, b.Rect(), selectionRect(b, 1e-12))

	sel := selectionRect(b, radians(90))
	assert.InDelta(t, 5, sel.Left, 1e-9)
	assert.InDelta(t, 25, sel.Right, 1e-9)
}

func Test_pad(t *testing.T) {
	b := Box{MinX: 100, MinY: 200, MaxX: 300, MaxY: 300, Width: 200, Height: 100}

	assert.Equal(t, b, b.Pad(Padding{}))

	p := b.Pad(Padding{Left: 0.1, Right: 0.2, Top: 0.3, Bottom: 0.4})
	assert.InDelta(t, 120, p.MinX, 1e-9)
	assert.InDelta(t, 260, p.MaxX, 1e-9)
	assert.InDelta(t, 230, p.MinY, 1e-9)
	assert.InDelta(t, 260, p.MaxY, 1e-9)
	assert.InDelta(t, 140, p.Width, 1e-9)
	assert.InDelta(t, 30, p.Height, 1e-9)
	assert.False(t, p.Degenerate())

	grown := b.Pad(UniformPadding(-0.5))
	assert.InDelta(t, 400, grown.Width, 1e-9)
	assert.InDelta(t, 0, grown.MinX, 1e-9)

	collapsed := b.Pad(Padding{Left: 0.5, Right: 0.5})
	assert.Zero(t, collapsed.Width)
	assert.True(t, collapsed.Degenerate())

	inverted := b.Pad(Padding{Top: 0.7, Bottom: 0.7})
	assert.Less(t, inverted.Height, 0.0)
	assert.True(t, inverted.Degenerate())
}

func Test_tile_rect(t *testing.T) {
	assert.Equal(t, Rect{512, 768, 768, 1024}, TileRect(2, 3, 256))
	assert.Equal(t, Rect{0, 0, 512, 512}, TileRect(0, 0, 512))
}
