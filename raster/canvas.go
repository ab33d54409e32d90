// Package raster provides the 2D drawing surface tiles are composed on.
package raster

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/f64"
)

// Rect is a rectangle given by its origin and size.
type Rect struct {
	X, Y, W, H float64
}

// Canvas is the drawing capability a tile is rendered with. Coordinates
// passed to drawing calls are transformed by the current matrix, the
// same way a browser 2D context does it.
type Canvas interface {
	Size() int

	Push()
	Pop()
	Scale(sx, sy float64)
	Translate(x, y float64)
	Rotate(angle float64)

	// DrawImage paints the whole image with its top-left corner at x, y.
	DrawImage(img image.Image, x, y float64)
	// DrawImageRegion paints the src part of img into dst.
	DrawImageRegion(img image.Image, src, dst Rect)

	StrokeRect(r Rect, c color.Color, lineWidth float64)
	FillText(s string, x, y float64, c color.Color, size float64)

	Image() *image.RGBA
}

var (
	regularFont     *opentype.Font
	regularFontErr  error
	regularFontOnce sync.Once
)

func loadRegularFont() (*opentype.Font, error) {
	regularFontOnce.Do(func() {
		regularFont, regularFontErr = opentype.Parse(goregular.TTF)
	})
	return regularFont, regularFontErr
}

// RasterCanvas is a headless Canvas backed by an RGBA image. Images are
// resampled with x/image/draw, strokes and text go through gg.
// A RasterCanvas is not safe for concurrent use.
type RasterCanvas struct {
	im     *image.RGBA
	dc     *gg.Context
	matrix gg.Matrix
	stack  []gg.Matrix
	faces  map[float64]font.Face
}

func NewCanvas(size int) *RasterCanvas {
	im := image.NewRGBA(image.Rect(0, 0, size, size))
	return &RasterCanvas{
		im:     im,
		dc:     gg.NewContextForRGBA(im),
		matrix: gg.Identity(),
	}
}

// New has the signature compositors expect for canvas construction.
func New(size int) Canvas {
	return NewCanvas(size)
}

func (c *RasterCanvas) Size() int {
	return c.im.Bounds().Dx()
}

func (c *RasterCanvas) Image() *image.RGBA {
	return c.im
}

// Matrix returns the current transform.
func (c *RasterCanvas) Matrix() gg.Matrix {
	return c.matrix
}

func (c *RasterCanvas) Push() {
	c.stack = append(c.stack, c.matrix)
}

func (c *RasterCanvas) Pop() {
	if len(c.stack) == 0 {
		return
	}
	c.matrix = c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
}

func (c *RasterCanvas) Scale(sx, sy float64) {
	c.matrix = c.matrix.Scale(sx, sy)
}

func (c *RasterCanvas) Translate(x, y float64) {
	c.matrix = c.matrix.Translate(x, y)
}

func (c *RasterCanvas) Rotate(angle float64) {
	c.matrix = c.matrix.Rotate(angle)
}

func (c *RasterCanvas) DrawImage(img image.Image, x, y float64) {
	b := img.Bounds()
	m := c.matrix.Translate(x-float64(b.Min.X), y-float64(b.Min.Y))
	transform(c.im, m, img)
}

func (c *RasterCanvas) DrawImageRegion(img image.Image, src, dst Rect) {
	if src.W == 0 || src.H == 0 || dst.W == 0 || dst.H == 0 {
		return
	}

	clip := c.deviceBounds(dst).Intersect(c.im.Bounds())
	if clip.Empty() {
		return
	}

	b := img.Bounds()
	m := c.matrix.
		Translate(dst.X, dst.Y).
		Scale(dst.W/src.W, dst.H/src.H).
		Translate(-src.X-float64(b.Min.X), -src.Y-float64(b.Min.Y))

	transform(c.im.SubImage(clip).(*image.RGBA), m, img)
}

func (c *RasterCanvas) StrokeRect(r Rect, col color.Color, lineWidth float64) {
	corners := [4][2]float64{
		{r.X, r.Y},
		{r.X + r.W, r.Y},
		{r.X + r.W, r.Y + r.H},
		{r.X, r.Y + r.H},
	}
	for i, p := range corners {
		x, y := c.matrix.TransformPoint(p[0], p[1])
		if i == 0 {
			c.dc.MoveTo(x, y)
		} else {
			c.dc.LineTo(x, y)
		}
	}
	c.dc.ClosePath()
	c.dc.SetColor(col)
	c.dc.SetLineWidth(lineWidth * c.lineScale())
	c.dc.Stroke()
}

// FillText draws s with its baseline starting at x, y. size is in
// canvas units.
func (c *RasterCanvas) FillText(s string, x, y float64, col color.Color, size float64) {
	face, err := c.face(size * c.lineScale())
	if err != nil {
		return
	}
	tx, ty := c.matrix.TransformPoint(x, y)
	c.dc.SetFontFace(face)
	c.dc.SetColor(col)
	c.dc.DrawString(s, tx, ty)
}

func (c *RasterCanvas) face(size float64) (font.Face, error) {
	if f, ok := c.faces[size]; ok {
		return f, nil
	}
	fnt, err := loadRegularFont()
	if err != nil {
		return nil, err
	}
	f, err := opentype.NewFace(fnt, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, err
	}
	if c.faces == nil {
		c.faces = make(map[float64]font.Face)
	}
	c.faces[size] = f
	return f, nil
}

// lineScale is the uniform scale factor of the current matrix.
func (c *RasterCanvas) lineScale() float64 {
	m := c.matrix
	return math.Sqrt(math.Abs(m.XX*m.YY - m.XY*m.YX))
}

// deviceBounds is the pixel rectangle covering r under the current matrix.
func (c *RasterCanvas) deviceBounds(r Rect) image.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range [4][2]float64{{r.X, r.Y}, {r.X + r.W, r.Y}, {r.X + r.W, r.Y + r.H}, {r.X, r.Y + r.H}} {
		x, y := c.matrix.TransformPoint(p[0], p[1])
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return image.Rect(
		clampPixel(math.Floor(minX)), clampPixel(math.Floor(minY)),
		clampPixel(math.Ceil(maxX)), clampPixel(math.Ceil(maxY)),
	)
}

func clampPixel(v float64) int {
	const limit = 1 << 30
	if v < -limit || math.IsNaN(v) {
		return -limit
	}
	if v > limit {
		return limit
	}
	return int(v)
}

func transform(dst *image.RGBA, m gg.Matrix, img image.Image) {
	s2d := f64.Aff3{m.XX, m.XY, m.X0, m.YX, m.YY, m.Y0}
	draw.BiLinear.Transform(dst, s2d, img, img.Bounds(), draw.Over, nil)
}
