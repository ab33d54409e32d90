package cmd

import (
	"bytes"
	"image"
	"image/png"
	"strings"
	"sync"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/valri11/planoverlay/overlay"
	xdraw "golang.org/x/image/draw"
)

const (
	MaxConcurrency = 8
)

// forEachRow calls fn with the pixel bytes of every row of img, at most
// MaxConcurrency rows at a time.
func forEachRow(img *image.RGBA, fn func(row []uint8)) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var wg sync.WaitGroup
	sem := make(chan bool, MaxConcurrency)

	for y := 0; y < height; y++ {
		wg.Add(1)
		sem <- true

		row_idx := y*img.Stride
		row := img.Pix[row_idx : row_idx+width*4]
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()

			fn(row)
		}()
	}
	wg.Wait()
}

// ApplyOpacity scales every pixel of img by opacity in place.
func ApplyOpacity(img *image.RGBA, opacity float64) {
	if opacity >= 1 {
		return
	}
	if opacity < 0 {
		opacity = 0
	}

	forEachRow(img, func(row []uint8) {
		// premultiplied, so all four channels scale together
		for i := range row {
			row[i] = uint8(float64(row[i])*opacity + 0.5)
		}
	})
}

// ParseTint reads a tint color given as hex, with or without the
// leading #.
func ParseTint(s string) (colorful.Color, error) {
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	return colorful.Hex(s)
}

// TintImage blends every visible pixel of img towards tint by amount
// (0 keeps the image, 1 paints it flat) in L*a*b* space. Alpha is kept.
func TintImage(img *image.RGBA, tint colorful.Color, amount float64) {
	if amount <= 0 {
		return
	}
	if amount > 1 {
		amount = 1
	}

	forEachRow(img, func(row []uint8) {
		for i := 0; i < len(row); i += 4 {
			pix := row[i : i+4]
			a := float64(pix[3])
			if a == 0 {
				continue
			}
			c := colorful.Color{
				R: float64(pix[0]) / a,
				G: float64(pix[1]) / a,
				B: float64(pix[2]) / a,
			}
			t := c.BlendLab(tint, amount).Clamped()
			pix[0] = uint8(t.R*a + 0.5)
			pix[1] = uint8(t.G*a + 0.5)
			pix[2] = uint8(t.B*a + 0.5)
		}
	})
}

// ResizeImage resamples img to size x size.
func ResizeImage(img image.Image, size int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, size, size))
	if img.Bounds().Dx() == size && img.Bounds().Dy() == size {
		xdraw.Draw(out, out.Bounds(), img, img.Bounds().Min, xdraw.Src)
		return out
	}
	xdraw.CatmullRom.Scale(out, out.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return out
}

func EncodePNG(img image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// tileStyle is the post-processing applied to a rendered tile.
type tileStyle struct {
	// output edge in pixels, 0 keeps the render size
	size    int
	opacity float64

	tint       *colorful.Color
	tintAmount float64
}

func defaultTileStyle() tileStyle {
	return tileStyle{opacity: 1, tintAmount: 1}
}

// encodeTile resizes a rendered tile, tints and fades the overlay and
// encodes it as PNG.
func encodeTile(tile *overlay.Tile, style tileStyle) ([]byte, error) {
	img := tile.Image
	if style.size > 0 && style.size != img.Bounds().Dx() {
		img = ResizeImage(img, style.size)
	}
	if tile.Drawn {
		if style.tint != nil {
			TintImage(img, *style.tint, style.tintAmount)
		}
		ApplyOpacity(img, style.opacity)
	}
	return EncodePNG(img)
}
