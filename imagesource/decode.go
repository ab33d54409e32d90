// Package imagesource loads overlay images from files, HTTP and S3.
package imagesource

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gabriel-vasile/mimetype"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

const (
	svgMIME = "image/svg+xml"

	// MaxImagePixels bounds the size of any decoded image. SVG documents
	// larger than this are rasterized scaled down, raster images are
	// rejected.
	MaxImagePixels = 4096 * 4096
)

var (
	ErrEmptySVG      = errors.New("svg has no size")
	ErrImageTooLarge = errors.New("image too large")
)

// Decode decodes raster formats registered with the image package and
// rasterizes SVG documents at their view box size.
func Decode(data []byte) (image.Image, error) {
	mtype := mimetype.Detect(data)
	if mtype.Is(svgMIME) {
		return decodeSVG(data)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", mtype.String(), err)
	}
	if float64(cfg.Width)*float64(cfg.Height) > MaxImagePixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", mtype.String(), err)
	}
	return img, nil
}

func decodeSVG(data []byte) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode svg: %w", err)
	}

	w, h, err := svgSize(icon.ViewBox.W, icon.ViewBox.H)
	if err != nil {
		return nil, err
	}

	icon.SetTarget(0, 0, float64(w), float64(h))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)

	return img, nil
}

// svgSize is the pixel size an SVG view box is rasterized at, scaled
// down to fit MaxImagePixels with its aspect ratio kept.
func svgSize(vw, vh float64) (int, int, error) {
	if !(vw > 0 && vh > 0) || math.IsInf(vw, 0) || math.IsInf(vh, 0) {
		return 0, 0, ErrEmptySVG
	}
	if vw*vh > MaxImagePixels {
		k := math.Sqrt(MaxImagePixels / (vw * vh))
		vw, vh = vw*k, vh*k
	}
	w := math.Max(1, math.Floor(vw))
	h := math.Max(1, math.Floor(vh))
	if w*h > MaxImagePixels {
		return 0, 0, fmt.Errorf("%w: svg view box %vx%v", ErrImageTooLarge, vw, vh)
	}
	return int(w), int(h), nil
}
