package overlay

import (
	"fmt"
	"image/color"

	"github.com/valri11/planoverlay/raster"
)

const debugFontSize = 12

var (
	debugGridColor = color.NRGBA{0x7b, 0x7d, 0x85, 0xff}
	debugTextColor = color.NRGBA{0x99, 0x99, 0x99, 0xff}
	// rgba(0, 200, 0, .85)
	debugBoxColor = color.NRGBA{0x00, 0xc8, 0x00, 0xd9}
)

// drawTileDebug outlines the tile and labels it with its address.
func drawTileDebug(dc raster.Canvas, x, y, z int, tileSize float64) {
	dc.StrokeRect(raster.Rect{W: tileSize, H: tileSize}, debugGridColor, 1)
	dc.FillText(fmt.Sprintf("x:%d y:%d z:%d", x, y, z), 8, 16, debugTextColor, debugFontSize)
}

// drawBoxDebug outlines the destination box and prints the rotation.
func drawBoxDebug(dc raster.Canvas, drawBox Box, tileRect Rect, rotateDeg float64) {
	dc.StrokeRect(raster.Rect{
		X: drawBox.MinX - tileRect.Left,
		Y: drawBox.MinY - tileRect.Top,
		W: drawBox.Width,
		H: drawBox.Height,
	}, debugBoxColor, 1)
	dc.FillText(fmt.Sprintf("rotate: %v°", rotateDeg), 8, 32, debugTextColor, debugFontSize)
}
