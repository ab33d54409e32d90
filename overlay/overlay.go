// Package overlay renders a single georeferenced image onto slippy-map
// raster tiles.
package overlay

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/valri11/planoverlay/imagesource"
	"github.com/valri11/planoverlay/raster"
	"github.com/valri11/planoverlay/slippymath"
)

const (
	DefaultLoadTimeout = 30 * time.Second
)

// TileSource is the contract a host tile grid renders through.
type TileSource interface {
	Type() string
	Size() int
	Transparent() bool
	FetchTile(ctx context.Context, x, y, z int) (*Tile, error)
}

// Tile is a rendered tile. Drawn is false when no image content was
// painted, debug annotations aside.
type Tile struct {
	X, Y, Z int
	Image   *image.RGBA
	Drawn   bool
}

// RasterSource describes the tile source to the host.
type RasterSource struct {
	Type        string `json:"type"`
	Size        int    `json:"size"`
	Transparent bool   `json:"transparent"`
}

// LayerProps attach the tile source to a host map layer.
type LayerProps struct {
	Source      string `json:"source"`
	Transparent bool   `json:"transparent"`
	Type        string `json:"type"`
	ZIndex      int    `json:"zIndex"`
}

type TileSourceProps struct {
	ID       string       `json:"id"`
	Raster   RasterSource `json:"raster"`
	TileSize int          `json:"tileSize"`
}

type Option func(*Overlay)

// WithLoader sets the loader ImageURL references are resolved with.
func WithLoader(loader ImageLoader) Option {
	return func(o *Overlay) {
		o.loader = loader
	}
}

// WithCanvas replaces the canvas tiles are drawn on.
func WithCanvas(newCanvas func(size int) raster.Canvas) Option {
	return func(o *Overlay) {
		o.newCanvas = newCanvas
	}
}

// WithLoadTimeout bounds each image load. Zero disables the limit.
func WithLoadTimeout(d time.Duration) Option {
	return func(o *Overlay) {
		o.loadTimeout = d
	}
}

// state is an immutable snapshot; Update replaces it as a whole.
type state struct {
	cfg   Config
	boxes *BoxCache
	image ImageFuture
}

// Overlay is a tile source drawing one image into the tiles it covers.
// It is safe for concurrent use.
type Overlay struct {
	id          string
	zIndex      int
	loader      ImageLoader
	newCanvas   func(size int) raster.Canvas
	loadTimeout time.Duration

	mu    sync.RWMutex
	state *state
}

func New(cfg Config, opts ...Option) (*Overlay, error) {
	cfg.AnchorPolygon = clonePoints(cfg.AnchorPolygon)
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	zIndex := *cfg.ZIndex
	cfg.ZIndex = &zIndex

	o := Overlay{
		id:          cfg.ID,
		zIndex:      zIndex,
		newCanvas:   raster.New,
		loadTimeout: DefaultLoadTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.loader == nil {
		o.loader = imagesource.NewMux()
	}

	boxes, err := NewBoxCache(cfg.AnchorPolygon, cfg.TileSize, cfg.Projection)
	if err != nil {
		return nil, err
	}
	o.state = &state{
		cfg:   cfg,
		boxes: boxes,
		image: resolveImage(cfg.Image, o.loader, o.loadTimeout),
	}
	return &o, nil
}

func (o *Overlay) snapshot() *state {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Overlay) ID() string {
	return o.id
}

func (o *Overlay) Type() string {
	return SourceType
}

func (o *Overlay) Size() int {
	return o.snapshot().cfg.TileSize
}

func (o *Overlay) Transparent() bool {
	return true
}

// Config returns a copy of the active configuration.
func (o *Overlay) Config() Config {
	cfg := o.snapshot().cfg
	cfg.AnchorPolygon = clonePoints(cfg.AnchorPolygon)
	zIndex := *cfg.ZIndex
	cfg.ZIndex = &zIndex
	return cfg
}

func (o *Overlay) Raster() RasterSource {
	return RasterSource{
		Type:        o.Type(),
		Size:        o.Size(),
		Transparent: o.Transparent(),
	}
}

func (o *Overlay) LayerProps() LayerProps {
	return LayerProps{
		Source:      o.id,
		Transparent: true,
		Type:        SourceType,
		ZIndex:      o.zIndex,
	}
}

func (o *Overlay) TileSourceProps() TileSourceProps {
	r := o.Raster()
	return TileSourceProps{
		ID:       o.id,
		Raster:   r,
		TileSize: r.Size,
	}
}

// Update applies a partial configuration. Anchor, projection and tile
// size changes start a fresh box cache; padding changes clear the
// current one. A new image starts loading right away, tiles already
// waiting on the previous image keep it.
func (o *Overlay) Update(p Patch) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	next := *o.state
	cfg := &next.cfg

	rebuild := false
	invalidate := false

	if p.Image != nil {
		cfg.Image = p.Image
	}
	if p.AnchorPolygon != nil {
		cfg.AnchorPolygon = clonePoints(p.AnchorPolygon)
		rebuild = true
	}
	if p.Padding != nil {
		cfg.Padding = *p.Padding
		invalidate = true
	}
	if p.RotationDegrees != nil {
		cfg.RotationDegrees = *p.RotationDegrees
	}
	if p.Projection != nil {
		rebuild = rebuild || *p.Projection != cfg.Projection
		cfg.Projection = *p.Projection
	}
	if p.Debug != nil {
		cfg.Debug = *p.Debug
	}
	if p.TileSize != nil {
		rebuild = rebuild || *p.TileSize != cfg.TileSize
		cfg.TileSize = *p.TileSize
	}
	if p.RenderSize != nil {
		cfg.RenderSize = *p.RenderSize
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if rebuild {
		boxes, err := NewBoxCache(cfg.AnchorPolygon, cfg.TileSize, cfg.Projection)
		if err != nil {
			return err
		}
		next.boxes = boxes
	} else if invalidate {
		next.boxes.Invalidate()
	}
	if p.Image != nil {
		next.image = resolveImage(p.Image, o.loader, o.loadTimeout)
	}

	o.state = &next
	return nil
}

// DestinationBox is the padded anchor box at zoom.
func (o *Overlay) DestinationBox(zoom int) Box {
	st := o.snapshot()
	return st.boxes.Get(zoom).Pad(st.cfg.Padding)
}

// FetchTile renders tile x, y at zoom z. It waits for the image only when
// the tile intersects the overlay. An image that failed to load fails
// the fetch; nothing is retried.
func (o *Overlay) FetchTile(ctx context.Context, x, y, z int) (*Tile, error) {
	st := o.snapshot()
	cfg := st.cfg
	tileSize := float64(cfg.TileSize)

	dc := o.newCanvas(cfg.RenderSize)
	scale := float64(cfg.RenderSize) / tileSize
	dc.Scale(scale, scale)

	tile := Tile{X: x, Y: y, Z: z, Image: dc.Image()}

	if cfg.Debug {
		drawTileDebug(dc, x, y, z, tileSize)
	}

	drawBox := st.boxes.Get(z).Pad(cfg.Padding)
	if drawBox.Degenerate() {
		return &tile, nil
	}

	tileRect := TileRect(x, y, tileSize)
	angle := radians(cfg.RotationDegrees)
	rotated := math.Abs(angle) > rotationEpsilon

	cross, ok := Intersect(tileRect, selectionRect(drawBox, angle))
	if !ok {
		return &tile, nil
	}

	img, err := st.image.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	if rotated {
		drawRotated(dc, img, drawBox, tileRect, angle)
	} else {
		drawCropped(dc, img, drawBox, cross, tileRect)
	}
	tile.Drawn = true

	if cfg.Debug {
		drawBoxDebug(dc, drawBox, tileRect, cfg.RotationDegrees)
	}

	return &tile, nil
}

// drawCropped paints the part of img that falls into cross.
func drawCropped(dc raster.Canvas, img image.Image, drawBox Box, cross, tileRect Rect) {
	b := img.Bounds()
	imgW, imgH := float64(b.Dx()), float64(b.Dy())

	src := raster.Rect{
		X: (cross.Left - drawBox.MinX) / drawBox.Width * imgW,
		Y: (cross.Top - drawBox.MinY) / drawBox.Height * imgH,
		W: cross.Width() / drawBox.Width * imgW,
		H: cross.Height() / drawBox.Height * imgH,
	}
	dst := raster.Rect{
		X: cross.Left - tileRect.Left,
		Y: cross.Top - tileRect.Top,
		W: cross.Width(),
		H: cross.Height(),
	}
	dc.DrawImageRegion(img, src, dst)
}

// drawRotated paints the whole of img scaled into drawBox and rotated
// about its center; the canvas bounds crop it to the tile.
func drawRotated(dc raster.Canvas, img image.Image, drawBox Box, tileRect Rect, angle float64) {
	b := img.Bounds()
	imgW, imgH := float64(b.Dx()), float64(b.Dy())
	cx, cy := drawBox.Center()

	dc.Push()
	dc.Translate(-tileRect.Left, -tileRect.Top)
	dc.Translate(cx, cy)
	dc.Rotate(angle)
	dc.Scale(drawBox.Width/imgW, drawBox.Height/imgH)
	dc.DrawImage(img, -imgW/2, -imgH/2)
	dc.Pop()
}

// Footprint is the padded, rotated destination box at zoom as a
// lon/lat polygon.
func (o *Overlay) Footprint(zoom int) orb.Polygon {
	st := o.snapshot()
	cfg := st.cfg
	drawBox := st.boxes.Get(zoom).Pad(cfg.Padding)

	ring := make(orb.Ring, 0, 5)
	for _, p := range drawBox.Corners(radians(cfg.RotationDegrees)) {
		lon, lat := slippymath.Unproject(p[0], p[1], zoom, float64(cfg.TileSize), cfg.Projection)
		ring = append(ring, orb.Point{lon, lat})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// TileRange returns the inclusive tile index range whose tiles pass the
// selection test at zoom. ok is false when no tile does.
func (o *Overlay) TileRange(zoom int) (minX, minY, maxX, maxY int, ok bool) {
	st := o.snapshot()
	cfg := st.cfg
	tileSize := float64(cfg.TileSize)

	drawBox := st.boxes.Get(zoom).Pad(cfg.Padding)
	if drawBox.Degenerate() {
		return 0, 0, 0, 0, false
	}

	n := slippymath.TileCount(zoom)
	world := Rect{Right: float64(n) * tileSize, Bottom: float64(n) * tileSize}
	sel, ok := Intersect(selectionRect(drawBox, radians(cfg.RotationDegrees)), world)
	if !ok {
		return 0, 0, 0, 0, false
	}

	minX = int(math.Floor(sel.Left / tileSize))
	minY = int(math.Floor(sel.Top / tileSize))
	maxX = int(math.Ceil(sel.Right/tileSize)) - 1
	maxY = int(math.Ceil(sel.Bottom/tileSize)) - 1
	return minX, minY, maxX, maxY, true
}

func (o *Overlay) String() string {
	cfg := o.snapshot().cfg
	return fmt.Sprintf("overlay %s (%d anchor points, rotate %v°)", o.id, len(cfg.AnchorPolygon), cfg.RotationDegrees)
}
