package overlay

import (
	"math"
	"sync/atomic"

	lrucache "github.com/hashicorp/golang-lru"
	"github.com/paulmach/orb"
	"github.com/valri11/planoverlay/slippymath"
)

// one entry per zoom level a slippy grid can ask for
const maxCachedZooms = 32

// BoxCache keeps the world-pixel bounding box of an anchor polygon per
// integer zoom. It is safe for concurrent use.
type BoxCache struct {
	anchor   []orb.Point
	tileSize float64
	model    slippymath.ProjectionModel

	boxCache *lrucache.Cache

	// number of boxes computed, for cache-hit accounting
	computed atomic.Int64
}

func NewBoxCache(anchor []orb.Point, tileSize int, model slippymath.ProjectionModel) (*BoxCache, error) {
	boxCache, err := lrucache.New(maxCachedZooms)
	if err != nil {
		return nil, err
	}
	c := BoxCache{
		anchor:   clonePoints(anchor),
		tileSize: float64(tileSize),
		model:    model,
		boxCache: boxCache,
	}
	return &c, nil
}

// Get returns the anchor box at zoom, computing it on first use.
func (c *BoxCache) Get(zoom int) Box {
	if obj, ok := c.boxCache.Get(zoom); ok {
		if box, ok := obj.(Box); ok {
			return box
		}
	}

	box := c.compute(zoom)
	c.boxCache.Add(zoom, box)
	return box
}

// Invalidate drops every cached zoom.
func (c *BoxCache) Invalidate() {
	c.boxCache.Purge()
}

// Len is the number of cached zoom levels.
func (c *BoxCache) Len() int {
	return c.boxCache.Len()
}

func (c *BoxCache) compute(zoom int) Box {
	c.computed.Add(1)

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range c.anchor {
		x, y := slippymath.Project(p.Lon(), p.Lat(), zoom, c.tileSize, c.model)
		minX = math.Min(minX, x)
		minY = math.Min(minY, y)
		maxX = math.Max(maxX, x)
		maxY = math.Max(maxY, y)
	}

	return Box{
		MinX:   minX,
		MinY:   minY,
		MaxX:   maxX,
		MaxY:   maxY,
		Width:  maxX - minX,
		Height: maxY - minY,
	}
}
