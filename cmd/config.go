package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/viper"
	"github.com/valri11/planoverlay/imagesource"
	"github.com/valri11/planoverlay/overlay"
	"github.com/valri11/planoverlay/slippymath"
)

const (
	CacheSize = 64
)

var (
	ErrNoAnchor  = errors.New("overlay has no anchor polygon")
	ErrNoOverlay = errors.New("overlay not found")
)

type serverConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type s3Config struct {
	Region string `mapstructure:"region"`
}

type loaderConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheSize int           `mapstructure:"cache_size"`
	Root      string        `mapstructure:"root"`
}

type renderConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type overlayEntry struct {
	ID            string          `mapstructure:"id"`
	Anchor        [][]float64     `mapstructure:"anchor"`
	AnchorGeoJSON string          `mapstructure:"anchor_geojson"`
	Image         string          `mapstructure:"image"`
	Rotation      float64         `mapstructure:"rotation"`
	Padding       overlay.Padding `mapstructure:"padding"`
	TileSize      int             `mapstructure:"tile_size"`
	RenderSize    int             `mapstructure:"render_size"`
	ZIndex        *int            `mapstructure:"z_index"`
	Projection    string          `mapstructure:"projection"`
	Debug         bool            `mapstructure:"debug"`
}

type appConfig struct {
	Server   serverConfig   `mapstructure:"server"`
	S3       s3Config       `mapstructure:"s3"`
	Loader   loaderConfig   `mapstructure:"loader"`
	Render   renderConfig   `mapstructure:"render"`
	Overlays []overlayEntry `mapstructure:"overlays"`
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "0.0.0.0:8000")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("loader.timeout", overlay.DefaultLoadTimeout)
	v.SetDefault("loader.cache_size", CacheSize)
	v.SetDefault("render.concurrency", MaxConcurrency)
}

// paddingHook lets padding be written as one number for all sides.
func paddingHook(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
	if t != reflect.TypeOf(overlay.Padding{}) {
		return data, nil
	}
	switch v := data.(type) {
	case float64:
		return overlay.UniformPadding(v), nil
	case float32:
		return overlay.UniformPadding(float64(v)), nil
	case int:
		return overlay.UniformPadding(float64(v)), nil
	case int64:
		return overlay.UniformPadding(float64(v)), nil
	}
	return data, nil
}

func loadAppConfig(v *viper.Viper) (*appConfig, error) {
	var cfg appConfig
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		paddingHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// overlayConfig turns a config file entry into an overlay configuration.
// Relative GeoJSON paths are resolved against dir.
func (e overlayEntry) overlayConfig(dir string) (overlay.Config, error) {
	anchor, err := e.anchorPolygon(dir)
	if err != nil {
		return overlay.Config{}, fmt.Errorf("overlay %q: %w", e.ID, err)
	}

	cfg := overlay.Config{
		ID:              e.ID,
		AnchorPolygon:   anchor,
		RotationDegrees: e.Rotation,
		Padding:         e.Padding,
		TileSize:        e.TileSize,
		RenderSize:      e.RenderSize,
		ZIndex:          e.ZIndex,
		Projection:      slippymath.ProjectionModel(e.Projection),
		Debug:           e.Debug,
	}
	if e.Image != "" {
		cfg.Image = overlay.ImageURL(e.Image)
	}
	return cfg, nil
}

func (e overlayEntry) anchorPolygon(dir string) ([]orb.Point, error) {
	if len(e.Anchor) > 0 {
		pts := make([]orb.Point, 0, len(e.Anchor))
		for i, c := range e.Anchor {
			if len(c) < 2 {
				return nil, fmt.Errorf("anchor point %d: want [lon, lat], got %v", i, c)
			}
			pts = append(pts, orb.Point{c[0], c[1]})
		}
		return pts, nil
	}

	if e.AnchorGeoJSON == "" {
		return nil, ErrNoAnchor
	}

	p := e.AnchorGeoJSON
	if dir != "" && !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return anchorFromGeoJSON(data)
}

// anchorFromGeoJSON takes the outer ring of the first usable geometry of
// a feature collection, a feature or a bare geometry.
func anchorFromGeoJSON(data []byte) ([]orb.Point, error) {
	var geoms []orb.Geometry
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && len(fc.Features) > 0 {
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	} else if f, err := geojson.UnmarshalFeature(data); err == nil && f.Geometry != nil {
		geoms = append(geoms, f.Geometry)
	} else if g, err := geojson.UnmarshalGeometry(data); err == nil {
		geoms = append(geoms, g.Geometry())
	}

	for _, g := range geoms {
		if pts := outerRing(g); len(pts) > 0 {
			return pts, nil
		}
	}
	return nil, ErrNoAnchor
}

func outerRing(g orb.Geometry) []orb.Point {
	switch g := g.(type) {
	case orb.Polygon:
		if len(g) > 0 {
			return g[0]
		}
	case orb.MultiPolygon:
		if len(g) > 0 && len(g[0]) > 0 {
			return g[0][0]
		}
	case orb.Ring:
		return g
	case orb.LineString:
		return g
	case orb.MultiPoint:
		return g
	case orb.Point:
		return []orb.Point{g}
	}
	return nil
}

// newImageLoader builds the scheme mux overlays load their images with.
// S3 is registered when a region is configured.
func newImageLoader(ctx context.Context, cfg *appConfig) (overlay.ImageLoader, error) {
	m := imagesource.NewMux()
	m.Handle("file", imagesource.NewFileLoader(cfg.Loader.Root))

	if cfg.S3.Region != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3.Region))
		if err != nil {
			return nil, err
		}
		m.Handle("s3", imagesource.NewS3Loader(s3.NewFromConfig(awsCfg)))
	}

	if cfg.Loader.CacheSize <= 0 {
		return m, nil
	}
	return imagesource.NewCacheLoader(m, cfg.Loader.CacheSize)
}

// newOverlays creates every configured overlay, in file order.
func newOverlays(cfg *appConfig, dir string, loader overlay.ImageLoader) ([]*overlay.Overlay, error) {
	res := make([]*overlay.Overlay, 0, len(cfg.Overlays))
	seen := make(map[string]bool)
	for _, e := range cfg.Overlays {
		oc, err := e.overlayConfig(dir)
		if err != nil {
			return nil, err
		}
		o, err := overlay.New(oc,
			overlay.WithLoader(loader),
			overlay.WithLoadTimeout(cfg.Loader.Timeout))
		if err != nil {
			return nil, fmt.Errorf("overlay %q: %w", e.ID, err)
		}
		if seen[o.ID()] {
			return nil, fmt.Errorf("duplicate overlay id %q", o.ID())
		}
		seen[o.ID()] = true
		res = append(res, o)
	}
	return res, nil
}

// setupOverlays loads the global configuration and creates its overlays.
func setupOverlays(ctx context.Context) (*appConfig, []*overlay.Overlay, error) {
	cfg, err := loadAppConfig(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}

	loader, err := newImageLoader(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	dir := ""
	if f := viper.ConfigFileUsed(); f != "" {
		dir = filepath.Dir(f)
	}
	overlays, err := newOverlays(cfg, dir, loader)
	if err != nil {
		return nil, nil, err
	}
	return cfg, overlays, nil
}

func findOverlay(overlays []*overlay.Overlay, id string) (*overlay.Overlay, error) {
	if id == "" && len(overlays) == 1 {
		return overlays[0], nil
	}
	for _, o := range overlays {
		if o.ID() == id {
			return o, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoOverlay, id)
}
