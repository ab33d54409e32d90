package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valri11/planoverlay/overlay"
	"github.com/valri11/planoverlay/slippymath"
)

const testConfig = `
server:
  listen: 127.0.0.1:9000
loader:
  timeout: 5s
overlays:
  - id: plan
    image: assets/images/location.svg
    rotation: 12.5
    padding:
      left: 0.020
      bottom: 0.090
    anchor:
      - [36.54208649, 55.19205309]
      - [36.54245606, 55.19171904]
      - [36.54308944, 55.19193614]
      - [36.54280291, 55.19221]
  - id: uniform
    image: https://example.com/plan.png
    padding: 0.1
    projection: spherical
    tile_size: 512
    z_index: 0
    anchor_geojson: site.geojson
`

const testGeoJSON = `{
  "type": "FeatureCollection",
  "features": [{
    "type": "Feature",
    "properties": {},
    "geometry": {
      "type": "Polygon",
      "coordinates": [[[10, 20], [11, 20], [11, 21], [10, 21], [10, 20]]]
    }
  }]
}`

func readTestConfig(t *testing.T, data string) *viper.Viper {
	v := viper.New()
	setConfigDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(data)))
	return v
}

func Test_load_app_config(t *testing.T) {
	cfg, err := loadAppConfig(readTestConfig(t, testConfig))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 5*time.Second, cfg.Loader.Timeout)
	assert.Equal(t, CacheSize, cfg.Loader.CacheSize)
	assert.Equal(t, MaxConcurrency, cfg.Render.Concurrency)

	require.Len(t, cfg.Overlays, 2)

	plan := cfg.Overlays[0]
	assert.Equal(t, "plan", plan.ID)
	assert.Equal(t, 12.5, plan.Rotation)
	assert.Equal(t, overlay.Padding{Left: 0.02, Bottom: 0.09}, plan.Padding)
	require.Len(t, plan.Anchor, 4)
	assert.Equal(t, []float64{36.54280291, 55.19221}, plan.Anchor[3])

	uniform := cfg.Overlays[1]
	assert.Equal(t, overlay.UniformPadding(0.1), uniform.Padding)
	assert.Equal(t, 512, uniform.TileSize)
	assert.Equal(t, "site.geojson", uniform.AnchorGeoJSON)
	require.NotNil(t, uniform.ZIndex)
	assert.Zero(t, *uniform.ZIndex)
	assert.Nil(t, plan.ZIndex)
}

func Test_padding_hook(t *testing.T) {
	testData := []struct {
		yaml string
		want overlay.Padding
	}{
		{"overlays: [{padding: 0.5}]", overlay.UniformPadding(0.5)},
		{"overlays: [{padding: 1}]", overlay.UniformPadding(1)},
		{"overlays: [{padding: {top: -0.25}}]", overlay.Padding{Top: -0.25}},
		{"overlays: [{id: none}]", overlay.Padding{}},
	}

	for _, tst := range testData {
		cfg, err := loadAppConfig(readTestConfig(t, tst.yaml))
		require.NoError(t, err, tst.yaml)
		require.Len(t, cfg.Overlays, 1)
		assert.Equal(t, tst.want, cfg.Overlays[0].Padding, tst.yaml)
	}
}

func Test_new_overlays(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "site.geojson"), []byte(testGeoJSON), 0644))

	cfg, err := loadAppConfig(readTestConfig(t, testConfig))
	require.NoError(t, err)

	loader, err := newImageLoader(context.Background(), cfg)
	require.NoError(t, err)

	overlays, err := newOverlays(cfg, dir, loader)
	require.NoError(t, err)
	require.Len(t, overlays, 2)

	plan := overlays[0].Config()
	assert.Equal(t, "plan", plan.ID)
	assert.Equal(t, slippymath.Ellipsoidal, plan.Projection)
	assert.Equal(t, 256, plan.TileSize)
	assert.Equal(t, overlay.ImageURL("assets/images/location.svg"), plan.Image)

	uniform := overlays[1].Config()
	assert.Equal(t, slippymath.Spherical, uniform.Projection)
	assert.Equal(t, 512, overlays[1].Size())
	assert.Equal(t, 2010, overlays[0].LayerProps().ZIndex)
	assert.Zero(t, overlays[1].LayerProps().ZIndex)
	assert.Len(t, uniform.AnchorPolygon, 5)
	assert.Equal(t, orb.Point{10, 20}, uniform.AnchorPolygon[0])

	o, err := findOverlay(overlays, "uniform")
	require.NoError(t, err)
	assert.Equal(t, "uniform", o.ID())

	_, err = findOverlay(overlays, "")
	assert.ErrorIs(t, err, ErrNoOverlay)
	_, err = findOverlay(overlays, "missing")
	assert.ErrorIs(t, err, ErrNoOverlay)

	o, err = findOverlay(overlays[:1], "")
	require.NoError(t, err)
	assert.Equal(t, "plan", o.ID())
}

func Test_new_overlays_errors(t *testing.T) {
	testData := []struct {
		name string
		yaml string
	}{
		{"no anchor", "overlays: [{id: a, image: a.png}]"},
		{"short anchor point", "overlays: [{id: a, image: a.png, anchor: [[1]]}]"},
		{"no image", "overlays: [{id: a, anchor: [[1, 2]]}]"},
		{"bad projection", "overlays: [{id: a, image: a.png, anchor: [[1, 2]], projection: conic}]"},
		{"missing geojson", "overlays: [{id: a, image: a.png, anchor_geojson: nope.geojson}]"},
		{"duplicate id", "overlays: [{id: a, image: a.png, anchor: [[1, 2]]}, {id: a, image: b.png, anchor: [[1, 2]]}]"},
	}

	for _, tst := range testData {
		cfg, err := loadAppConfig(readTestConfig(t, tst.yaml))
		require.NoError(t, err, tst.name)

		_, err = newOverlays(cfg, t.TempDir(), overlay.ImageLoader(nil))
		assert.Error(t, err, tst.name)
	}
}

func Test_anchor_from_geojson(t *testing.T) {
	testData := []struct {
		name string
		data string
		n    int
	}{
		{"feature collection", testGeoJSON, 5},
		{"feature", `{"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[1,2],[3,4]]}}`, 2},
		{"multipolygon", `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]]]}`, 4},
		{"multipoint", `{"type":"MultiPoint","coordinates":[[0,0],[1,1],[2,2]]}`, 3},
	}

	for _, tst := range testData {
		pts, err := anchorFromGeoJSON([]byte(tst.data))
		require.NoError(t, err, tst.name)
		assert.Len(t, pts, tst.n, tst.name)
	}

	_, err := anchorFromGeoJSON([]byte(`{"type":"FeatureCollection","features":[]}`))
	assert.ErrorIs(t, err, ErrNoAnchor)
}

func Test_env_name(t *testing.T) {
	assert.Equal(t, "PLANOVERLAY_SERVER_LISTEN", envName("server.listen"))
	assert.Equal(t, "PLANOVERLAY_RENDER_CONCURRENCY", envName("render.concurrency"))
}
