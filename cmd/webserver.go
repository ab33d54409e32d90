/*
Copyright © 2022 Val Gridnev

*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/valri11/planoverlay/overlay"
	"github.com/valri11/planoverlay/slippymath"
)

const (
	maxZoom     = 30
	maxTileSize = 4096
)

// webserverCmd represents the serve command
var webserverCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"webserver"},
	Short:   "Overlay raster tile server",
	Long:    `Serves the configured overlays as transparent PNG slippy-map tiles.`,
	Run:     mainCmd,
}

func init() {
	rootCmd.AddCommand(webserverCmd)

	webserverCmd.Flags().String("listen", "0.0.0.0:8000", "address to listen on")
	bindFlag("server.listen", webserverCmd.Flags().Lookup("listen"))
}

type overlayServer struct {
	overlays map[string]*overlay.Overlay
	order    []string
	metrics  *tileMetrics
}

func newOverlayServer(overlays []*overlay.Overlay) *overlayServer {
	s := overlayServer{
		overlays: make(map[string]*overlay.Overlay, len(overlays)),
		metrics:  newTileMetrics(),
	}
	for _, o := range overlays {
		s.overlays[o.ID()] = o
		s.order = append(s.order, o.ID())
	}
	return &s
}

func (s *overlayServer) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/overlays", s.listOverlaysHandler).Methods(http.MethodGet)
	r.HandleFunc("/overlays/{id}", s.getOverlayHandler).Methods(http.MethodGet)
	r.HandleFunc("/overlays/{id}", s.patchOverlayHandler).Methods(http.MethodPatch)
	r.HandleFunc("/overlays/{id}/footprint/{z}.geojson", s.footprintHandler).Methods(http.MethodGet)
	r.HandleFunc("/overlays/{id}/{z}/{x}/{y}.png", s.tileHandler).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.handler())
	return r
}

func mainCmd(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	cfg, overlays, err := setupOverlays(ctx)
	if err != nil {
		log.Fatal(err)
	}
	for _, o := range overlays {
		log.Printf("Serving %v", o)
	}

	s := newOverlayServer(overlays)
	r := s.router()

	// Where ORIGIN_ALLOWED is like `scheme://dns[:port]`, or `*` (insecure)
	headersOk := handlers.AllowedHeaders([]string{"X-Requested-With", "content-type", "username", "password", "Referer"})
	originsOk := handlers.AllowedOrigins(cfg.Server.CORSOrigins)
	methodsOk := handlers.AllowedMethods([]string{"GET", "HEAD", "PATCH", "OPTIONS"})

	listen := viper.GetString("server.listen")
	log.Printf("Listening on %s", listen)

	// start server listen with error handling
	log.Fatal(http.ListenAndServe(listen, handlers.CORS(originsOk, headersOk, methodsOk)(r)))
}

type overlayInfo struct {
	ID         string                  `json:"id"`
	Source     overlay.TileSourceProps `json:"source"`
	Layer      overlay.LayerProps      `json:"layer"`
	Anchor     []orb.Point             `json:"anchor"`
	Rotation   float64                 `json:"rotation"`
	Padding    overlay.Padding         `json:"padding"`
	Projection string                  `json:"projection"`
	RenderSize int                     `json:"renderSize"`
	Debug      bool                    `json:"debug"`
}

func newOverlayInfo(o *overlay.Overlay) overlayInfo {
	cfg := o.Config()
	return overlayInfo{
		ID:         o.ID(),
		Source:     o.TileSourceProps(),
		Layer:      o.LayerProps(),
		Anchor:     cfg.AnchorPolygon,
		Rotation:   cfg.RotationDegrees,
		Padding:    cfg.Padding,
		Projection: string(cfg.Projection),
		RenderSize: cfg.RenderSize,
		Debug:      cfg.Debug,
	}
}

// patchRequest is the JSON body of PATCH /overlays/{id}. Absent fields
// are left unchanged.
type patchRequest struct {
	Image      *string          `json:"image"`
	Anchor     []orb.Point      `json:"anchor"`
	Padding    *overlay.Padding `json:"padding"`
	Rotation   *float64         `json:"rotation"`
	Projection *string          `json:"projection"`
	Debug      *bool            `json:"debug"`
	TileSize   *int             `json:"tileSize"`
	RenderSize *int             `json:"renderSize"`
}

func (p patchRequest) patch() overlay.Patch {
	res := overlay.Patch{
		AnchorPolygon:   p.Anchor,
		Padding:         p.Padding,
		RotationDegrees: p.Rotation,
		Debug:           p.Debug,
		TileSize:        p.TileSize,
		RenderSize:      p.RenderSize,
	}
	if p.Image != nil {
		res.Image = overlay.ImageURL(*p.Image)
	}
	if p.Projection != nil {
		m := slippymath.ProjectionModel(*p.Projection)
		res.Projection = &m
	}
	return res
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	out, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(out)
}

func (s *overlayServer) lookup(w http.ResponseWriter, r *http.Request) (*overlay.Overlay, bool) {
	id := mux.Vars(r)["id"]
	o, ok := s.overlays[id]
	if !ok {
		http.Error(w, fmt.Sprintf("%v: %q", ErrNoOverlay, id), http.StatusNotFound)
		return nil, false
	}
	return o, true
}

func (s *overlayServer) listOverlaysHandler(w http.ResponseWriter, r *http.Request) {
	res := make([]overlayInfo, 0, len(s.order))
	for _, id := range s.order {
		res = append(res, newOverlayInfo(s.overlays[id]))
	}
	writeJSON(w, res)
}

func (s *overlayServer) getOverlayHandler(w http.ResponseWriter, r *http.Request) {
	o, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, newOverlayInfo(o))
}

func (s *overlayServer) patchOverlayHandler(w http.ResponseWriter, r *http.Request) {
	o, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req patchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := o.Update(req.patch()); err != nil {
		log.Printf("Update %s: ERR: %v", o.ID(), err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.metrics.updates.WithLabelValues(o.ID()).Inc()
	log.Printf("Updated %v", o)

	writeJSON(w, newOverlayInfo(o))
}

// tileAddress parses and range-checks z, x and y.
func tileAddress(vars map[string]string) (z, x, y int, err error) {
	z, err = strconv.Atoi(vars["z"])
	if err != nil {
		return 0, 0, 0, err
	}
	if z < 0 || z > maxZoom {
		return 0, 0, 0, fmt.Errorf("zoom %d out of range", z)
	}
	if _, ok := vars["x"]; !ok {
		return z, 0, 0, nil
	}
	x, err = strconv.Atoi(vars["x"])
	if err != nil {
		return 0, 0, 0, err
	}
	y, err = strconv.Atoi(vars["y"])
	if err != nil {
		return 0, 0, 0, err
	}
	n := slippymath.TileCount(z)
	if x < 0 || x >= n || y < 0 || y >= n {
		return 0, 0, 0, fmt.Errorf("tile %d/%d/%d out of range", z, x, y)
	}
	return z, x, y, nil
}

// parseTileStyle reads the opacity, size, tint and tint_amount tile
// query parameters.
func parseTileStyle(q url.Values) (tileStyle, error) {
	style := defaultTileStyle()

	if v := q.Get("opacity"); v != "" {
		opacity, err := strconv.ParseFloat(v, 64)
		if err != nil || opacity < 0 || opacity > 1 {
			return style, fmt.Errorf("bad opacity %q", v)
		}
		style.opacity = opacity
	}

	if v := q.Get("size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 || size > maxTileSize {
			return style, fmt.Errorf("bad size %q", v)
		}
		style.size = size
	}

	if v := q.Get("tint"); v != "" {
		tint, err := ParseTint(v)
		if err != nil {
			return style, fmt.Errorf("bad tint %q", v)
		}
		style.tint = &tint
	}

	if v := q.Get("tint_amount"); v != "" {
		amount, err := strconv.ParseFloat(v, 64)
		if err != nil || amount < 0 || amount > 1 {
			return style, fmt.Errorf("bad tint_amount %q", v)
		}
		style.tintAmount = amount
	}

	return style, nil
}

func (s *overlayServer) tileHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	o, ok := s.lookup(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)

	log.Printf("Tiles params: id=%v, z=%v, x=%v, y=%v\n", vars["id"], vars["z"], vars["x"], vars["y"])

	z, x, y, err := tileAddress(vars)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	style, err := parseTileStyle(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	dt1 := time.Now()
	tile, err := o.FetchTile(ctx, x, y, z)
	if err != nil {
		s.metrics.observeTile(o.ID(), "error", time.Since(dt1))
		log.Printf("req: %s/%d/%d/%d, ERR: %v", o.ID(), z, x, y, err)
		status := http.StatusBadGateway
		if errors.Is(err, context.Canceled) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}

	out, err := encodeTile(tile, style)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	result := "blank"
	if tile.Drawn {
		result = "drawn"
	}
	dt2 := time.Now()
	s.metrics.observeTile(o.ID(), result, dt2.Sub(dt1))
	log.Printf("Tile %s/%d/%d/%d: %s, %d bytes in %v", o.ID(), z, x, y, result, len(out), dt2.Sub(dt1))

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Overlay-Drawn", strconv.FormatBool(tile.Drawn))
	w.Write(out)
}

func (s *overlayServer) footprintHandler(w http.ResponseWriter, r *http.Request) {
	o, ok := s.lookup(w, r)
	if !ok {
		return
	}

	z, _, _, err := tileAddress(mux.Vars(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cfg := o.Config()
	feat := geojson.NewFeature(o.Footprint(z))
	feat.ID = o.ID()
	feat.Properties["zoom"] = z
	feat.Properties["rotation"] = cfg.RotationDegrees
	feat.Properties["projection"] = string(cfg.Projection)
	if minX, minY, maxX, maxY, ok := o.TileRange(z); ok {
		feat.Properties["tiles"] = []int{minX, minY, maxX, maxY}
	}

	fc := geojson.NewFeatureCollection()
	fc.Append(feat)

	out, err := fc.MarshalJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write(out)
}
