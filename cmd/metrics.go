package cmd

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "planoverlay"

type tileMetrics struct {
	registry *prometheus.Registry

	tileRequests *prometheus.CounterVec
	tileDuration *prometheus.HistogramVec
	updates      *prometheus.CounterVec
}

func newTileMetrics() *tileMetrics {
	m := tileMetrics{
		registry: prometheus.NewRegistry(),
		tileRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tile_requests_total",
			Help:      "Tile requests by overlay and outcome.",
		}, []string{"overlay", "result"}),
		tileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "tile_render_seconds",
			Help:      "Time spent rendering a tile.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"overlay"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "overlay_updates_total",
			Help:      "Accepted overlay configuration updates.",
		}, []string{"overlay"}),
	}
	m.registry.MustRegister(m.tileRequests, m.tileDuration, m.updates)
	return &m
}

// observeTile records one tile request. result is drawn, blank or error.
func (m *tileMetrics) observeTile(id, result string, d time.Duration) {
	m.tileRequests.WithLabelValues(id, result).Inc()
	if result != "error" {
		m.tileDuration.WithLabelValues(id).Observe(d.Seconds())
	}
}

func (m *tileMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
