// Package metrics exposes Prometheus collectors for the atlas server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "atlas"

// Load states reported by the load_state gauge.
var loadStates = []string{"loading", "ready", "failed"}

// Metrics holds the collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	Selections  *prometheus.CounterVec
	Tiles       *prometheus.CounterVec
	TileSeconds prometheus.Histogram
	Legends     prometheus.Counter
	Sessions    prometheus.Gauge
	LoadState   *prometheus.GaugeVec
}

// New registers every collector, plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Viewer selection events by kind.",
		}, []string{"kind"}),
		Tiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tiles_total",
			Help:      "Vector tiles served by cache result.",
		}, []string{"result"}),
		TileSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tile_render_seconds",
			Help:      "Time spent rendering uncached tiles.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		Legends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "legend_renders_total",
			Help:      "Legend rasters rendered.",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "viewer_sessions",
			Help:      "Viewer sessions held in memory.",
		}),
		LoadState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "load_state",
			Help:      "1 for the current asset load state.",
		}, []string{"state"}),
	}
	reg.MustRegister(
		m.Selections, m.Tiles, m.TileSeconds, m.Legends, m.Sessions, m.LoadState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.SetLoadState("loading")
	return m
}

// SetLoadState marks state as current.
func (m *Metrics) SetLoadState(state string) {
	for _, s := range loadStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.LoadState.WithLabelValues(s).Set(v)
	}
}

// ObserveTile records one tile request. Rendering time is only observed
// for cache misses.
func (m *Metrics) ObserveTile(hit, empty bool, elapsed time.Duration) {
	switch {
	case hit:
		m.Tiles.WithLabelValues("hit").Inc()
		return
	case empty:
		m.Tiles.WithLabelValues("empty").Inc()
	default:
		m.Tiles.WithLabelValues("miss").Inc()
	}
	m.TileSeconds.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
