package render

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is an optional prometheus sink for frame statistics. The
// per-frame FrameStats struct stays the primary interface; this mirrors it
// into a registry for scraping.
type Metrics struct {
	FramesTotal   prometheus.Counter
	PhaseDuration *prometheus.HistogramVec

	CandidateNodes prometheus.Histogram
	RenderedNodes  prometheus.Histogram
	RenderedEdges  prometheus.Histogram
	CulledTotal    *prometheus.CounterVec

	BundledFramesTotal prometheus.Counter
	SnapshotBytes      prometheus.Gauge
}

// NewMetrics builds and registers the renderer metrics against the given
// registerer (prometheus.DefaultRegisterer in the server).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graphview_frames_total",
			Help: "Total rendered frames",
		}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "graphview_frame_phase_seconds",
			Help:    "Per-phase frame pipeline duration",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}, []string{"phase"}),
		CandidateNodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "graphview_candidate_nodes",
			Help:    "Nodes surviving the viewport cull per frame",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		RenderedNodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "graphview_rendered_nodes",
			Help:    "Nodes emitted in the render plan per frame",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		RenderedEdges: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "graphview_rendered_edges",
			Help:    "Edges emitted in the render plan per frame",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		CulledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphview_culled_elements_total",
			Help: "Elements dropped per frame by cull reason",
		}, []string{"reason"}),
		BundledFramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graphview_bundled_frames_total",
			Help: "Frames where the edge bundling pass ran",
		}),
		SnapshotBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "graphview_snapshot_bytes",
			Help: "Size of the most recent scene snapshot",
		}),
	}

	reg.MustRegister(
		m.FramesTotal,
		m.PhaseDuration,
		m.CandidateNodes,
		m.RenderedNodes,
		m.RenderedEdges,
		m.CulledTotal,
		m.BundledFramesTotal,
		m.SnapshotBytes,
	)
	return m
}

// RecordFrame mirrors one frame's stats into the registry.
func (m *Metrics) RecordFrame(stats FrameStats) {
	m.FramesTotal.Inc()

	m.PhaseDuration.WithLabelValues("index").Observe(stats.IndexTime.Seconds())
	m.PhaseDuration.WithLabelValues("cull").Observe(stats.CullTime.Seconds())
	m.PhaseDuration.WithLabelValues("lod").Observe(stats.LODTime.Seconds())
	m.PhaseDuration.WithLabelValues("select").Observe(stats.SelectTime.Seconds())
	m.PhaseDuration.WithLabelValues("bundle").Observe(stats.BundleTime.Seconds())
	m.PhaseDuration.WithLabelValues("frame").Observe(stats.FrameTime.Seconds())

	m.CandidateNodes.Observe(float64(stats.CandidateNodes))
	m.RenderedNodes.Observe(float64(stats.RenderedNodes))
	m.RenderedEdges.Observe(float64(stats.RenderedEdges))

	m.CulledTotal.WithLabelValues("offscreen").Add(float64(stats.CulledOffscreen))
	m.CulledTotal.WithLabelValues("lod").Add(float64(stats.CulledLOD))
	m.CulledTotal.WithLabelValues("size").Add(float64(stats.CulledSize))
	m.CulledTotal.WithLabelValues("budget").Add(float64(stats.CulledBudget))

	if stats.Bundled {
		m.BundledFramesTotal.Inc()
	}
}
