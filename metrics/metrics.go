// Package metrics exposes Prometheus counters for the document pipeline.
//
// Collectors are registered on a caller-supplied registry so that several
// pipelines (e.g. in tests) never collide on the global one.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Image resolution sources, used as label values.
const (
	SourceMemory  = "memory"
	SourceDurable = "durable"
	SourceNetwork = "network"
	SourceFailed  = "failed"
)

// Collector groups the pipeline's counters. A nil *Collector is valid and
// records nothing.
type Collector struct {
	TextCache        *prometheus.CounterVec
	ImageResolutions *prometheus.CounterVec
	Fetches          *prometheus.CounterVec
	PersistFailures  prometheus.Counter
	RenderDuration   *prometheus.HistogramVec
}

// New creates a Collector and registers it on reg (if non-nil).
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		TextCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docpipe_text_cache_lookups_total",
				Help: "Document text cache lookups, labeled by result (hit, miss).",
			},
			[]string{"result"},
		),
		ImageResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docpipe_image_resolutions_total",
				Help: "Image resolutions, labeled by the source that satisfied them.",
			},
			[]string{"source"},
		),
		Fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docpipe_fetches_total",
				Help: "Network fetches, labeled by kind (text, image) and outcome (ok, error).",
			},
			[]string{"kind", "outcome"},
		),
		PersistFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docpipe_image_persist_failures_total",
				Help: "Durable image writes that failed (e.g. quota exceeded).",
			},
		),
		RenderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docpipe_render_duration_seconds",
				Help:    "Duration of document renders in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}

	if reg != nil {
		reg.MustRegister(c.TextCache, c.ImageResolutions, c.Fetches, c.PersistFailures, c.RenderDuration)
	}
	return c
}

func (c *Collector) TextCacheHit() {
	if c != nil {
		c.TextCache.WithLabelValues("hit").Inc()
	}
}

func (c *Collector) TextCacheMiss() {
	if c != nil {
		c.TextCache.WithLabelValues("miss").Inc()
	}
}

func (c *Collector) ImageResolved(source string) {
	if c != nil {
		c.ImageResolutions.WithLabelValues(source).Inc()
	}
}

func (c *Collector) Fetch(kind string, ok bool) {
	if c == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	c.Fetches.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) PersistFailed() {
	if c != nil {
		c.PersistFailures.Inc()
	}
}

func (c *Collector) ObserveRender(seconds float64, ok bool) {
	if c == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	c.RenderDuration.WithLabelValues(outcome).Observe(seconds)
}
