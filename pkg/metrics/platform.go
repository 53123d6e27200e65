package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fluxfs/fluxfs/pkg/platform"
)

// platformMetrics is the Prometheus implementation of platform.Metrics.
//
// It tracks the traffic the bulk resolver and query engine send to the
// platform: describe batch counts and sizes per container, describe
// cache effectiveness, and find pagination volume.
type platformMetrics struct {
	describeBatches *prometheus.CounterVec
	describeItems   *prometheus.CounterVec
	batchSize       prometheus.Histogram
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	findPages       prometheus.Counter
	findMatches     prometheus.Counter
}

// NewPlatformMetrics creates a Prometheus-backed platform.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// makes the bulk resolver use its no-op implementation.
func NewPlatformMetrics() platform.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &platformMetrics{
		describeBatches: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluxfs_platform_describe_batches_total",
				Help: "Total number of bulk describe calls issued to the platform",
			},
			[]string{"container"},
		),
		describeItems: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluxfs_platform_describe_items_total",
				Help: "Total number of object ids sent in describe batches",
			},
			[]string{"container"},
		),
		batchSize: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fluxfs_platform_describe_batch_size",
				Help:    "Number of object ids per describe batch",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 200, 500, 1000},
			},
		),
		cacheHits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fluxfs_platform_describe_cache_hits_total",
				Help: "Total describe lookups served from the cache",
			},
		),
		cacheMisses: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fluxfs_platform_describe_cache_misses_total",
				Help: "Total describe lookups that went to the platform",
			},
		),
		findPages: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fluxfs_platform_find_pages_total",
				Help: "Total find result pages fetched from the platform",
			},
		),
		findMatches: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fluxfs_platform_find_matches_total",
				Help: "Total objects returned across find pages",
			},
		),
	}
}

func (m *platformMetrics) DescribeBatch(container string, items int) {
	m.describeBatches.WithLabelValues(container).Inc()
	m.describeItems.WithLabelValues(container).Add(float64(items))
	m.batchSize.Observe(float64(items))
}

func (m *platformMetrics) CacheHit() {
	m.cacheHits.Inc()
}

func (m *platformMetrics) CacheMiss() {
	m.cacheMisses.Inc()
}

func (m *platformMetrics) FindPage(matches int) {
	m.findPages.Inc()
	m.findMatches.Add(float64(matches))
}
