package platform

// Metrics receives counters from the bulk resolver and query engine.
//
// pkg/metrics provides a Prometheus-backed implementation; a nil Metrics
// in the options selects the no-op implementation.
type Metrics interface {
	// DescribeBatch records one describe call against a container.
	DescribeBatch(container string, items int)

	// CacheHit records a describe served from the cache.
	CacheHit()

	// CacheMiss records a describe that had to go to the backend.
	CacheMiss()

	// FindPage records one fetched find page.
	FindPage(matches int)
}

type noopMetrics struct{}

func (noopMetrics) DescribeBatch(string, int) {}
func (noopMetrics) CacheHit()                 {}
func (noopMetrics) CacheMiss()                {}
func (noopMetrics) FindPage(int)              {}
