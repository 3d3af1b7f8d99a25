package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/asakaida/junban/pkg/cache"
	"github.com/asakaida/junban/pkg/cache/memorycache"
)

// CacheCollector exposes the statistics of a relation order cache at scrape time.
type CacheCollector struct {
	cache cache.Cache

	hits        *prometheus.Desc
	misses      *prometheus.Desc
	hitRate     *prometheus.Desc
	evictions   *prometheus.Desc
	keysCurrent *prometheus.Desc
	memoryBytes *prometheus.Desc
}

// NewCacheCollector creates a collector for c. backend labels the series ("memory" or "redis").
func NewCacheCollector(c cache.Cache, backend string) *CacheCollector {
	labels := prometheus.Labels{"backend": backend}
	return &CacheCollector{
		cache:       c,
		hits:        prometheus.NewDesc("junban_order_cache_hits_total", "Total number of relation order cache hits", nil, labels),
		misses:      prometheus.NewDesc("junban_order_cache_misses_total", "Total number of relation order cache misses", nil, labels),
		hitRate:     prometheus.NewDesc("junban_order_cache_hit_rate", "Current cache hit rate (0.0 to 1.0)", nil, labels),
		evictions:   prometheus.NewDesc("junban_order_cache_evictions_total", "Total number of cache evictions due to memory limits", nil, labels),
		keysCurrent: prometheus.NewDesc("junban_order_cache_keys_current", "Current number of keys in the order cache", nil, labels),
		memoryBytes: prometheus.NewDesc("junban_order_cache_memory_bytes", "Current accounted size of the order cache in bytes", nil, labels),
	}
}

// Describe implements prometheus.Collector.
func (c *CacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.hitRate
	ch <- c.evictions
	ch <- c.keysCurrent
	ch <- c.memoryBytes
}

// Collect implements prometheus.Collector.
func (c *CacheCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.cache.Metrics()
	if m == nil {
		m = &cache.Metrics{}
	}

	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(m.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(m.Misses))
	ch <- prometheus.MustNewConstMetric(c.hitRate, prometheus.GaugeValue, m.HitRate())
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(m.KeysEvicted))

	// Only the memory backend knows its own footprint.
	var keys, bytes float64
	if mc, ok := c.cache.(*memorycache.Cache); ok {
		keys = float64(mc.Len())
		bytes = float64(mc.Size())
	}
	ch <- prometheus.MustNewConstMetric(c.keysCurrent, prometheus.GaugeValue, keys)
	ch <- prometheus.MustNewConstMetric(c.memoryBytes, prometheus.GaugeValue, bytes)
}
