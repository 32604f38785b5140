// Package prometheus holds the prometheus implementations of the domain
// metrics interfaces. Importing it (blank import from the binaries)
// installs the constructors into pkg/metrics.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/scribefs/scribefs/pkg/catalog"
	"github.com/scribefs/scribefs/pkg/metrics"
)

func init() {
	metrics.RegisterCatalogMetricsConstructor(newCatalogMetrics)
	metrics.RegisterSessionMetricsConstructor(newSessionMetrics)
}

// catalogMetrics implements catalog.Metrics.
type catalogMetrics struct {
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	catalogSize prometheus.Gauge
}

func newCatalogMetrics() catalog.Metrics {
	reg := metrics.GetRegistry()
	return &catalogMetrics{
		cacheHits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "scribefs_catalog_cache_hits_total",
			Help: "LRU read-cache hits on catalog lookups",
		}),
		cacheMisses: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "scribefs_catalog_cache_misses_total",
			Help: "LRU read-cache misses on catalog lookups",
		}),
		catalogSize: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "scribefs_catalog_files",
			Help: "Current number of catalog rows",
		}),
	}
}

func (m *catalogMetrics) RecordCacheHit()      { m.cacheHits.Inc() }
func (m *catalogMetrics) RecordCacheMiss()     { m.cacheMisses.Inc() }
func (m *catalogMetrics) SetCatalogSize(n int) { m.catalogSize.Set(float64(n)) }
