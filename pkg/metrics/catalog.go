package metrics

import (
	"github.com/scribefs/scribefs/pkg/catalog"
)

// NewCatalogMetrics creates a prometheus-backed catalog.Metrics.
//
// Returns nil when metrics are disabled; the catalog treats a nil
// collector as a no-op.
func NewCatalogMetrics() catalog.Metrics {
	if !IsEnabled() || newPrometheusCatalogMetrics == nil {
		return nil
	}
	return newPrometheusCatalogMetrics()
}

// newPrometheusCatalogMetrics is installed by pkg/metrics/prometheus at
// init time. The indirection keeps the prometheus dependency out of this
// package's import graph and avoids a cycle.
var newPrometheusCatalogMetrics func() catalog.Metrics

// RegisterCatalogMetricsConstructor installs the prometheus constructor.
func RegisterCatalogMetricsConstructor(constructor func() catalog.Metrics) {
	newPrometheusCatalogMetrics = constructor
}
