package metrics

import (
	"github.com/scribefs/scribefs/pkg/nameserver"
)

// NewSessionMetrics creates a prometheus-backed nameserver.Metrics.
//
// Returns nil when metrics are disabled; the name server substitutes its
// no-op collector for a nil one.
func NewSessionMetrics() nameserver.Metrics {
	if !IsEnabled() || newPrometheusSessionMetrics == nil {
		return nil
	}
	return newPrometheusSessionMetrics()
}

// newPrometheusSessionMetrics is installed by pkg/metrics/prometheus at
// init time.
var newPrometheusSessionMetrics func() nameserver.Metrics

// RegisterSessionMetricsConstructor installs the prometheus constructor.
func RegisterSessionMetricsConstructor(constructor func() nameserver.Metrics) {
	newPrometheusSessionMetrics = constructor
}
