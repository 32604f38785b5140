package nameserver

// Metrics collects session and routing metrics. The prometheus
// implementation lives in pkg/metrics/prometheus; NopMetrics disables
// collection.
type Metrics interface {
	// ConnectionOpened records an accepted session.
	ConnectionOpened()
	// ConnectionClosed records a finished session.
	ConnectionClosed()
	// RecordCommand records a dispatched verb and its wire error code
	// (0 for success).
	RecordCommand(verb string, code int)
	// RecordSSTransaction records a mediated storage transaction outcome.
	RecordSSTransaction(verb string, ok bool)
}

// NopMetrics is the metrics collector used when metrics are disabled.
type NopMetrics struct{}

func (NopMetrics) ConnectionOpened()                {}
func (NopMetrics) ConnectionClosed()                {}
func (NopMetrics) RecordCommand(string, int)        {}
func (NopMetrics) RecordSSTransaction(string, bool) {}
