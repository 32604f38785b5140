package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/scribefs/scribefs/pkg/metrics"
	"github.com/scribefs/scribefs/pkg/nameserver"
)

// sessionMetrics implements nameserver.Metrics.
type sessionMetrics struct {
	sessionsTotal  prometheus.Counter
	sessionsActive prometheus.Gauge
	commands       *prometheus.CounterVec
	ssTransactions *prometheus.CounterVec
}

func newSessionMetrics() nameserver.Metrics {
	reg := metrics.GetRegistry()
	return &sessionMetrics{
		sessionsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "scribefs_sessions_total",
			Help: "Total accepted name server sessions",
		}),
		sessionsActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "scribefs_sessions_active",
			Help: "Currently open name server sessions",
		}),
		commands: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "scribefs_commands_total",
			Help: "Dispatched commands by verb and wire error code (0 = ok)",
		}, []string{"verb", "code"}),
		ssTransactions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "scribefs_ss_transactions_total",
			Help: "Mediated storage transactions by verb and outcome",
		}, []string{"verb", "status"}),
	}
}

func (m *sessionMetrics) ConnectionOpened() {
	m.sessionsTotal.Inc()
	m.sessionsActive.Inc()
}

func (m *sessionMetrics) ConnectionClosed() {
	m.sessionsActive.Dec()
}

func (m *sessionMetrics) RecordCommand(verb string, code int) {
	m.commands.WithLabelValues(verb, strconv.Itoa(code)).Inc()
}

func (m *sessionMetrics) RecordSSTransaction(verb string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.ssTransactions.WithLabelValues(verb, status).Inc()
}
