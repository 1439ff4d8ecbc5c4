package server

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type signerMetrics struct {
	issued   prometheus.Counter
	rejected *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsRegistry *signerMetrics
)

func metrics() *signerMetrics {
	metricsOnce.Do(func() {
		metricsRegistry = &signerMetrics{
			issued: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "scoresigner_signatures_issued_total",
				Help: "Count of score attestations issued.",
			}),
			rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "scoresigner_requests_rejected_total",
				Help: "Count of rejected signing requests by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(metricsRegistry.issued, metricsRegistry.rejected)
	})
	return metricsRegistry
}

func (m *signerMetrics) observeIssued() {
	if m == nil {
		return
	}
	m.issued.Inc()
}

func (m *signerMetrics) observeRejected(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.rejected.WithLabelValues(reason).Inc()
}
