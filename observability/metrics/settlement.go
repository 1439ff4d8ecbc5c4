package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type SettlementMetrics struct {
	harvestsCompleted *prometheus.CounterVec
	harvestsRejected  *prometheus.CounterVec
	withdrawals       *prometheus.CounterVec
	ledgerBalance     prometheus.Gauge
	pauseState        prometheus.Gauge
}

var (
	settlementOnce     sync.Once
	settlementRegistry *SettlementMetrics
)

func Settlement() *SettlementMetrics {
	settlementOnce.Do(func() {
		settlementRegistry = &SettlementMetrics{
			harvestsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "settlement_harvests_completed_total",
				Help: "Count of completed harvest operations by asset kind.",
			}, []string{"kind"}),
			harvestsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "settlement_harvests_rejected_total",
				Help: "Count of rejected harvest operations by asset kind.",
			}, []string{"kind"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "settlement_withdrawals_total",
				Help: "Count of owner withdrawals by asset kind.",
			}, []string{"kind"}),
			ledgerBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "settlement_ledger_balance",
				Help: "Native coin balance held by the settlement ledger.",
			}),
			pauseState: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "settlement_paused",
				Help: "Whether harvest operations are currently paused (1) or running (0).",
			}),
		}
		prometheus.MustRegister(
			settlementRegistry.harvestsCompleted,
			settlementRegistry.harvestsRejected,
			settlementRegistry.withdrawals,
			settlementRegistry.ledgerBalance,
			settlementRegistry.pauseState,
		)
	})
	return settlementRegistry
}

func (m *SettlementMetrics) ObserveHarvestCompleted(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.harvestsCompleted.WithLabelValues(kind).Inc()
}

func (m *SettlementMetrics) ObserveHarvestRejected(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.harvestsRejected.WithLabelValues(kind).Inc()
}

func (m *SettlementMetrics) ObserveWithdrawal(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.withdrawals.WithLabelValues(kind).Inc()
}

func (m *SettlementMetrics) SetLedgerBalance(amount float64) {
	if m == nil {
		return
	}
	m.ledgerBalance.Set(amount)
}

func (m *SettlementMetrics) SetPaused(paused bool) {
	if m == nil {
		return
	}
	if paused {
		m.pauseState.Set(1)
		return
	}
	m.pauseState.Set(0)
}

func (m *SettlementMetrics) InitHarvestKind(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.harvestsCompleted.WithLabelValues(kind).Add(0)
	m.harvestsRejected.WithLabelValues(kind).Add(0)
	m.withdrawals.WithLabelValues(kind).Add(0)
}
