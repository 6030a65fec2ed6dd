package metrics

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics counts stock movements and the failures the ledger reports.
// A nil *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	applied      *prometheus.CounterVec
	insufficient *prometheus.CounterVec
	duplicates   *prometheus.CounterVec
	retries      prometheus.Counter
	drift        prometheus.Counter
}

// NewLedgerMetrics registers the inventory ledger collectors.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_movements_applied_total",
			Help:      "Stock movements written to the ledger.",
		}, []string{"type"}),
		insufficient: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_insufficient_stock_total",
			Help:      "Movements rejected because on-hand stock would go negative.",
		}, []string{"type"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_duplicate_movements_total",
			Help:      "Movements skipped because the reference was already applied.",
		}, []string{"type"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_transient_retries_total",
			Help:      "Ledger writes retried after a transient failure.",
		}),
		drift: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_reconciliation_drift_total",
			Help:      "Stock levels whose on-hand count disagrees with their movement history.",
		}),
	}
	reg.MustRegister(m.applied, m.insufficient, m.duplicates, m.retries, m.drift)
	return m
}

func (m *LedgerMetrics) IncApplied(movementType string) {
	if m == nil || m.applied == nil {
		return
	}
	m.applied.WithLabelValues(normalizeLabel(movementType)).Inc()
}

func (m *LedgerMetrics) IncInsufficientStock(movementType string) {
	if m == nil || m.insufficient == nil {
		return
	}
	m.insufficient.WithLabelValues(normalizeLabel(movementType)).Inc()
}

func (m *LedgerMetrics) IncDuplicate(movementType string) {
	if m == nil || m.duplicates == nil {
		return
	}
	m.duplicates.WithLabelValues(normalizeLabel(movementType)).Inc()
}

func (m *LedgerMetrics) IncRetry() {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Inc()
}

func (m *LedgerMetrics) IncDrift() {
	if m == nil || m.drift == nil {
		return
	}
	m.drift.Inc()
}
