package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics colectores Prometheus del motor de movimientos. Un *Metrics nil no registra nada.
type Metrics struct {
	movements     *prometheus.CounterVec
	entries       prometheus.Counter
	faults        prometheus.Counter
	lockWait      prometheus.Histogram
	recoveredGaps prometheus.Counter
}

// New registra los colectores en reg (prometheus.DefaultRegisterer en producción).
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		movements: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stock_ledger",
			Name:      "movements_total",
			Help:      "Movimientos procesados por tipo de documento y resultado.",
		}, []string{"type", "outcome"}),
		entries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "stock_ledger",
			Name:      "entries_appended_total",
			Help:      "Asientos agregados al libro.",
		}),
		faults: f.NewCounter(prometheus.CounterOpts{
			Namespace: "stock_ledger",
			Name:      "consistency_faults_total",
			Help:      "Claves marcadas en falla de consistencia.",
		}),
		lockWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stock_ledger",
			Name:      "lock_wait_seconds",
			Help:      "Espera para adquirir los bloqueos de un movimiento.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		recoveredGaps: f.NewCounter(prometheus.CounterOpts{
			Namespace: "stock_ledger",
			Name:      "recovered_entries_total",
			Help:      "Asientos completados por la recuperación al arranque.",
		}),
	}
}

// Movement cuenta un movimiento; outcome: executed, cancelled, rejected, timeout, error.
func (m *Metrics) Movement(docType, outcome string) {
	if m == nil {
		return
	}
	m.movements.WithLabelValues(docType, outcome).Inc()
}

func (m *Metrics) EntriesAppended(n int) {
	if m == nil {
		return
	}
	m.entries.Add(float64(n))
}

func (m *Metrics) ConsistencyFault() {
	if m == nil {
		return
	}
	m.faults.Inc()
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

func (m *Metrics) RecoveredEntries(n int) {
	if m == nil {
		return
	}
	m.recoveredGaps.Add(float64(n))
}
