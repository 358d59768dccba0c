package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics counts posting outcomes, issued numbers and trial balance
// checks. It satisfies the journals, sequences and reports observers.
type LedgerMetrics struct {
	postings   *prometheus.CounterVec
	sequences  *prometheus.CounterVec
	tbChecks   *prometheus.CounterVec
	imbalanced prometheus.Gauge
}

// NewLedgerMetrics registers ledger collectors on registerer.
func NewLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgercore_journal_postings_total",
		Help: "Journal posting attempts by entry type and outcome.",
	}, []string{"entry_type", "outcome"})
	sequences := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgercore_sequence_issued_total",
		Help: "Document numbers issued by kind.",
	}, []string{"kind"})
	tbChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgercore_trial_balance_checks_total",
		Help: "Trial balances computed, by result.",
	}, []string{"result"})
	imbalanced := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ledgercore_trial_balance_imbalanced",
		Help: "1 when the most recent trial balance did not close.",
	})
	registerer.MustRegister(postings, sequences, tbChecks, imbalanced)
	return &LedgerMetrics{postings: postings, sequences: sequences, tbChecks: tbChecks, imbalanced: imbalanced}
}

// PostingObserved counts one posting outcome.
func (m *LedgerMetrics) PostingObserved(entryType, outcome string) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(entryType, outcome).Inc()
}

// SequenceIssued counts one issued number.
func (m *LedgerMetrics) SequenceIssued(kind string) {
	if m == nil {
		return
	}
	m.sequences.WithLabelValues(kind).Inc()
}

// TrialBalanceChecked records the latest closure result.
func (m *LedgerMetrics) TrialBalanceChecked(balanced bool) {
	if m == nil {
		return
	}
	if balanced {
		m.tbChecks.WithLabelValues("balanced").Inc()
		m.imbalanced.Set(0)
		return
	}
	m.tbChecks.WithLabelValues("imbalanced").Inc()
	m.imbalanced.Set(1)
}
