package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "holdings"

// Metrics groups the collectors exported by the tracker. A nil *Metrics records nothing.
type Metrics struct {
	ledgerRequests  *prometheus.CounterVec
	ledgerLatency   *prometheus.HistogramVec
	fetchResults    *prometheus.CounterVec
	fetchAttempts   prometheus.Histogram
	cacheLookups    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	groupBalance    *prometheus.GaugeVec
	groupErrors     *prometheus.GaugeVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ledgerRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_requests_total",
			Help:      "account_info requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		ledgerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_request_duration_seconds",
			Help:      "account_info request latency by endpoint.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		fetchResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balance_fetch_total",
			Help:      "Per-address fetch outcomes.",
		}, []string{"result"}),
		fetchAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "balance_fetch_attempts",
			Help:      "Endpoint attempts needed to resolve one address.",
			Buckets:   []float64{1, 2, 3, 4, 6, 9, 12},
		}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balance_cache_lookups_total",
			Help:      "Balance cache lookups by result.",
		}, []string{"result"}),
		refreshDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of full refresh cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
		groupBalance: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "group_balance",
			Help:      "Total balance per group in display units as of the last refresh.",
		}, []string{"group"}),
		groupErrors: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "group_errors",
			Help:      "Failed addresses per group as of the last refresh.",
		}, []string{"group"}),
	}
}

// ObserveLedgerRequest records one endpoint attempt.
func (m *Metrics) ObserveLedgerRequest(endpoint, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.ledgerRequests.WithLabelValues(endpoint, outcome).Inc()
	m.ledgerLatency.WithLabelValues(endpoint).Observe(took.Seconds())
}

// ObserveFetch records the final outcome for one address.
func (m *Metrics) ObserveFetch(result string, attempts int) {
	if m == nil {
		return
	}
	m.fetchResults.WithLabelValues(result).Inc()
	if attempts > 0 {
		m.fetchAttempts.Observe(float64(attempts))
	}
}

// ObserveCacheLookup records a cache hit or miss.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// ObserveRefresh records the duration of a refresh cycle.
func (m *Metrics) ObserveRefresh(took time.Duration) {
	if m == nil {
		return
	}
	m.refreshDuration.Observe(took.Seconds())
}

// SetGroup publishes a group's total and error count.
func (m *Metrics) SetGroup(group string, balance float64, errors int) {
	if m == nil {
		return
	}
	m.groupBalance.WithLabelValues(group).Set(balance)
	m.groupErrors.WithLabelValues(group).Set(float64(errors))
}

// ResetGroups drops all per-group series, so groups removed from a snapshot do not linger.
func (m *Metrics) ResetGroups() {
	if m == nil {
		return
	}
	m.groupBalance.Reset()
	m.groupErrors.Reset()
}
