package observability

import "github.com/prometheus/client_golang/prometheus"

// DomainMetrics counts business operations. A nil *DomainMetrics is valid
// and records nothing.
type DomainMetrics struct {
	recomputes       *prometheus.CounterVec
	numberingRetries *prometheus.CounterVec
	postings         *prometheus.CounterVec
	stockAdjustments *prometheus.CounterVec
}

// NewDomainMetrics registers the domain collectors against registerer.
func NewDomainMetrics(registerer prometheus.Registerer) *DomainMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &DomainMetrics{
		recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rvgrafica_document_recomputes_total",
			Help: "Document totals recomputations by document kind.",
		}, []string{"kind"}),
		numberingRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rvgrafica_numbering_retries_total",
			Help: "Document creations retried after a number conflict.",
		}, []string{"kind"}),
		postings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rvgrafica_ledger_postings_total",
			Help: "Ledger posting attempts by event kind and result.",
		}, []string{"event", "result"}),
		stockAdjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rvgrafica_stock_adjustments_total",
			Help: "Stock movements recorded by direction.",
		}, []string{"direction"}),
	}
	registerer.MustRegister(m.recomputes, m.numberingRetries, m.postings, m.stockAdjustments)
	return m
}

// Recomputed counts a totals recomputation.
func (m *DomainMetrics) Recomputed(kind string) {
	if m == nil {
		return
	}
	m.recomputes.WithLabelValues(kind).Inc()
}

// NumberingRetry counts a retried document creation.
func (m *DomainMetrics) NumberingRetry(kind string) {
	if m == nil {
		return
	}
	m.numberingRetries.WithLabelValues(kind).Inc()
}

// Posted counts a posting attempt by its outcome.
func (m *DomainMetrics) Posted(event, result string) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(event, result).Inc()
}

// StockAdjusted counts a stock movement.
func (m *DomainMetrics) StockAdjusted(direction string) {
	if m == nil {
		return
	}
	m.stockAdjustments.WithLabelValues(direction).Inc()
}
