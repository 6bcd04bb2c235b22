package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDomainMetricsCount(t *testing.T) {
	m := NewDomainMetrics(prometheus.NewRegistry())
	m.Posted("invoice", "posted")
	m.Posted("invoice", "posted")
	m.Posted("expense", "already_posted")
	m.Recomputed("INVOICE")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.postings.WithLabelValues("invoice", "posted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.postings.WithLabelValues("expense", "already_posted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recomputes.WithLabelValues("INVOICE")))
}

func TestNilDomainMetricsIsNoop(t *testing.T) {
	var m *DomainMetrics
	assert.NotPanics(t, func() {
		m.Posted("invoice", "failed")
		m.Recomputed("BUDGET")
		m.NumberingRetry("BUDGET")
		m.StockAdjusted("in")
	})
}
