package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNew(reg)

	m.SetLiveSessions(3)
	m.IncCommand("camp-checkout")
	m.IncCommand("camp-checkout")
	m.AddOrders(4)
	m.AddOrders(-1)
	m.IncCards()
	m.IncLoadFailure("timeout")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.liveSessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.commands.WithLabelValues("camp-checkout")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ordersScraped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cardsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loadFailures.WithLabelValues("timeout")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetLiveSessions(1)
		m.IncCommand("x")
		m.AddOrders(1)
		m.IncCards()
		m.IncLoadFailure("crash")
	})
}
