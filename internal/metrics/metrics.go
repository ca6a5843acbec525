package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hypercart"

// Metrics exposes Prometheus collectors for sessions and automation.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	liveSessions  prometheus.Gauge
	commands      *prometheus.CounterVec
	ordersScraped prometheus.Counter
	cardsCreated  prometheus.Counter
	loadFailures  *prometheus.CounterVec
}

// MustNew registers the collectors on reg, panicking on duplicate registration
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		liveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "live",
			Help:      "Number of open browser sessions.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "commands_total",
			Help:      "Automation commands dispatched, by command name.",
		}, []string{"command"}),
		ordersScraped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crawler",
			Name:      "orders_scraped_total",
			Help:      "Order records extracted from detail pages.",
		}),
		cardsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "netsafe",
			Name:      "cards_generated_total",
			Help:      "Virtual cards captured and stored.",
		}),
		loadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "load_failures_total",
			Help:      "Navigation failures and renderer crashes, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.liveSessions, m.commands, m.ordersScraped, m.cardsCreated, m.loadFailures)
	return m
}

// SetLiveSessions records the current number of open sessions
func (m *Metrics) SetLiveSessions(n int) {
	if m == nil {
		return
	}
	m.liveSessions.Set(float64(n))
}

// IncCommand counts one dispatched command
func (m *Metrics) IncCommand(command string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command).Inc()
}

// AddOrders counts scraped order records
func (m *Metrics) AddOrders(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ordersScraped.Add(float64(n))
}

// IncCards counts one generated card
func (m *Metrics) IncCards() {
	if m == nil {
		return
	}
	m.cardsCreated.Inc()
}

// IncLoadFailure counts a failed load or crash
func (m *Metrics) IncLoadFailure(reason string) {
	if m == nil {
		return
	}
	m.loadFailures.WithLabelValues(reason).Inc()
}
