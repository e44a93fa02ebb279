// Package metrics holds the Prometheus collectors the trader updates while running:
//
//	trader_rounds_total                        dispatcher rounds completed
//	trader_decisions_total{strategy,action}    engine decisions
//	trader_orders_total{side,outcome}          order submissions (submitted|rejected|error)
//	trader_upstream_errors_total{component}    quote/account/order/store failures
//	trader_quote_cache_hits_total              quotes served from the cache window
//	trader_buy_gate_open                       1 while entries are allowed
//	trader_buying_power_usd                    last observed buying power
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	Rounds         prometheus.Counter
	Decisions      *prometheus.CounterVec
	Orders         *prometheus.CounterVec
	UpstreamErrors *prometheus.CounterVec
	QuoteCacheHits prometheus.Counter
	BuyGateOpen    prometheus.Gauge
	BuyingPower    prometheus.Gauge
}

// New builds the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_rounds_total",
			Help: "Dispatcher rounds completed",
		}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_decisions_total",
			Help: "Stage engine decisions",
		}, []string{"strategy", "action"}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_orders_total",
			Help: "Orders submitted split by side and outcome",
		}, []string{"side", "outcome"}),
		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_upstream_errors_total",
			Help: "Failures talking to upstream dependencies",
		}, []string{"component"}),
		QuoteCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_quote_cache_hits_total",
			Help: "Quotes served from the per-symbol cache window",
		}),
		BuyGateOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_buy_gate_open",
			Help: "1 while buying power is above the floor",
		}),
		BuyingPower: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_buying_power_usd",
			Help: "Last observed account buying power",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Rounds,
		m.Decisions,
		m.Orders,
		m.UpstreamErrors,
		m.QuoteCacheHits,
		m.BuyGateOpen,
		m.BuyingPower,
	)
	return m
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
