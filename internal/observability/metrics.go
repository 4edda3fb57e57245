// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// Metrics holds all Prometheus metrics for the agent. Each instance owns its
// registry so tests can build as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	// Cycle metrics
	CyclesTotal       *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	LastCycle         prometheus.Gauge
	ConsecutiveErrors prometheus.Gauge

	// Decision metrics
	DecisionsTotal      *prometheus.CounterVec
	RiskRejectionsTotal *prometheus.CounterVec
	OracleLatency       prometheus.Histogram

	// Execution metrics
	OrdersTotal    *prometheus.CounterVec
	TradesTotal    *prometheus.CounterVec
	ExitsTotal     *prometheus.CounterVec
	RealizedPnL    prometheus.Counter
	ExchangeErrors *prometheus.CounterVec

	// Portfolio metrics
	Equity        prometheus.Gauge
	Available     prometheus.Gauge
	Drawdown      prometheus.Gauge
	BreakerLevel  prometheus.Gauge
	OpenPositions prometheus.Gauge
}

// NewMetrics creates and registers all metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "futuresbot"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,

		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Trading cycles run, by status",
		}, []string{"status"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Trading cycle duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		LastCycle: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "last_completed_timestamp_seconds",
			Help:      "Unix time of the last completed cycle",
		}),
		ConsecutiveErrors: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "consecutive_errors",
			Help:      "Cycles failed in a row",
		}),

		DecisionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "decisions_total",
			Help:      "Oracle decisions by action and source",
		}, []string{"action", "source"}),
		RiskRejectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "rejections_total",
			Help:      "Entries vetoed by the risk gate, by check",
		}, []string{"check"}),
		OracleLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "latency_seconds",
			Help:      "Oracle round-trip latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		OrdersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "entries_total",
			Help:      "Entry attempts by side and result",
		}, []string{"side", "result"}),
		TradesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "closed_trades_total",
			Help:      "Closed trades by result (win|loss)",
		}, []string{"result"}),
		ExitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "exits_total",
			Help:      "Exits by kind (full, partial_60, partial_40, stale, stop, shutdown)",
		}, []string{"kind"}),
		RealizedPnL: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "realized_profit_usd_total",
			Help:      "Sum of positive realized PnL in USD",
		}),
		ExchangeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "errors_total",
			Help:      "Exchange errors by class (transient|reject|other)",
		}, []string{"class"}),

		Equity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "equity_usd",
			Help:      "Total account value in USD",
		}),
		Available: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "available_usd",
			Help:      "Available balance in USD",
		}),
		Drawdown: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "drawdown_ratio",
			Help:      "Drawdown from peak as a fraction",
		}),
		BreakerLevel: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "breaker_level",
			Help:      "Circuit breaker level (0 none to 4 halted)",
		}),
		OpenPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "open_positions",
			Help:      "Open positions in the ledger",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// RecordCycle records one finished cycle.
func (m *Metrics) RecordCycle(d time.Duration, err error, consecutive int) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.CyclesTotal.WithLabelValues(status).Inc()
	m.CycleDuration.Observe(d.Seconds())
	m.ConsecutiveErrors.Set(float64(consecutive))
	if err == nil {
		m.LastCycle.SetToCurrentTime()
	}
}

// RecordDecision counts an oracle decision.
func (m *Metrics) RecordDecision(d domain.Decision, latency time.Duration) {
	m.DecisionsTotal.WithLabelValues(string(d.Action), string(d.Source)).Inc()
	if latency > 0 {
		m.OracleLatency.Observe(latency.Seconds())
	}
}

// RecordRejection counts a risk-gate veto.
func (m *Metrics) RecordRejection(check string) {
	m.RiskRejectionsTotal.WithLabelValues(check).Inc()
}

// RecordEntry counts an entry attempt.
func (m *Metrics) RecordEntry(side domain.Side, err error) {
	result := "filled"
	if err != nil {
		result = "failed"
	}
	m.OrdersTotal.WithLabelValues(string(side), result).Inc()
}

// RecordExit counts an exit and its realized PnL.
func (m *Metrics) RecordExit(kind string, pnl float64, final bool) {
	m.ExitsTotal.WithLabelValues(kind).Inc()
	if pnl > 0 {
		m.RealizedPnL.Add(pnl)
	}
	if !final {
		return
	}
	if pnl > 0 {
		m.TradesTotal.WithLabelValues("win").Inc()
	} else {
		m.TradesTotal.WithLabelValues("loss").Inc()
	}
}

// RecordExchangeError classifies and counts an exchange failure.
func (m *Metrics) RecordExchangeError(err error) {
	switch {
	case domain.IsTransient(err):
		m.ExchangeErrors.WithLabelValues("transient").Inc()
	case domain.IsReject(err):
		m.ExchangeErrors.WithLabelValues("reject").Inc()
	default:
		m.ExchangeErrors.WithLabelValues("other").Inc()
	}
}

// RecordPortfolio updates the portfolio gauges.
func (m *Metrics) RecordPortfolio(s domain.PerformanceSnapshot) {
	m.Equity.Set(s.TotalValue)
	m.Available.Set(s.Available)
	m.Drawdown.Set(s.Drawdown)
	m.BreakerLevel.Set(float64(s.BreakerLevel))
	m.OpenPositions.Set(float64(s.OpenPositions))
}
