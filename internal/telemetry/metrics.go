// Package telemetry exposes engine counters over Prometheus.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the engine's instrumentation surface. All methods are safe
// for concurrent use.
type Metrics struct {
	entries      *prometheus.CounterVec
	exits        *prometheus.CounterVec
	execFailures *prometheus.CounterVec
	ticksSkipped *prometheus.CounterVec
	vetoes       *prometheus.CounterVec

	bankroll  prometheus.Gauge
	openCount prometheus.Gauge
	dailyPnL  prometheus.Gauge
	paused    prometheus.Gauge
}

// NewMetrics registers the engine metrics on reg. Pass
// prometheus.NewRegistry() in tests to keep them isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		entries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "updownbot",
			Name:      "entries_total",
			Help:      "Confirmed entry fills by sizing tier.",
		}, []string{"tier"}),
		exits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "updownbot",
			Name:      "exits_total",
			Help:      "Position closes by reason.",
		}, []string{"reason"}),
		execFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "updownbot",
			Name:      "exec_failures_total",
			Help:      "Orders that did not verify as filled.",
		}, []string{"kind"}),
		ticksSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "updownbot",
			Name:      "ticks_skipped_total",
			Help:      "Loop ticks dropped because the previous one was still running.",
		}, []string{"loop"}),
		vetoes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "updownbot",
			Name:      "entry_vetoes_total",
			Help:      "Entries blocked by the market-structure gate.",
		}, []string{"reason"}),
		bankroll: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "updownbot",
			Name:      "bankroll",
			Help:      "Free bankroll in quote currency.",
		}),
		openCount: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "updownbot",
			Name:      "open_positions",
			Help:      "Currently open positions.",
		}),
		dailyPnL: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "updownbot",
			Name:      "daily_pnl",
			Help:      "Realized P&L for the current UTC day.",
		}),
		paused: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "updownbot",
			Name:      "entries_paused",
			Help:      "1 while the circuit breaker is suppressing entries.",
		}),
	}
}

func (m *Metrics) RecordEntry(tier string)    { m.entries.WithLabelValues(tier).Inc() }
func (m *Metrics) RecordExit(reason string)   { m.exits.WithLabelValues(reason).Inc() }
func (m *Metrics) RecordExecFailure(k string) { m.execFailures.WithLabelValues(k).Inc() }
func (m *Metrics) RecordTickSkipped(loop string) {
	m.ticksSkipped.WithLabelValues(loop).Inc()
}
func (m *Metrics) RecordVeto(reason string) { m.vetoes.WithLabelValues(reason).Inc() }

func (m *Metrics) SetBankroll(v float64) { m.bankroll.Set(v) }
func (m *Metrics) SetOpenCount(n int)    { m.openCount.Set(float64(n)) }
func (m *Metrics) SetDailyPnL(v float64) { m.dailyPnL.Set(v) }
func (m *Metrics) SetEntriesPaused(p bool) {
	if p {
		m.paused.Set(1)
		return
	}
	m.paused.Set(0)
}
