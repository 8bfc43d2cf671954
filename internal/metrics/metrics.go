package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exposes engine activity to Prometheus. A nil *Recorder is a no-op.
type Recorder struct {
	registry      *prometheus.Registry
	ticks         *prometheus.CounterVec
	tickDuration  prometheus.Histogram
	predictions   *prometheus.CounterVec
	fills         *prometheus.CounterVec
	fetchFailures *prometheus.CounterVec
	cash          prometheus.Gauge
	equity        prometheus.Gauge
	openPositions prometheus.Gauge
	paused        prometheus.Gauge
}

// New registers collectors on a fresh registry so tests and multiple
// engines never collide on the global one.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigtrade_ticks_total",
				Help: "Engine ticks by outcome",
			},
			[]string{"outcome"},
		),
		tickDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sigtrade_tick_duration_seconds",
				Help:    "Duration of a full scan-rank-execute tick",
				Buckets: prometheus.DefBuckets,
			},
		),
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigtrade_predictions_total",
				Help: "Predictions by symbol and signal",
			},
			[]string{"symbol", "signal"},
		),
		fills: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigtrade_fills_total",
				Help: "Simulated fills by side and reason",
			},
			[]string{"side", "reason"},
		),
		fetchFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigtrade_symbol_failures_total",
				Help: "Symbols skipped in a tick by stage",
			},
			[]string{"symbol", "stage"},
		),
		cash: f.NewGauge(prometheus.GaugeOpts{
			Name: "sigtrade_cash",
			Help: "Cash balance after the last tick",
		}),
		equity: f.NewGauge(prometheus.GaugeOpts{
			Name: "sigtrade_equity",
			Help: "Equity after the last tick",
		}),
		openPositions: f.NewGauge(prometheus.GaugeOpts{
			Name: "sigtrade_open_positions",
			Help: "Number of LONG positions",
		}),
		paused: f.NewGauge(prometheus.GaugeOpts{
			Name: "sigtrade_paused",
			Help: "1 when the engine is paused",
		}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) RecordTick(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.ticks.WithLabelValues(outcome).Inc()
	r.tickDuration.Observe(d.Seconds())
}

func (r *Recorder) RecordPrediction(symbol, signal string) {
	if r == nil {
		return
	}
	r.predictions.WithLabelValues(symbol, signal).Inc()
}

func (r *Recorder) RecordFill(side, reason string) {
	if r == nil {
		return
	}
	r.fills.WithLabelValues(side, reason).Inc()
}

func (r *Recorder) RecordSymbolFailure(symbol, stage string) {
	if r == nil {
		return
	}
	r.fetchFailures.WithLabelValues(symbol, stage).Inc()
}

func (r *Recorder) RecordLedger(cash, equity float64, open int) {
	if r == nil {
		return
	}
	r.cash.Set(cash)
	r.equity.Set(equity)
	r.openPositions.Set(float64(open))
}

func (r *Recorder) RecordPaused(paused bool) {
	if r == nil {
		return
	}
	if paused {
		r.paused.Set(1)
		return
	}
	r.paused.Set(0)
}
