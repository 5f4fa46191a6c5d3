package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exports engine metrics to Prometheus. Each Recorder owns its
// registry so tests can build independent instances.
type Recorder struct {
	registry *prometheus.Registry

	eventsTotal   *prometheus.CounterVec
	signalsTotal  *prometheus.CounterVec
	ordersTotal   *prometheus.CounterVec
	failuresTotal *prometheus.CounterVec
	rsi           *prometheus.GaugeVec
	cycleDuration prometheus.Histogram
	running       prometheus.Gauge
}

// NewRecorder creates a recorder with Go runtime collectors attached.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		eventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_core_events_total",
				Help: "Lifecycle events published on the internal bus",
			},
			[]string{"event"},
		),
		signalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_core_signals_total",
				Help: "Entry signals raised by the scheduler",
			},
			[]string{"symbol", "side"},
		),
		ordersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_core_orders_total",
				Help: "Orders by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		failuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_core_symbol_failures_total",
				Help: "Per-symbol processing failures",
			},
			[]string{"symbol"},
		),
		rsi: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signal_core_rsi",
				Help: "Last computed RSI value",
			},
			[]string{"symbol", "timeframe"},
		),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "signal_core_cycle_duration_seconds",
			Help:    "Duration of one scheduler pass",
			Buckets: prometheus.DefBuckets,
		}),
		running: f.NewGauge(prometheus.GaugeOpts{
			Name: "signal_core_running",
			Help: "1 when the scheduler loop is active",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) RecordEvent(event string) {
	r.eventsTotal.WithLabelValues(event).Inc()
}

func (r *Recorder) RecordSignal(symbol, side string) {
	r.signalsTotal.WithLabelValues(symbol, side).Inc()
}

func (r *Recorder) RecordOrder(kind, outcome string) {
	r.ordersTotal.WithLabelValues(kind, outcome).Inc()
}

func (r *Recorder) RecordFailure(symbol string) {
	r.failuresTotal.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordRSI(symbol, timeframe string, value float64) {
	r.rsi.WithLabelValues(symbol, timeframe).Set(value)
}

func (r *Recorder) RecordCycle(seconds float64) {
	r.cycleDuration.Observe(seconds)
}

// SetRunning mirrors the scheduler run state.
func (r *Recorder) SetRunning(running bool) {
	if running {
		r.running.Set(1)
		return
	}
	r.running.Set(0)
}
