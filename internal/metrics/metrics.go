package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	backtestsTotal   *prometheus.CounterVec
	backtestDuration prometheus.Histogram
	tradesSimulated  prometheus.Counter
	trialsTotal      *prometheus.CounterVec
	trialDuration    prometheus.Histogram
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		backtestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hindcast_backtests_total",
				Help: "Total number of simulation runs",
			},
			[]string{"status"},
		),
		backtestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hindcast_backtest_duration_seconds",
				Help:    "Simulation run duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
		),
		tradesSimulated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hindcast_trades_simulated_total",
				Help: "Total number of round-trip trades simulated",
			},
		),
		trialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hindcast_optimizer_trials_total",
				Help: "Total number of optimizer trials",
			},
			[]string{"status"},
		),
		trialDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hindcast_trial_duration_seconds",
				Help:    "Optimizer trial duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
		),
	}

	reg.MustRegister(r.backtestsTotal)
	reg.MustRegister(r.backtestDuration)
	reg.MustRegister(r.tradesSimulated)
	reg.MustRegister(r.trialsTotal)
	reg.MustRegister(r.trialDuration)

	return r
}

// RecordBacktest records a simulation run completion.
func (r *Registry) RecordBacktest(status string, duration float64) {
	if r == nil {
		return
	}
	r.backtestsTotal.WithLabelValues(status).Inc()
	r.backtestDuration.Observe(duration)
}

// RecordTrades adds simulated round trips to the trade counter.
func (r *Registry) RecordTrades(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.tradesSimulated.Add(float64(n))
}

// RecordTrial records one optimizer trial. Implements backtest.Recorder.
func (r *Registry) RecordTrial(status string, duration float64) {
	if r == nil {
		return
	}
	r.trialsTotal.WithLabelValues(status).Inc()
	r.trialDuration.Observe(duration)
}
