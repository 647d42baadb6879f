package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grid-optimizer/internal/optimizer"
)

// Metrics holds the Prometheus collectors of the optimizer on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	SimulationRuns     *prometheus.CounterVec
	SimulationDuration prometheus.Histogram
	Optimizations      prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all collectors registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "grid_optimizer"
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SimulationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_runs_total",
			Help:      "Total number of backtest runs by acceptance outcome",
		}, []string{"outcome"}),
		SimulationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulation_run_seconds",
			Help:      "Duration of a single backtest run in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		Optimizations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimizations_total",
			Help:      "Total number of completed parameter searches",
		}),
	}
	m.registry.MustRegister(m.SimulationRuns, m.SimulationDuration, m.Optimizations)
	return m
}

// ObserveRun records the outcome and duration of one backtest run.
func (m *Metrics) ObserveRun(outcome optimizer.Outcome, elapsed time.Duration) {
	m.SimulationRuns.WithLabelValues(string(outcome)).Inc()
	m.SimulationDuration.Observe(elapsed.Seconds())
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
