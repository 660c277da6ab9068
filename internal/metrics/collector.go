// Package metrics exposes Prometheus instrumentation for the write pipeline.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds pipeline metrics.
type Collector struct {
	gateDecisions       *prometheus.CounterVec
	persistenceOps      *prometheus.CounterVec
	persistenceDuration *prometheus.HistogramVec
	tasksInFlight       prometheus.Gauge
	tasksAbandoned      prometheus.Counter
	rateLimitFailOpen   prometheus.Counter
	episodesScheduled   prometheus.Counter
}

// NewCollector registers the metrics on reg. A nil reg uses the default registerer.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		gateDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_decisions_total",
				Help:      "Write gate decisions by operation and action",
			},
			[]string{"operation", "action"},
		),
		persistenceOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "persistence_operations_total",
				Help:      "Persistence operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		persistenceDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "persistence_duration_seconds",
				Help:      "Persistence operation duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation"},
		),
		tasksInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_tasks_in_flight",
			Help:      "Background tasks submitted and not yet finished",
		}),
		tasksAbandoned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_tasks_abandoned_total",
			Help:      "Background tasks abandoned at drain",
		}),
		rateLimitFailOpen: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_fail_open_total",
			Help:      "Writes allowed because the counter store was unreachable",
		}),
		episodesScheduled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "episodes_scheduled_total",
			Help:      "Episode summaries scheduled",
		}),
	}
}

// RecordGateDecision counts a gate outcome.
func (c *Collector) RecordGateDecision(operation, action string) {
	if c == nil {
		return
	}
	c.gateDecisions.WithLabelValues(operation, action).Inc()
}

// RecordPersistence counts a persistence outcome and observes its duration.
func (c *Collector) RecordPersistence(operation, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.persistenceOps.WithLabelValues(operation, outcome).Inc()
	c.persistenceDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// TaskStarted increments the in-flight gauge.
func (c *Collector) TaskStarted() {
	if c == nil {
		return
	}
	c.tasksInFlight.Inc()
}

// TaskFinished decrements the in-flight gauge.
func (c *Collector) TaskFinished() {
	if c == nil {
		return
	}
	c.tasksInFlight.Dec()
}

// TasksAbandoned counts tasks lost at drain.
func (c *Collector) TasksAbandoned(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.tasksAbandoned.Add(float64(n))
}

// RateLimitFailedOpen counts a fail-open decision.
func (c *Collector) RateLimitFailedOpen() {
	if c == nil {
		return
	}
	c.rateLimitFailOpen.Inc()
}

// EpisodeScheduled counts a scheduled episode summary.
func (c *Collector) EpisodeScheduled() {
	if c == nil {
		return
	}
	c.episodesScheduled.Inc()
}
