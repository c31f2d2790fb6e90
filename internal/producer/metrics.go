package producer

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "pagefeed_producer"

// Run outcomes used as the "outcome" label of the runs counter.
const (
	OutcomeAssigned = "assigned"
	OutcomeIdle     = "idle"
	OutcomeFailed   = "failed"
)

// Collector is a prometheus.Collector that collects metrics about assign
// runs.
type Collector struct {
	runs             *prometheus.CounterVec
	runDuration      prometheus.Histogram
	entitiesAssigned prometheus.Counter
	entitiesAppended prometheus.Counter
	pagesCreated     prometheus.Counter
	rollbacks        prometheus.Counter
	rotations        prometheus.Counter
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "runs_total",
				Help:      "The number of assign runs by outcome.",
			}, []string{"outcome"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "run_duration_seconds",
				Help:      "The time taken by one assign run.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
		),
		entitiesAssigned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "entities_assigned_total",
				Help:      "The number of entities attached to pages.",
			},
		),
		entitiesAppended: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "entities_appended_total",
				Help:      "The number of entities appended by writers.",
			},
		),
		pagesCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "pages_created_total",
				Help:      "The number of pages created.",
			},
		),
		rollbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rollbacks_total",
				Help:      "The number of interrupted commits rolled back.",
			},
		),
		rotations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "generation_rotations_total",
				Help:      "The number of generation resets.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.runs.Describe(ch)
	c.runDuration.Describe(ch)
	c.entitiesAssigned.Describe(ch)
	c.entitiesAppended.Describe(ch)
	c.pagesCreated.Describe(ch)
	c.rollbacks.Describe(ch)
	c.rotations.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.runs.Collect(ch)
	c.runDuration.Collect(ch)
	c.entitiesAssigned.Collect(ch)
	c.entitiesAppended.Collect(ch)
	c.pagesCreated.Collect(ch)
	c.rollbacks.Collect(ch)
	c.rotations.Collect(ch)
}
