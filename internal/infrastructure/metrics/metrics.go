package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tracking-cog/internal/application/port/output"
	"tracking-cog/internal/domain/entity"
)

const namespace = "cog"

var _ output.MetricsPort = (*Collector)(nil)

type Collector struct {
	stepsInFlight *prometheus.GaugeVec
	stepsTotal    *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	streamsOpen   prometheus.Gauge
	poolSessions  *prometheus.GaugeVec
	poolWait      prometheus.Histogram
}

// New registers the collectors on reg. Tests pass prometheus.NewRegistry()
// so that each collector set is isolated.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		stepsInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "steps_in_flight",
			Help:      "Steps currently executing, by step id.",
		}, []string{"step"}),
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Finished steps by step id and outcome.",
		}, []string{"step", "outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Step execution time including pool wait.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"step"}),
		streamsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_open",
			Help:      "Open duplex step streams.",
		}),
		poolSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_sessions",
			Help:      "Browser sessions in the page pool by state.",
		}, []string{"state"}),
		poolWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pool_wait_seconds",
			Help:      "Time spent waiting for a free page.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(c.stepsInFlight, c.stepsTotal, c.stepDuration, c.streamsOpen, c.poolSessions, c.poolWait)
	return c
}

func (c *Collector) StepStarted(stepID string) {
	c.stepsInFlight.WithLabelValues(stepID).Inc()
}

func (c *Collector) StepFinished(stepID string, outcome entity.Outcome, elapsed time.Duration) {
	c.stepsInFlight.WithLabelValues(stepID).Dec()
	c.stepsTotal.WithLabelValues(stepID, string(outcome)).Inc()
	c.stepDuration.WithLabelValues(stepID).Observe(elapsed.Seconds())
}

func (c *Collector) StreamOpened() {
	c.streamsOpen.Inc()
}

func (c *Collector) StreamClosed() {
	c.streamsOpen.Dec()
}

func (c *Collector) PoolUsage(inUse, idle int) {
	c.poolSessions.WithLabelValues("in_use").Set(float64(inUse))
	c.poolSessions.WithLabelValues("idle").Set(float64(idle))
}

func (c *Collector) PoolWait(elapsed time.Duration) {
	c.poolWait.Observe(elapsed.Seconds())
}
