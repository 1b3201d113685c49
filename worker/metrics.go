package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Job outcomes used as the "outcome" label of the jobs counter.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomePanic   = "panic"
)

// Metrics holds the Prometheus collectors of a pool. It implements
// prometheus.Collector, so it can be registered as one unit:
//
//	m := worker.NewMetrics("gantry")
//	prometheus.MustRegister(m)
//	pool, err := worker.NewPool(8, worker.WithMetrics(m))
type Metrics struct {
	queue    prometheus.Gauge
	running  prometheus.Gauge
	jobs     *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics creates the pool collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		queue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queued_jobs",
			Help:      "Jobs submitted and waiting for a free worker.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "running_jobs",
			Help:      "Jobs currently running on a worker.",
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Completed jobs by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Time spent running jobs.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.queue.Describe(ch)
	m.running.Describe(ch)
	m.jobs.Describe(ch)
	m.duration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.queue.Collect(ch)
	m.running.Collect(ch)
	m.jobs.Collect(ch)
	m.duration.Collect(ch)
}

func (m *Metrics) queued() {
	if m != nil {
		m.queue.Inc()
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.queue.Dec()
	}
}

func (m *Metrics) started() {
	if m != nil {
		m.queue.Dec()
		m.running.Inc()
	}
}

func (m *Metrics) finished(outcome string, elapsed time.Duration) {
	if m != nil {
		m.running.Dec()
		m.jobs.WithLabelValues(outcome).Inc()
		m.duration.Observe(elapsed.Seconds())
	}
}
