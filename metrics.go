package tpool

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports pool counters to prometheus. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Submitted prometheus.Counter
	Rejected  prometheus.Counter
	Completed prometheus.Counter
	Panicked  prometheus.Counter
	Exited    prometheus.Counter
	Busy      prometheus.Gauge
}

type jobOutcome int

const (
	jobCompleted jobOutcome = iota
	jobPanicked
	jobExited
)

func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "jobs_submitted_total",
			Help:      "Jobs accepted into the queue.",
		}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "jobs_rejected_total",
			Help:      "Jobs refused because the pool was shut down.",
		}),
		Completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "jobs_completed_total",
			Help:      "Jobs that returned normally.",
		}),
		Panicked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "jobs_panicked_total",
			Help:      "Jobs that panicked and were recovered by their worker.",
		}),
		Exited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "jobs_exited_total",
			Help:      "Jobs that ended their goroutine with runtime.Goexit.",
		}),
		Busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "workers_busy",
			Help:      "Workers currently executing a job.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Submitted, m.Rejected, m.Completed, m.Panicked, m.Exited, m.Busy} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register pool metrics")
		}
	}
	return m, nil
}

func (m *Metrics) submitted() {
	if m != nil {
		m.Submitted.Inc()
	}
}

func (m *Metrics) rejected() {
	if m != nil {
		m.Rejected.Inc()
	}
}

func (m *Metrics) started() {
	if m != nil {
		m.Busy.Inc()
	}
}

func (m *Metrics) finished(outcome jobOutcome) {
	if m == nil {
		return
	}
	m.Busy.Dec()
	switch outcome {
	case jobPanicked:
		m.Panicked.Inc()
	case jobExited:
		m.Exited.Inc()
	default:
		m.Completed.Inc()
	}
}
