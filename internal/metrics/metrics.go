// Package metrics exposes job and supervisor activity as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/resticd/internal/config"
	"github.com/flemzord/resticd/internal/host"
	"github.com/flemzord/resticd/internal/jobs"
)

const namespace = "resticd"

var states = []host.State{
	host.StateIdle,
	host.StateLoading,
	host.StateRunning,
	host.StateDraining,
	host.StateStopped,
}

// Metrics records job and supervisor activity.
type Metrics struct {
	registry *prometheus.Registry

	queued       *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	runs         *prometheus.CounterVec
	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	queueDepth   prometheus.Gauge
	running      prometheus.Gauge
	lastSuccess  *prometheus.GaugeVec
	generations  prometheus.Counter
	jobs         prometheus.Gauge
	state        *prometheus.GaugeVec
}

var (
	_ jobs.Observer = (*Metrics)(nil)
	_ host.Observer = (*Metrics)(nil)
)

// New creates the metrics on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_queued_total",
			Help:      "Job runs accepted into the queue.",
		}, []string{"job", "source"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_rejected_total",
			Help:      "Job runs that could not be queued.",
		}, []string{"job", "source", "reason"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished job runs by status.",
		}, []string{"job", "status"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Finished job steps by status.",
		}, []string{"job", "step", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of executed job steps.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"job", "step"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Job runs waiting in the queue of the live generation.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_progress",
			Help:      "Job runs currently executing.",
		}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Finish time of the last run that did not fail.",
		}, []string{"job"}),
		generations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Configuration generations started.",
		}),
		jobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs",
			Help:      "Jobs in the live configuration.",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "supervisor_state",
			Help:      "1 for the current supervisor state, 0 otherwise.",
		}, []string{"state"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.queued, m.rejected, m.runs, m.steps, m.stepDuration,
		m.queueDepth, m.running, m.lastSuccess, m.generations, m.jobs, m.state,
	)
	m.StateChanged(host.StateIdle)
	return m
}

// Registry returns the registry holding every metric.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Queued implements jobs.Observer.
func (m *Metrics) Queued(item jobs.WorkItem) {
	m.queued.WithLabelValues(item.Name, item.Source).Inc()
	m.queueDepth.Inc()
}

// Rejected implements jobs.Observer.
func (m *Metrics) Rejected(name, source string, err error) {
	m.rejected.WithLabelValues(name, source, reason(err)).Inc()
}

// RunStarted implements jobs.Observer.
func (m *Metrics) RunStarted(*jobs.Run) {
	m.queueDepth.Dec()
	m.running.Inc()
}

// StepFinished implements jobs.Observer.
func (m *Metrics) StepFinished(run *jobs.Run, step jobs.StepResult) {
	m.steps.WithLabelValues(run.Job, string(step.Step), string(step.Status)).Inc()
	if step.Status != jobs.StatusSkipped && step.Status != jobs.StatusCancelled {
		m.stepDuration.WithLabelValues(run.Job, string(step.Step)).Observe(step.Duration.Seconds())
	}
}

// RunFinished implements jobs.Observer.
func (m *Metrics) RunFinished(run *jobs.Run) {
	m.running.Dec()
	m.runs.WithLabelValues(run.Job, string(run.Status)).Inc()
	if run.Status == jobs.StatusSucceeded || run.Status == jobs.StatusDegraded {
		m.lastSuccess.WithLabelValues(run.Job).Set(float64(run.FinishedAt.Unix()))
	}
}

// StateChanged implements host.Observer.
func (m *Metrics) StateChanged(state host.State) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(s.String()).Set(v)
	}
}

// GenerationStarted implements host.Observer.
func (m *Metrics) GenerationStarted(_ uint64, cfg *config.Config) {
	m.generations.Inc()
	// Items left in the previous queue were dropped with it.
	m.queueDepth.Set(0)
	m.jobs.Set(float64(len(cfg.Jobs)))
}

func reason(err error) string {
	switch {
	case errors.Is(err, jobs.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, jobs.ErrJobNotFound):
		return "not_found"
	case errors.Is(err, jobs.ErrShuttingDown):
		return "shutting_down"
	default:
		return "other"
	}
}
