// Package metrics exports scheduler activity as Prometheus metrics.
//
// A Collector counts execution events as a core.Emitter listener and
// refreshes its gauges from periodic SystemStatus snapshots.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jdziat/simple-cron-jobs/pkg/core"
	"github.com/jdziat/simple-cron-jobs/pkg/scheduler"
)

// Namespace prefixes every metric name.
const Namespace = "jobscheduler"

// DefaultSnapshotInterval is how often Run refreshes the gauges.
const DefaultSnapshotInterval = 15 * time.Second

// StatusSource provides the point-in-time view the gauges are built from.
type StatusSource interface {
	SystemStatus(ctx context.Context) (*scheduler.SystemStatus, error)
}

// StatusSourceFunc adapts a function to StatusSource.
type StatusSourceFunc func(ctx context.Context) (*scheduler.SystemStatus, error)

func (f StatusSourceFunc) SystemStatus(ctx context.Context) (*scheduler.SystemStatus, error) {
	return f(ctx)
}

// Collector owns a private registry so tests and embedders do not collide
// with the global one.
type Collector struct {
	registry *prometheus.Registry
	source   StatusSource
	interval time.Duration
	logger   *slog.Logger

	started   *prometheus.CounterVec
	completed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	retried   *prometheus.CounterVec
	waiting   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	health    *prometheus.CounterVec

	running        prometheus.Gauge
	jobs           *prometheus.GaugeVec
	executions     *prometheus.GaugeVec
	workerLoad     *prometheus.GaugeVec
	workerCapacity *prometheus.GaugeVec
	workersHealthy prometheus.Gauge
	pendingRetries prometheus.Gauge
}

// Option configures a Collector.
type Option interface {
	apply(*Collector)
}

type optionFunc func(*Collector)

func (f optionFunc) apply(c *Collector) { f(c) }

// WithSnapshotInterval sets how often Run refreshes the gauges.
func WithSnapshotInterval(d time.Duration) Option {
	return optionFunc(func(c *Collector) {
		if d > 0 {
			c.interval = d
		}
	})
}

// WithLogger sets the logger used for snapshot failures.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	})
}

// NewCollector creates a collector whose gauges read from source. source may
// be nil, in which case only event counters are exported.
func NewCollector(source StatusSource, opts ...Option) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		source:   source,
		interval: DefaultSnapshotInterval,
		logger:   slog.Default(),

		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "executions_started_total",
			Help: "Execution attempts started, by job.",
		}, []string{"job"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "executions_completed_total",
			Help: "Executions completed successfully, by job.",
		}, []string{"job"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "executions_failed_total",
			Help: "Executions that failed permanently, by job.",
		}, []string{"job"}),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "executions_retried_total",
			Help: "Failed executions queued for another attempt, by job.",
		}, []string{"job"}),
		waiting: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "executions_waiting_total",
			Help: "Due executions held back by unmet dependencies, by job.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace, Name: "execution_duration_seconds",
			Help:    "Duration of successful executions.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}, []string{"job"}),
		health: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "worker_health_changes_total",
			Help: "Worker health transitions, by resulting state.",
		}, []string{"health"}),

		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Name: "running",
			Help: "1 while the scheduler loop is running.",
		}),
		jobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace, Name: "jobs",
			Help: "Registered jobs, by priority.",
		}, []string{"priority"}),
		executions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace, Name: "executions",
			Help: "Stored executions, by status.",
		}, []string{"status"}),
		workerLoad: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace, Name: "worker_load",
			Help: "Executions currently assigned to each worker.",
		}, []string{"worker"}),
		workerCapacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace, Name: "worker_capacity",
			Help: "Capacity of each worker.",
		}, []string{"worker"}),
		workersHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Name: "workers_healthy",
			Help: "Workers currently healthy.",
		}),
		pendingRetries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Name: "pending_retries",
			Help: "Retries waiting in the queue.",
		}),
	}
	for _, opt := range opts {
		opt.apply(c)
	}

	c.registry.MustRegister(
		c.started, c.completed, c.failed, c.retried, c.waiting, c.duration, c.health,
		c.running, c.jobs, c.executions, c.workerLoad, c.workerCapacity,
		c.workersHealthy, c.pendingRetries,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Emit updates the event counters. It never blocks.
func (c *Collector) Emit(e core.Event) {
	switch ev := e.(type) {
	case *core.ExecutionStarted:
		c.started.WithLabelValues(ev.Execution.JobID).Inc()
	case *core.ExecutionCompleted:
		c.completed.WithLabelValues(ev.Execution.JobID).Inc()
		c.duration.WithLabelValues(ev.Execution.JobID).Observe(ev.Duration.Seconds())
	case *core.ExecutionFailed:
		c.failed.WithLabelValues(ev.Execution.JobID).Inc()
	case *core.ExecutionRetrying:
		c.retried.WithLabelValues(ev.Execution.JobID).Inc()
	case *core.ExecutionWaiting:
		c.waiting.WithLabelValues(ev.Execution.JobID).Inc()
	case *core.WorkerHealthChanged:
		c.health.WithLabelValues(string(ev.Health)).Inc()
	}
}

// Snapshot refreshes every gauge from the status source.
func (c *Collector) Snapshot(ctx context.Context) error {
	if c.source == nil {
		return nil
	}
	st, err := c.source.SystemStatus(ctx)
	if err != nil {
		return err
	}

	if st.Running {
		c.running.Set(1)
	} else {
		c.running.Set(0)
	}
	for _, p := range core.Priorities {
		c.jobs.WithLabelValues(string(p)).Set(float64(st.Jobs.ByPriority[p]))
	}
	for _, s := range core.ExecutionStatuses {
		c.executions.WithLabelValues(string(s)).Set(float64(st.Executions[s]))
	}

	// Deregistered workers must not linger.
	c.workerLoad.Reset()
	c.workerCapacity.Reset()
	for _, w := range st.Workers.Workers {
		c.workerLoad.WithLabelValues(w.ID).Set(float64(w.CurrentLoad))
		c.workerCapacity.WithLabelValues(w.ID).Set(float64(w.Capacity))
	}
	c.workersHealthy.Set(float64(st.Workers.HealthyWorkers))
	c.pendingRetries.Set(float64(st.PendingRetries))
	return nil
}

// Run snapshots immediately and then on every interval until ctx is done.
func (c *Collector) Run(ctx context.Context) {
	c.snapshot(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.snapshot(ctx)
		}
	}
}

func (c *Collector) snapshot(ctx context.Context) {
	if err := c.Snapshot(ctx); err != nil && ctx.Err() == nil {
		c.logger.Warn("metrics snapshot failed", "error", err)
	}
}

var _ core.Emitter = (*Collector)(nil)
