package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jdziat/simple-cron-jobs/pkg/command"
	"github.com/jdziat/simple-cron-jobs/pkg/core"
	"github.com/jdziat/simple-cron-jobs/pkg/depgraph"
	"github.com/jdziat/simple-cron-jobs/pkg/execution"
	"github.com/jdziat/simple-cron-jobs/pkg/retry"
	"github.com/jdziat/simple-cron-jobs/pkg/schedule"
	"github.com/jdziat/simple-cron-jobs/pkg/worker"
)

// Scheduler ties the job store, schedule rules, dependency graph, worker
// pool, execution engine and retry coordinator together, and runs the
// periodic loop that drives them.
type Scheduler struct {
	store    core.Storage
	rules    *schedule.Engine
	graph    *depgraph.Graph
	pool     *worker.Pool
	commands *command.Registry
	engine   *execution.Engine
	retries  *retry.Coordinator
	config   Config
	logger   *slog.Logger

	busMu sync.RWMutex
	subs  []chan core.Event

	// jobMu orders job mutations so the store and the rule set agree.
	jobMu sync.Mutex

	stateMu   sync.Mutex
	running   bool
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	inflight sync.WaitGroup
}

// New creates a stopped scheduler over store.
func New(store core.Storage, opts ...Option) *Scheduler {
	config := defaultConfig()
	for _, opt := range opts {
		opt.ApplyScheduler(&config)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Commands == nil {
		config.Commands = command.NewRegistry()
	}
	if config.TickInterval >= config.Tolerance {
		logger.Warn("tick interval is not shorter than the fire tolerance; fires may be missed",
			"tick_interval", config.TickInterval, "tolerance", config.Tolerance)
	}

	s := &Scheduler{
		store:    store,
		commands: config.Commands,
		config:   config,
		logger:   logger.With("component", "scheduler"),
	}

	s.rules = schedule.NewEngine(
		schedule.WithLocation(config.Location),
		schedule.WithPollWindow(config.PollWindow),
		schedule.WithTolerance(config.Tolerance),
	)
	s.graph = depgraph.New(store,
		depgraph.WithFreshness(config.Freshness),
		depgraph.WithClock(config.Clock),
	)

	poolOpts := []worker.PoolOption{
		worker.WithHealthTimeout(config.HealthTimeout),
		worker.WithClock(config.Clock),
		worker.WithEmitter(s),
		worker.WithLogger(logger.With("component", "worker_pool")),
	}
	if config.Workers != nil {
		poolOpts = append(poolOpts, worker.WithWorkers(config.Workers...))
	}
	s.pool = worker.NewPool(poolOpts...)

	engineOpts := []execution.Option{
		execution.WithTimeout(config.ExecutionTimeout),
		execution.WithClock(config.Clock),
		execution.WithEmitter(s),
		execution.WithLogger(logger.With("component", "execution")),
	}
	if config.StorageRetry != nil {
		engineOpts = append(engineOpts, execution.WithStorageRetry(*config.StorageRetry))
	}
	s.engine = execution.NewEngine(store, s.pool, s.commands, engineOpts...)

	s.retries = retry.NewCoordinator(store,
		retry.WithCeiling(config.RetryCeiling),
		retry.WithClock(config.Clock),
		retry.WithEmitter(s),
		retry.WithLogger(logger.With("component", "retry")),
	)
	return s
}

// Start loads the enabled jobs' schedules and launches the tick, retry and
// health tasks. The tasks stop when Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.running {
		return core.ErrAlreadyRunning
	}
	if err := s.loadRules(ctx); err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error { return s.every(gctx, "tick", s.config.TickInterval, func(ctx context.Context) { s.Tick(ctx) }) })
	g.Go(func() error { return s.every(gctx, "retry", s.config.RetryInterval, func(ctx context.Context) { s.DrainRetries(ctx) }) })
	g.Go(func() error { return s.every(gctx, "health", s.config.HealthInterval, func(ctx context.Context) { s.CheckWorkers(ctx) }) })

	done := make(chan struct{})
	go func() {
		if err := g.Wait(); err != nil {
			s.logger.Error("scheduler loop exited", "error", err)
		}
		close(done)
	}()

	s.cancel = cancel
	s.done = done
	s.running = true
	s.startedAt = s.now()
	s.logger.Info("scheduler started",
		"jobs", s.rules.Len(),
		"tick_interval", s.config.TickInterval,
		"retry_interval", s.config.RetryInterval,
		"health_interval", s.config.HealthInterval)
	return nil
}

// Stop cancels the periodic tasks as a group, then waits for executions
// already in flight to finish. Queued retries are dropped.
func (s *Scheduler) Stop() error {
	s.stateMu.Lock()
	if !s.running {
		s.stateMu.Unlock()
		return core.ErrNotRunning
	}
	s.cancel()
	<-s.done
	s.running = false
	s.cancel = nil
	s.done = nil
	s.stateMu.Unlock()

	s.inflight.Wait()
	if n := s.retries.Pending(); n > 0 {
		s.logger.Info("dropping queued retries", "count", n)
	}
	s.retries.Clear()
	s.logger.Info("scheduler stopped")
	return nil
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.running
}

// Wait blocks until executions started by the loop have finished.
func (s *Scheduler) Wait() {
	s.inflight.Wait()
}

func (s *Scheduler) every(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.safely(name, func() { fn(ctx) })
		}
	}
}

// safely runs fn, logging instead of propagating a panic.
func (s *Scheduler) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered panic", "task", what, "panic", r)
		}
	}()
	fn()
}

func (s *Scheduler) loadRules(ctx context.Context) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if !job.Enabled {
			s.rules.Remove(job.ID)
			continue
		}
		if err := s.rules.Add(job.ID, job.Schedule); err != nil {
			s.logger.Warn("skipping job with invalid schedule", "job_id", job.ID, "schedule", job.Schedule, "error", err)
		}
	}
	return nil
}

// Tick evaluates due jobs once and dispatches those whose dependencies are
// met. Jobs with unmet dependencies get a waiting execution. It returns the
// number of executions dispatched.
func (s *Scheduler) Tick(ctx context.Context) int {
	now := s.now()
	dispatched := 0
	for _, fire := range s.rules.Due(now) {
		s.safely("tick:"+fire.JobID, func() {
			if s.processFire(ctx, fire, now) {
				dispatched++
			}
		})
	}
	return dispatched
}

func (s *Scheduler) processFire(ctx context.Context, fire schedule.Fire, now time.Time) bool {
	logger := s.logger.With("job_id", fire.JobID)

	job, err := s.store.GetJob(ctx, fire.JobID)
	if err != nil {
		logger.Error("failed to load due job", "error", err)
		return false
	}
	if job == nil || !job.Enabled {
		s.rules.Remove(fire.JobID)
		return false
	}

	exec := core.NewExecution(job, fire.At, now)
	if err := s.store.CreateExecution(ctx, exec); err != nil {
		logger.Error("failed to create execution", "error", err)
		return false
	}

	ok, err := s.graph.CanExecute(ctx, job.ID)
	if err != nil {
		logger.Error("dependency check failed", "error", err)
		ok = false
	}
	if !ok {
		if err := exec.Wait(now); err == nil {
			if err := s.store.SaveExecution(ctx, exec); err != nil {
				logger.Error("failed to record waiting execution", "execution_id", exec.ID, "error", err)
			}
		}
		logger.Info("dependencies not satisfied", "execution_id", exec.ID)
		s.Emit(&core.ExecutionWaiting{Execution: exec.Clone(), Timestamp: now})
		return false
	}

	s.dispatch(ctx, exec, job)
	return true
}

// dispatch runs one attempt in its own goroutine. Stop does not cancel it.
func (s *Scheduler) dispatch(ctx context.Context, exec *core.Execution, job *core.Job) {
	runCtx := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.safely("execution:"+exec.ID, func() { s.attempt(runCtx, exec, job) })
	}()
}

// attempt runs exec and hands a failure to the retry coordinator.
func (s *Scheduler) attempt(ctx context.Context, exec *core.Execution, job *core.Job) {
	err := s.engine.Run(ctx, exec, job)
	if err == nil || exec.Status != core.StatusFailed {
		if err != nil {
			s.logger.Error("execution aborted", "execution_id", exec.ID, "status", exec.Status, "error", err)
		}
		return
	}
	if _, rerr := s.retries.Schedule(ctx, exec, job, err); rerr != nil {
		s.logger.Error("failed to schedule retry", "execution_id", exec.ID, "error", rerr)
	}
}

// DrainRetries dispatches every retry that is due. Retries of jobs that have
// since been deleted or disabled are failed instead. It returns the number
// of executions dispatched.
func (s *Scheduler) DrainRetries(ctx context.Context) int {
	now := s.now()
	dispatched := 0
	for _, entry := range s.retries.Drain(now) {
		s.safely("retry:"+entry.ExecutionID, func() {
			if s.processRetry(ctx, entry, now) {
				dispatched++
			}
		})
	}
	return dispatched
}

func (s *Scheduler) processRetry(ctx context.Context, entry retry.Entry, now time.Time) bool {
	logger := s.logger.With("execution_id", entry.ExecutionID, "job_id", entry.JobID)

	exec, err := s.store.GetExecution(ctx, entry.ExecutionID)
	if err != nil {
		logger.Error("failed to load retrying execution", "error", err)
		return false
	}
	if exec == nil || exec.Status != core.StatusRetrying {
		return false
	}

	job, err := s.store.GetJob(ctx, entry.JobID)
	if err != nil {
		logger.Error("failed to load job for retry", "error", err)
		return false
	}
	if job == nil || !job.Enabled {
		reason := "job deleted before retry"
		if job != nil {
			reason = "job disabled before retry"
		}
		if err := exec.Fail(reason, now); err == nil {
			if err := s.store.SaveExecution(ctx, exec); err != nil {
				logger.Error("failed to record abandoned retry", "error", err)
			}
			s.Emit(&core.ExecutionFailed{Execution: exec.Clone(), Error: fmt.Errorf("%s", reason), Timestamp: now})
		}
		return false
	}

	logger.Info("dispatching retry", "attempt", exec.RetryCount)
	s.dispatch(ctx, exec, job)
	return true
}

// CheckWorkers runs one health check and, when retention is configured,
// prunes old finished executions.
func (s *Scheduler) CheckWorkers(ctx context.Context) []string {
	now := s.now()
	unhealthy := s.pool.CheckHealth(now)

	if s.config.Retention > 0 {
		pruned, err := s.store.PruneExecutions(ctx, now.Add(-s.config.Retention))
		if err != nil {
			s.logger.Error("failed to prune executions", "error", err)
		} else if pruned > 0 {
			s.logger.Info("pruned executions", "count", pruned)
		}
	}
	return unhealthy
}

func (s *Scheduler) now() time.Time {
	return s.config.Clock()
}
