package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jdziat/simple-cron-jobs/pkg/command"
	"github.com/jdziat/simple-cron-jobs/pkg/core"
	"github.com/jdziat/simple-cron-jobs/pkg/depgraph"
	"github.com/jdziat/simple-cron-jobs/pkg/retry"
	"github.com/jdziat/simple-cron-jobs/pkg/schedule"
	"github.com/jdziat/simple-cron-jobs/pkg/worker"
)

// DefaultExecutionLimit is used when a listing is asked for zero or fewer rows.
const DefaultExecutionLimit = 50

// recentPerJob is how many executions GetJobStatus includes.
const recentPerJob = 5

// upcomingFires is how many next fires SystemStatus includes.
const upcomingFires = 10

// JobStatus is the detailed view of one job.
type JobStatus struct {
	Job              *core.Job               `json:"job"`
	NextFireTime     *time.Time              `json:"nextFireTime,omitempty"`
	CanExecute       bool                    `json:"canExecute"`
	RecentExecutions []*core.Execution       `json:"recentExecutions"`
	Dependencies     *depgraph.Summary       `json:"dependencySummary"`
	DependencyErrors []*core.DependencyError `json:"dependencyErrors,omitempty"`
}

// JobCounts summarizes the job store.
type JobCounts struct {
	Total      int                     `json:"total"`
	Enabled    int                     `json:"enabled"`
	ByPriority map[core.Priority]int64 `json:"byPriority"`
}

// SystemStatus is a point-in-time view of the whole scheduler.
type SystemStatus struct {
	Running          bool                           `json:"running"`
	StartedAt        *time.Time                     `json:"startedAt,omitempty"`
	Uptime           time.Duration                  `json:"uptime"`
	Jobs             JobCounts                      `json:"jobs"`
	Executions       map[core.ExecutionStatus]int64 `json:"executions"`
	Workers          worker.Utilization             `json:"workers"`
	PendingRetries   int                            `json:"pendingRetries"`
	Retries          []retry.Entry                  `json:"retries"`
	Upcoming         []schedule.Fire                `json:"upcoming"`
	DependencyErrors []*core.DependencyError        `json:"dependencyErrors"`
	Commands         []string                       `json:"commands"`
}

// GetJobStatus returns the job with its next fire, dependency state and most
// recent executions.
func (s *Scheduler) GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, core.NotFound("job", jobID)
	}

	status := &JobStatus{Job: job}
	if next, ok := s.rules.NextFire(jobID, s.now()); ok && !next.IsZero() {
		status.NextFireTime = &next
	}
	if status.CanExecute, err = s.graph.CanExecute(ctx, jobID); err != nil {
		return nil, err
	}
	if status.Dependencies, err = s.graph.Summary(ctx, jobID); err != nil {
		return nil, err
	}
	if status.DependencyErrors, err = s.graph.Check(ctx, jobID); err != nil {
		return nil, err
	}
	if status.RecentExecutions, err = s.store.ListExecutionsByJob(ctx, jobID, recentPerJob); err != nil {
		return nil, err
	}
	return status, nil
}

// ExecuteJobNow runs one attempt of the job immediately and waits for it.
// Unmet dependencies are an error here rather than a wait. A failed attempt
// is not retried; the failed execution is returned together with the error.
// Cancelling ctx does not cancel the attempt once it has started.
func (s *Scheduler) ExecuteJobNow(ctx context.Context, jobID string) (*core.Execution, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, core.NotFound("job", jobID)
	}
	if !job.Enabled {
		return nil, fmt.Errorf("%w: %s", core.ErrJobDisabled, jobID)
	}

	summary, err := s.graph.Summary(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !summary.Satisfied {
		var unmet []string
		for _, d := range summary.Dependencies {
			if d.State != depgraph.StateSatisfied {
				unmet = append(unmet, fmt.Sprintf("%s (%s)", d.JobID, d.State))
			}
		}
		return nil, fmt.Errorf("%w: %s waits on %v", core.ErrDependenciesUnsatisfied, jobID, unmet)
	}

	now := s.now()
	exec := core.NewExecution(job, now, now)
	exec.Logf(now, "Manual execution requested")
	if err := s.store.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}

	// The attempt outlives a caller that gives up, so it always ends terminal.
	runErr := s.engine.Run(context.WithoutCancel(ctx), exec, job)
	if runErr != nil && exec.Status == core.StatusFailed {
		s.Emit(&core.ExecutionFailed{Execution: exec.Clone(), Error: runErr, Timestamp: s.now()})
	}
	return exec, runErr
}

// RecentExecutions returns the newest executions across all jobs.
func (s *Scheduler) RecentExecutions(ctx context.Context, limit int) ([]*core.Execution, error) {
	if limit <= 0 {
		limit = DefaultExecutionLimit
	}
	return s.store.RecentExecutions(ctx, limit)
}

// JobExecutions returns the newest executions of one job.
func (s *Scheduler) JobExecutions(ctx context.Context, jobID string, limit int) ([]*core.Execution, error) {
	if limit <= 0 {
		limit = DefaultExecutionLimit
	}
	return s.store.ListExecutionsByJob(ctx, jobID, limit)
}

// GetExecution returns the execution, or nil when it does not exist.
func (s *Scheduler) GetExecution(ctx context.Context, execID string) (*core.Execution, error) {
	return s.store.GetExecution(ctx, execID)
}

// ValidateDependencies reports circular and dangling dependencies.
func (s *Scheduler) ValidateDependencies(ctx context.Context) ([]*core.DependencyError, error) {
	return s.graph.ValidateAll(ctx)
}

// SystemStatus gathers counts from every component.
func (s *Scheduler) SystemStatus(ctx context.Context) (*SystemStatus, error) {
	now := s.now()
	st := &SystemStatus{
		Workers:        s.pool.Stats(),
		PendingRetries: s.retries.Pending(),
		Retries:        s.retries.Entries(),
		Upcoming:       s.rules.Upcoming(now, upcomingFires),
		Commands:       s.commands.Names(),
	}

	s.stateMu.Lock()
	st.Running = s.running
	if s.running {
		started := s.startedAt
		st.StartedAt = &started
		st.Uptime = now.Sub(started)
	}
	s.stateMu.Unlock()

	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	st.Jobs.Total = len(jobs)
	for _, j := range jobs {
		if j.Enabled {
			st.Jobs.Enabled++
		}
	}

	var errs []error
	var e error
	st.Jobs.ByPriority, e = s.store.CountJobsByPriority(ctx)
	errs = append(errs, e)
	st.Executions, e = s.store.CountExecutionsByStatus(ctx)
	errs = append(errs, e)
	st.DependencyErrors, e = s.graph.ValidateAll(ctx)
	errs = append(errs, e)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return st, nil
}

// RegisterCommand binds name to h, replacing any earlier handler.
func (s *Scheduler) RegisterCommand(name string, h command.Handler) error {
	if err := s.commands.Register(name, h); err != nil {
		return err
	}
	s.logger.Debug("command registered", "command", name)
	return nil
}

// Commands returns the registered command names in ascending order.
func (s *Scheduler) Commands() []string {
	return s.commands.Names()
}

// CommandRegistry exposes the registry commands are resolved against.
func (s *Scheduler) CommandRegistry() *command.Registry {
	return s.commands
}

// RegisterWorker adds a worker to the pool.
func (s *Scheduler) RegisterWorker(spec worker.Spec) (*core.Worker, error) {
	return s.pool.Register(spec)
}

// DeregisterWorker removes a worker from the pool.
func (s *Scheduler) DeregisterWorker(workerID string) error {
	return s.pool.Deregister(workerID)
}

// Heartbeat records a worker heartbeat, recovering it if it was unhealthy.
func (s *Scheduler) Heartbeat(workerID string) error {
	return s.pool.Heartbeat(workerID)
}

// Workers returns a snapshot of every worker.
func (s *Scheduler) Workers() []*core.Worker {
	return s.pool.Workers()
}

// Upcoming returns up to n next fires across enabled jobs.
func (s *Scheduler) Upcoming(n int) []schedule.Fire {
	return s.rules.Upcoming(s.now(), n)
}
