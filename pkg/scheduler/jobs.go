package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/jdziat/simple-cron-jobs/pkg/core"
	"github.com/jdziat/simple-cron-jobs/pkg/security"
)

// CreateJob validates spec and stores a new job. Dependency problems do not
// block creation; they are returned as warnings alongside the job.
func (s *Scheduler) CreateJob(ctx context.Context, spec core.JobSpec) (*core.Job, []*core.DependencyError, error) {
	job, err := s.buildJob(spec)
	if err != nil {
		return nil, nil, err
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, nil, err
	}
	if job.Enabled {
		if err := s.rules.Add(job.ID, job.Schedule); err != nil {
			if _, delErr := s.store.DeleteJob(ctx, job.ID); delErr != nil {
				s.logger.Error("failed to roll back job", "job_id", job.ID, "error", delErr)
			}
			return nil, nil, err
		}
	}

	warnings, err := s.graph.Check(ctx, job.ID)
	if err != nil {
		s.logger.Warn("dependency check failed", "job_id", job.ID, "error", err)
	}
	s.logger.Info("job created", "job_id", job.ID, "schedule", job.Schedule, "warnings", len(warnings))
	return job, warnings, nil
}

func (s *Scheduler) buildJob(spec core.JobSpec) (*core.Job, error) {
	priority, err := core.ParsePriority(string(spec.Priority))
	if err != nil {
		return nil, err
	}
	policy := core.DefaultRetryPolicy()
	if spec.Retry != nil {
		policy = *spec.Retry
	}
	enabled := true
	if spec.Enabled != nil {
		enabled = *spec.Enabled
	}
	deps := append([]string{}, spec.Dependencies...)

	now := s.now()
	job := &core.Job{
		ID:           strings.TrimSpace(spec.ID),
		Name:         spec.Name,
		Description:  spec.Description,
		Schedule:     strings.TrimSpace(spec.Schedule),
		Command:      strings.TrimSpace(spec.Command),
		Args:         spec.Args,
		Priority:     priority,
		Dependencies: deps,
		Retry:        policy,
		Enabled:      enabled,
		Metadata:     spec.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.validateJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

// validateJob checks every field and normalizes the retry policy in place.
func (s *Scheduler) validateJob(job *core.Job) error {
	if err := security.ValidateJobID(job.ID); err != nil {
		return err
	}
	if err := security.ValidateJobName(job.Name); err != nil {
		return err
	}
	if _, err := s.rules.Parse(job.Schedule); err != nil {
		return err
	}
	if job.Command == "" {
		return core.Invalid("command", "required")
	}
	if err := security.ValidateCommandName(job.CommandName()); err != nil {
		return err
	}
	if !job.Priority.Valid() {
		return core.Invalid("priority", fmt.Sprintf("unknown priority %q", job.Priority))
	}
	if err := security.ValidateArgs(job.Args); err != nil {
		return err
	}
	if err := security.ValidateDependencies(job.ID, job.Dependencies); err != nil {
		return err
	}
	return normalizeRetry(&job.Retry)
}

func normalizeRetry(p *core.RetryPolicy) error {
	switch p.Kind {
	case "":
		p.Kind = core.RetryFixed
	case core.RetryFixed, core.RetryExponential:
	default:
		return core.Invalid("retryPolicy.kind", fmt.Sprintf("unknown kind %q", p.Kind))
	}
	if p.MaxRetries < 0 {
		return core.Invalid("retryPolicy.maxRetries", "must not be negative")
	}
	if p.BaseDelay < 0 {
		return core.Invalid("retryPolicy.baseDelay", "must not be negative")
	}
	if p.MaxDelay < 0 {
		return core.Invalid("retryPolicy.maxDelay", "must not be negative")
	}
	p.MaxRetries = security.ClampRetries(p.MaxRetries)
	return nil
}

// UpdateJob applies the non-nil fields of upd. The id and creation time are
// immutable.
func (s *Scheduler) UpdateJob(ctx context.Context, jobID string, upd core.JobUpdate) (*core.Job, error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, core.NotFound("job", jobID)
	}

	upd.Apply(job)
	job.Schedule = strings.TrimSpace(job.Schedule)
	job.Command = strings.TrimSpace(job.Command)
	if job.Priority, err = core.ParsePriority(string(job.Priority)); err != nil {
		return nil, err
	}
	if job.Dependencies == nil {
		job.Dependencies = []string{}
	}
	if err := s.validateJob(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = s.now()

	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	s.syncRule(job)
	s.logger.Info("job updated", "job_id", job.ID, "enabled", job.Enabled)
	return job, nil
}

// syncRule registers an enabled job's schedule and drops a disabled one.
func (s *Scheduler) syncRule(job *core.Job) {
	if !job.Enabled {
		s.rules.Remove(job.ID)
		return
	}
	if err := s.rules.Add(job.ID, job.Schedule); err != nil {
		s.logger.Error("failed to register schedule", "job_id", job.ID, "error", err)
	}
}

// SetJobEnabled turns scheduling of a job on or off.
func (s *Scheduler) SetJobEnabled(ctx context.Context, jobID string, enabled bool) (*core.Job, error) {
	return s.UpdateJob(ctx, jobID, core.JobUpdate{Enabled: &enabled})
}

// DeleteJob removes a job. Its execution history is kept. Jobs that still
// depend on it are left dangling and logged.
func (s *Scheduler) DeleteJob(ctx context.Context, jobID string) (bool, error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	dependents, err := s.graph.Dependents(ctx, jobID)
	if err != nil {
		return false, err
	}
	deleted, err := s.store.DeleteJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, core.NotFound("job", jobID)
	}
	s.rules.Remove(jobID)
	if len(dependents) > 0 {
		s.logger.Warn("job deleted with dependents", "job_id", jobID, "dependents", dependents)
	} else {
		s.logger.Info("job deleted", "job_id", jobID)
	}
	return true, nil
}

// GetJob returns the job, or nil when it does not exist.
func (s *Scheduler) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	return s.store.GetJob(ctx, jobID)
}

// ListJobs returns every job in creation order.
func (s *Scheduler) ListJobs(ctx context.Context) ([]*core.Job, error) {
	return s.store.ListJobs(ctx)
}
