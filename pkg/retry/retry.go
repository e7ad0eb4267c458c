package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jdziat/simple-cron-jobs/pkg/core"
)

// DefaultCeiling caps exponential delays when a policy has no MaxDelay.
const DefaultCeiling = 300 * time.Second

// Entry is a queued retry.
type Entry struct {
	ExecutionID string    `json:"executionId"`
	JobID       string    `json:"jobId"`
	Attempt     int       `json:"attempt"`
	Due         time.Time `json:"due"`
}

// Delay returns how long to wait before the next attempt of an execution that
// has already been retried retryCount times.
func Delay(policy core.RetryPolicy, retryCount int, ceiling time.Duration) time.Duration {
	base := policy.BaseDelay
	if base < 0 {
		base = 0
	}
	if policy.Kind != core.RetryExponential {
		return base
	}

	if policy.MaxDelay > 0 {
		ceiling = policy.MaxDelay
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}

	d := base
	for i := 0; i < retryCount; i++ {
		if d > ceiling/2 {
			return ceiling
		}
		d *= 2
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

// Coordinator decides whether failed executions are retried and holds the
// queue of pending retries. Safe for concurrent use.
type Coordinator struct {
	mu      sync.Mutex
	queue   []Entry
	store   core.Storage
	config  Config
	emitter core.Emitter
	logger  *slog.Logger
}

// NewCoordinator creates a coordinator that persists retry transitions to store.
func NewCoordinator(store core.Storage, opts ...Option) *Coordinator {
	config := Config{
		Ceiling: DefaultCeiling,
		Clock:   time.Now,
	}
	for _, opt := range opts {
		opt.ApplyCoordinator(&config)
	}

	c := &Coordinator{
		store:   store,
		config:  config,
		emitter: core.NopEmitter,
		logger:  slog.Default(),
	}
	if config.Emitter != nil {
		c.emitter = config.Emitter
	}
	if config.Logger != nil {
		c.logger = config.Logger
	}
	return c
}

// Schedule queues another attempt of a failed execution. It reports whether a
// retry was queued. When the cause is a NoRetry error or the job's retry
// budget is spent, the execution stays failed and ExecutionFailed is emitted.
// A RetryAfter cause overrides the policy delay.
func (c *Coordinator) Schedule(ctx context.Context, exec *core.Execution, job *core.Job, cause error) (bool, error) {
	if exec.Status != core.StatusFailed {
		return false, fmt.Errorf("%w: cannot retry %s execution", core.ErrInvalidTransition, exec.Status)
	}
	now := c.config.Clock()

	var noRetry *core.NoRetryError
	if errors.As(cause, &noRetry) {
		c.logger.Info("retry suppressed", "execution_id", exec.ID, "error", cause)
		c.finalize(exec, cause, now)
		return false, nil
	}
	if exec.RetryCount >= job.Retry.MaxRetries {
		c.logger.Warn("retries exhausted", "execution_id", exec.ID, "job_id", job.ID, "retries", exec.RetryCount)
		c.finalize(exec, cause, now)
		return false, nil
	}

	delay := Delay(job.Retry, exec.RetryCount, c.config.Ceiling)
	var retryAfter *core.RetryAfterError
	if errors.As(cause, &retryAfter) && retryAfter.Delay >= 0 {
		delay = retryAfter.Delay
	}

	if err := exec.Retry(now); err != nil {
		return false, err
	}
	if err := c.store.SaveExecution(ctx, exec); err != nil {
		return false, fmt.Errorf("save retrying execution: %w", err)
	}

	entry := Entry{ExecutionID: exec.ID, JobID: exec.JobID, Attempt: exec.RetryCount, Due: now.Add(delay)}
	c.mu.Lock()
	c.queue = append(c.queue, entry)
	emitter := c.emitter
	c.mu.Unlock()

	c.logger.Info("retry scheduled", "execution_id", exec.ID, "attempt", entry.Attempt, "delay", delay)
	emitter.Emit(&core.ExecutionRetrying{
		Execution: exec.Clone(),
		Attempt:   entry.Attempt,
		Error:     cause,
		NextRunAt: entry.Due,
		Timestamp: now,
	})
	return true, nil
}

func (c *Coordinator) finalize(exec *core.Execution, cause error, now time.Time) {
	c.mu.Lock()
	emitter := c.emitter
	c.mu.Unlock()
	emitter.Emit(&core.ExecutionFailed{Execution: exec.Clone(), Error: cause, Timestamp: now})
}

// Drain removes and returns every entry due at or before now, earliest first.
func (c *Coordinator) Drain(now time.Time) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, rest []Entry
	for _, e := range c.queue {
		if e.Due.After(now) {
			rest = append(rest, e)
		} else {
			due = append(due, e)
		}
	}
	c.queue = rest
	sortEntries(due)
	return due
}

// Pending returns the number of queued retries.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Entries returns a snapshot of the queue, earliest first.
func (c *Coordinator) Entries() []Entry {
	c.mu.Lock()
	out := append([]Entry(nil), c.queue...)
	c.mu.Unlock()
	sortEntries(out)
	return out
}

// Clear drops every queued retry.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	c.queue = nil
	c.mu.Unlock()
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Due.Equal(entries[j].Due) {
			return entries[i].Due.Before(entries[j].Due)
		}
		return entries[i].ExecutionID < entries[j].ExecutionID
	})
}
