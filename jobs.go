// Package jobs provides an in-process cron job scheduler with dependency
// gating, capacity-bounded workers and backoff retries.
//
// This is the main package users should import. It re-exports the public
// types of the pkg/ packages for a compact API surface.
//
// Basic usage:
//
//	s, store, err := jobs.Open(ctx)
//	if err != nil { ... }
//	defer store.Close()
//
//	s.RegisterCommand("send-report", jobs.MustFunc(func(ctx context.Context, args ReportArgs) (string, error) {
//	    jobs.Logf(ctx, "sending to %s", args.To)
//	    return "sent", nil
//	}))
//
//	s.CreateJob(ctx, jobs.JobSpec{
//	    ID:       "weekly-report",
//	    Name:     "Weekly Report",
//	    Schedule: "weekly on monday",
//	    Command:  "send-report",
//	    Args:     map[string]any{"to": "ops@example.com"},
//	})
//
//	s.Start(ctx)
//	defer s.Stop()
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/simple-cron-jobs/pkg/command"
	"github.com/jdziat/simple-cron-jobs/pkg/core"
	"github.com/jdziat/simple-cron-jobs/pkg/jobctx"
	"github.com/jdziat/simple-cron-jobs/pkg/schedule"
	"github.com/jdziat/simple-cron-jobs/pkg/scheduler"
	"github.com/jdziat/simple-cron-jobs/pkg/security"
	"github.com/jdziat/simple-cron-jobs/pkg/storage"
	"github.com/jdziat/simple-cron-jobs/pkg/worker"
)

type (
	// Job is a schedulable unit of work.
	Job = core.Job

	// JobSpec is the input for creating a job.
	JobSpec = core.JobSpec

	// JobUpdate carries the fields to change on an existing job.
	JobUpdate = core.JobUpdate

	// Execution is one run of a job, carried across retries.
	Execution = core.Execution

	// ExecutionStatus is the lifecycle state of an execution.
	ExecutionStatus = core.ExecutionStatus

	// LogEntry is one line of an execution log.
	LogEntry = core.LogEntry

	// Priority orders jobs competing for workers.
	Priority = core.Priority

	// RetryPolicy bounds the number and spacing of retries.
	RetryPolicy = core.RetryPolicy

	// RetryKind selects fixed or exponential backoff.
	RetryKind = core.RetryKind

	// Worker is a capacity-bounded execution slot.
	Worker = core.Worker

	// WorkerSpec describes a worker to register.
	WorkerSpec = worker.Spec

	// Storage persists jobs and executions.
	Storage = core.Storage

	// GormStorage implements Storage using GORM.
	GormStorage = storage.GormStorage

	// Scheduler runs jobs on their schedules.
	Scheduler = scheduler.Scheduler

	// Option configures a Scheduler.
	Option = scheduler.Option

	// JobStatus is the detailed view of one job.
	JobStatus = scheduler.JobStatus

	// SystemStatus is a point-in-time view of the whole scheduler.
	SystemStatus = scheduler.SystemStatus

	// Rule computes the fire instants of a schedule expression.
	Rule = schedule.Rule

	// CommandHandler runs a command.
	CommandHandler = command.Handler

	// HandlerFunc adapts a function to CommandHandler.
	HandlerFunc = command.HandlerFunc

	// Registry maps command names to handlers.
	Registry = command.Registry

	// Event is the interface for all scheduler events.
	Event = core.Event

	// Emitter receives events.
	Emitter = core.Emitter

	// EmitterFunc adapts a function to Emitter.
	EmitterFunc = core.EmitterFunc

	// ExecutionStarted is emitted when an execution starts on a worker.
	ExecutionStarted = core.ExecutionStarted

	// ExecutionCompleted is emitted when an execution completes.
	ExecutionCompleted = core.ExecutionCompleted

	// ExecutionFailed is emitted when an execution fails permanently.
	ExecutionFailed = core.ExecutionFailed

	// ExecutionRetrying is emitted when a failed execution is queued for retry.
	ExecutionRetrying = core.ExecutionRetrying

	// ExecutionWaiting is emitted when unmet dependencies hold a due job back.
	ExecutionWaiting = core.ExecutionWaiting

	// WorkerHealthChanged is emitted when a worker changes health.
	WorkerHealthChanged = core.WorkerHealthChanged

	// ValidationError reports a malformed field.
	ValidationError = core.ValidationError

	// NotFoundError reports an unknown id.
	NotFoundError = core.NotFoundError

	// DependencyError reports a circular or dangling dependency.
	DependencyError = core.DependencyError

	// CommandError wraps an unknown command or a handler failure.
	CommandError = core.CommandError

	// NoRetryError indicates an error that should not be retried.
	NoRetryError = core.NoRetryError

	// RetryAfterError indicates an error that should be retried after a delay.
	RetryAfterError = core.RetryAfterError
)

// Priorities
const (
	PriorityHigh   = core.PriorityHigh
	PriorityMedium = core.PriorityMedium
	PriorityLow    = core.PriorityLow
)

// Status constants
const (
	StatusPending   = core.StatusPending
	StatusRunning   = core.StatusRunning
	StatusCompleted = core.StatusCompleted
	StatusFailed    = core.StatusFailed
	StatusWaiting   = core.StatusWaiting
	StatusRetrying  = core.StatusRetrying
)

// Retry kinds
const (
	RetryFixed       = core.RetryFixed
	RetryExponential = core.RetryExponential
)

// Security limits
const (
	MaxJobIDLength        = security.MaxJobIDLength
	MaxJobArgsSize        = security.MaxJobArgsSize
	MaxRetries            = security.MaxRetries
	MaxWorkerCapacity     = security.MaxWorkerCapacity
	MaxDependencies       = security.MaxDependencies
	MaxErrorMessageLength = security.MaxErrorMessageLength
)

// Error variables
var (
	ErrValidation              = core.ErrValidation
	ErrNotFound                = core.ErrNotFound
	ErrDuplicateJob            = core.ErrDuplicateJob
	ErrJobDisabled             = core.ErrJobDisabled
	ErrDependenciesUnsatisfied = core.ErrDependenciesUnsatisfied
	ErrNoWorkerAvailable       = core.ErrNoWorkerAvailable
	ErrUnknownCommand          = core.ErrUnknownCommand
	ErrCommand                 = core.ErrCommand
	ErrAlreadyRunning          = core.ErrAlreadyRunning
	ErrNotRunning              = core.ErrNotRunning
	ErrJobArgsTooLarge         = core.ErrJobArgsTooLarge
)

// New creates a stopped scheduler over s.
func New(s Storage, opts ...Option) *Scheduler {
	return scheduler.New(s, opts...)
}

// Open creates a scheduler over a fresh in-memory store with the built-in
// commands registered. Options are applied after the defaults, so a
// WithCommands option replaces the built-in registry. The caller closes the
// returned store.
func Open(ctx context.Context, opts ...Option) (*Scheduler, *GormStorage, error) {
	store, err := storage.OpenMemory(ctx)
	if err != nil {
		return nil, nil, err
	}
	reg := command.NewRegistry()
	if err := command.RegisterBuiltins(reg); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("register builtins: %w", err)
	}
	all := append([]Option{scheduler.WithCommands(reg)}, opts...)
	return scheduler.New(store, all...), store, nil
}

// NewGormStorage creates a GORM-backed storage over an existing database.
// Call Migrate before use.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return storage.NewGormStorage(db)
}

// OpenMemoryStorage creates a migrated storage on a private in-memory database.
func OpenMemoryStorage(ctx context.Context) (*GormStorage, error) {
	return storage.OpenMemory(ctx)
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return command.NewRegistry()
}

// RegisterBuiltins registers echo, sleep, calculate and the sample commands.
func RegisterBuiltins(r *Registry) error {
	return command.RegisterBuiltins(r)
}

// Func adapts a typed function to CommandHandler. See command.Func.
func Func(fn any) (CommandHandler, error) {
	return command.Func(fn)
}

// MustFunc is Func that panics on a malformed function.
func MustFunc(fn any) CommandHandler {
	return command.MustFunc(fn)
}

// ParseSchedule parses a schedule expression in UTC.
func ParseSchedule(expr string) (Rule, error) {
	return schedule.Parse(expr)
}

// DefaultWorkers returns the in-process workers a scheduler starts with.
func DefaultWorkers() []WorkerSpec {
	return worker.DefaultWorkers()
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return core.NoRetry(err)
}

// RetryAfter wraps an error to indicate it should be retried after a delay.
func RetryAfter(d time.Duration, err error) error {
	return core.RetryAfter(d, err)
}

// Scheduler option functions

// WithTickInterval sets how often due jobs are evaluated.
func WithTickInterval(d time.Duration) Option {
	return scheduler.WithTickInterval(d)
}

// WithRetryInterval sets how often the retry queue is drained.
func WithRetryInterval(d time.Duration) Option {
	return scheduler.WithRetryInterval(d)
}

// WithHealthInterval sets how often worker health is checked.
func WithHealthInterval(d time.Duration) Option {
	return scheduler.WithHealthInterval(d)
}

// WithLocation sets the zone schedules are evaluated in.
func WithLocation(loc *time.Location) Option {
	return scheduler.WithLocation(loc)
}

// WithFreshness sets how recent a dependency's completion must be.
func WithFreshness(d time.Duration) Option {
	return scheduler.WithFreshness(d)
}

// WithRetention prunes finished executions older than d.
func WithRetention(d time.Duration) Option {
	return scheduler.WithRetention(d)
}

// WithWorkers replaces the default workers.
func WithWorkers(specs ...WorkerSpec) Option {
	return scheduler.WithWorkers(specs...)
}

// WithHealthTimeout sets how long a remote worker may go without a heartbeat.
func WithHealthTimeout(d time.Duration) Option {
	return scheduler.WithHealthTimeout(d)
}

// WithLogger sets the scheduler's logger.
func WithLogger(l *slog.Logger) Option {
	return scheduler.WithLogger(l)
}

// WithCommands sets the command registry.
func WithCommands(r *Registry) Option {
	return scheduler.WithCommands(r)
}

// WithListener receives every event synchronously.
func WithListener(l Emitter) Option {
	return scheduler.WithListener(l)
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return scheduler.WithClock(now)
}

// Handler context functions

// JobFromContext returns the running Job, or nil outside a command handler.
func JobFromContext(ctx context.Context) *Job {
	return jobctx.JobFromContext(ctx)
}

// JobIDFromContext returns the running job's id, or "" outside a command handler.
func JobIDFromContext(ctx context.Context) string {
	return jobctx.JobIDFromContext(ctx)
}

// ExecutionIDFromContext returns the running execution's id.
func ExecutionIDFromContext(ctx context.Context) string {
	return jobctx.ExecutionIDFromContext(ctx)
}

// Log appends msg to the running execution's log.
func Log(ctx context.Context, msg string) {
	jobctx.Log(ctx, msg)
}

// Logf appends a formatted line to the running execution's log.
func Logf(ctx context.Context, format string, args ...any) {
	jobctx.Logf(ctx, format, args...)
}
