package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jdziat/simple-cron-jobs/pkg/command"
	"github.com/jdziat/simple-cron-jobs/pkg/core"
	intctx "github.com/jdziat/simple-cron-jobs/pkg/internal/context"
	"github.com/jdziat/simple-cron-jobs/pkg/security"
	"github.com/jdziat/simple-cron-jobs/pkg/worker"
)

// Engine runs a single execution attempt on a worker from the pool.
type Engine struct {
	store    core.Storage
	pool     *worker.Pool
	commands *command.Registry
	config   Config
	emitter  core.Emitter
	logger   *slog.Logger
}

// NewEngine creates an engine.
func NewEngine(store core.Storage, pool *worker.Pool, commands *command.Registry, opts ...Option) *Engine {
	defaultRetry := DefaultRetryConfig()
	config := Config{
		StorageRetry: &defaultRetry,
		Clock:        time.Now,
	}
	for _, opt := range opts {
		opt.ApplyEngine(&config)
	}
	if config.StorageRetry == nil {
		disabled := RetryConfig{MaxAttempts: 1, BackoffMultiplier: 1}
		config.StorageRetry = &disabled
	}

	e := &Engine{
		store:    store,
		pool:     pool,
		commands: commands,
		config:   config,
		emitter:  core.NopEmitter,
		logger:   slog.Default(),
	}
	if config.Emitter != nil {
		e.emitter = config.Emitter
	}
	if config.Logger != nil {
		e.logger = config.Logger
	}
	return e
}

// Commands returns the registry commands are resolved against.
func (e *Engine) Commands() *command.Registry {
	return e.commands
}

// Run performs one attempt of exec, which must be pending or retrying.
//
// When no worker can take the execution it is recorded failed and
// ErrNoWorkerAvailable is returned. A command failure is recorded on the
// execution and returned as a *core.CommandError. The worker slot is released
// before Run returns.
func (e *Engine) Run(ctx context.Context, exec *core.Execution, job *core.Job) error {
	w, err := e.pool.Acquire(job.Priority, exec.ID)
	if err != nil {
		e.logger.Warn("no worker available", "job_id", job.ID, "execution_id", exec.ID, "priority", job.Priority)
		if failErr := exec.Fail(err.Error(), e.now()); failErr != nil {
			return failErr
		}
		if saveErr := e.save(ctx, exec); saveErr != nil {
			return saveErr
		}
		return err
	}
	defer e.pool.Release(w.ID, exec.ID)

	startTime := e.now()
	if err := exec.Start(w.ID, startTime); err != nil {
		return err
	}
	if err := e.save(ctx, exec); err != nil {
		e.logger.Error("failed to record execution start", "execution_id", exec.ID, "error", err)
		return err
	}
	e.emitter.Emit(&core.ExecutionStarted{Execution: exec.Clone(), WorkerID: w.ID, Timestamp: startTime})
	e.logger.Debug("execution started", "job_id", job.ID, "execution_id", exec.ID, "worker_id", w.ID)

	name, h, err := e.commands.Resolve(job.Command)
	if err != nil {
		return e.fail(ctx, exec, &core.CommandError{Command: name, Err: err})
	}

	result, err := e.invoke(ctx, exec, job, w.ID, h)
	if err != nil {
		return e.fail(ctx, exec, &core.CommandError{Command: name, Err: err})
	}

	endTime := e.now()
	if err := exec.Complete(result, endTime); err != nil {
		return err
	}
	if err := e.save(ctx, exec); err != nil {
		e.logger.Error("failed to record execution completion", "execution_id", exec.ID, "error", err)
		return err
	}
	e.emitter.Emit(&core.ExecutionCompleted{Execution: exec.Clone(), Duration: exec.Duration(), Timestamp: endTime})
	e.logger.Info("execution completed", "job_id", job.ID, "execution_id", exec.ID, "duration", exec.Duration())
	return nil
}

func (e *Engine) fail(ctx context.Context, exec *core.Execution, cmdErr *core.CommandError) error {
	msg := security.SanitizeErrorMessage(cmdErr.Err.Error())
	if err := exec.Fail(msg, e.now()); err != nil {
		return err
	}
	if err := e.save(ctx, exec); err != nil {
		e.logger.Error("failed to record execution failure", "execution_id", exec.ID, "error", err)
		return errors.Join(cmdErr, err)
	}
	e.logger.Warn("execution failed", "job_id", exec.JobID, "execution_id", exec.ID, "command", cmdErr.Command, "error", msg)
	return cmdErr
}

// invoke calls the handler inside a job context, turning panics into errors
// and rejecting results that cannot be encoded as JSON.
func (e *Engine) invoke(ctx context.Context, exec *core.Execution, job *core.Job, workerID string, h command.Handler) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	var (
		mu     sync.Mutex
		closed bool
		lines  []core.LogEntry
	)
	jc := &intctx.JobContext{
		Job:       job,
		Execution: exec,
		WorkerID:  workerID,
		AppendLog: func(msg string) {
			mu.Lock()
			defer mu.Unlock()
			if !closed {
				lines = append(lines, core.LogEntry{Timestamp: e.now(), Message: msg})
			}
		},
	}
	defer func() {
		mu.Lock()
		closed = true
		exec.Logs = append(exec.Logs, lines...)
		mu.Unlock()
	}()

	runCtx := intctx.WithJobContext(ctx, jc)
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, e.config.Timeout)
		defer cancel()
	}

	result, err = h.Run(runCtx, cloneArgs(job.Args))
	if err != nil {
		return nil, err
	}
	if _, encErr := json.Marshal(result); encErr != nil {
		return nil, fmt.Errorf("result is not JSON-serializable: %w", encErr)
	}
	return result, nil
}

func (e *Engine) save(ctx context.Context, exec *core.Execution) error {
	return retryWithBackoff(ctx, *e.config.StorageRetry, func() error {
		return e.store.SaveExecution(ctx, exec)
	})
}

func (e *Engine) now() time.Time {
	return e.config.Clock()
}

func cloneArgs(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
