// Package jobctx provides public access to the running job for command code.
package jobctx

import (
	"context"
	"fmt"

	"github.com/jdziat/simple-cron-jobs/pkg/core"
	intctx "github.com/jdziat/simple-cron-jobs/pkg/internal/context"
)

// JobFromContext returns the current Job from context, or nil outside a command.
func JobFromContext(ctx context.Context) *core.Job {
	jc := intctx.GetJobContext(ctx)
	if jc == nil {
		return nil
	}
	return jc.Job
}

// JobIDFromContext returns the current job ID, or empty string outside a command.
func JobIDFromContext(ctx context.Context) string {
	job := JobFromContext(ctx)
	if job == nil {
		return ""
	}
	return job.ID
}

// ExecutionIDFromContext returns the id of the running execution, or empty
// string outside a command.
func ExecutionIDFromContext(ctx context.Context) string {
	jc := intctx.GetJobContext(ctx)
	if jc == nil || jc.Execution == nil {
		return ""
	}
	return jc.Execution.ID
}

// WorkerIDFromContext returns the worker the command was assigned to.
func WorkerIDFromContext(ctx context.Context) string {
	jc := intctx.GetJobContext(ctx)
	if jc == nil {
		return ""
	}
	return jc.WorkerID
}

// Log appends msg to the running execution's log.
// Returns silently when not running within a command.
func Log(ctx context.Context, msg string) {
	jc := intctx.GetJobContext(ctx)
	if jc == nil || jc.AppendLog == nil {
		return
	}
	jc.AppendLog(msg)
}

// Logf is Log with formatting.
func Logf(ctx context.Context, format string, args ...any) {
	Log(ctx, fmt.Sprintf(format, args...))
}
