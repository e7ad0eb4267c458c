// Package context provides context helpers for command execution.
package context

import (
	"context"

	"github.com/jdziat/simple-cron-jobs/pkg/core"
)

// JobContextKey is the key for storing job context in context.Context.
type JobContextKey struct{}

// JobContext holds the job and execution a command is running for.
type JobContext struct {
	Job       *core.Job
	Execution *core.Execution
	WorkerID  string
	// AppendLog records a line in the execution log. It is safe for concurrent use.
	AppendLog func(msg string)
}

// GetJobContext retrieves the job context from a context.Context.
func GetJobContext(ctx context.Context) *JobContext {
	if jc, ok := ctx.Value(JobContextKey{}).(*JobContext); ok {
		return jc
	}
	return nil
}

// WithJobContext adds job context to a context.Context.
func WithJobContext(ctx context.Context, jc *JobContext) context.Context {
	return context.WithValue(ctx, JobContextKey{}, jc)
}
