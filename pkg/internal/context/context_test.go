package context

import (
	"context"
	"testing"

	"github.com/jdziat/simple-cron-jobs/pkg/core"
)

func TestWithJobContextAndGetJobContext(t *testing.T) {
	t.Run("stores and retrieves job context", func(t *testing.T) {
		// Arrange
		baseCtx := context.Background()
		job := &core.Job{ID: "backup-database", Name: "Database Backup"}
		exec := &core.Execution{ID: "backup-database_1_abcd", JobID: job.ID}
		jc := &JobContext{Job: job, Execution: exec, WorkerID: "worker-1"}

		// Act
		ctx := WithJobContext(baseCtx, jc)
		retrieved := GetJobContext(ctx)

		// Assert
		if retrieved == nil || retrieved.Job == nil {
			t.Fatal("job context or job is nil")
		}
		if retrieved.Job.ID != job.ID {
			t.Errorf("expected job ID %q, got %q", job.ID, retrieved.Job.ID)
		}
		if retrieved.Execution != exec {
			t.Errorf("expected execution %p, got %p", exec, retrieved.Execution)
		}
		if retrieved.WorkerID != "worker-1" {
			t.Errorf("expected worker ID %q, got %q", "worker-1", retrieved.WorkerID)
		}
	})

	t.Run("returns nil when job context not set", func(t *testing.T) {
		if jc := GetJobContext(context.Background()); jc != nil {
			t.Errorf("expected nil, got %v", jc)
		}
	})

	t.Run("overwrites previous job context", func(t *testing.T) {
		// Arrange
		ctx := WithJobContext(context.Background(), &JobContext{Job: &core.Job{ID: "job-1"}})

		// Act
		ctx = WithJobContext(ctx, &JobContext{Job: &core.Job{ID: "job-2"}})

		// Assert
		if got := GetJobContext(ctx).Job.ID; got != "job-2" {
			t.Errorf("expected job-2, got %q", got)
		}
	})

	t.Run("ignores values of the wrong type", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), JobContextKey{}, "not a job context")
		if jc := GetJobContext(ctx); jc != nil {
			t.Errorf("expected nil, got %v", jc)
		}
	})
}
