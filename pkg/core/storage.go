package core

import (
	"context"
	"time"
)

// Storage defines the repository for jobs and executions.
type Storage interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Jobs
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, jobID string) (*Job, error)
	UpdateJob(ctx context.Context, job *Job) error
	DeleteJob(ctx context.Context, jobID string) (bool, error)
	ListJobs(ctx context.Context) ([]*Job, error)
	CountJobsByPriority(ctx context.Context) (map[Priority]int64, error)

	// Executions
	CreateExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, execID string) (*Execution, error)
	SaveExecution(ctx context.Context, exec *Execution) error
	ListExecutionsByJob(ctx context.Context, jobID string, limit int) ([]*Execution, error)
	RecentExecutions(ctx context.Context, limit int) ([]*Execution, error)
	LastCompletedExecution(ctx context.Context, jobID string) (*Execution, error)
	CountExecutionsByStatus(ctx context.Context) (map[ExecutionStatus]int64, error)
	PruneExecutions(ctx context.Context, before time.Time) (int64, error)
}
