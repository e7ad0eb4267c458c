// Package storage provides storage implementations for the scheduler.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/simple-cron-jobs/pkg/core"
)

// GormStorage implements core.Storage using GORM.
type GormStorage struct {
	db *gorm.DB
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// OpenMemory opens a private in-memory SQLite database and migrates it.
// State lives only as long as the process; each call gets its own database.
// Options that allow more than one connection see an empty database on the
// extra connections, so they are only useful for limits and lifetimes.
func OpenMemory(ctx context.Context, opts ...ConnOption) (*GormStorage, error) {
	dsn := fmt.Sprintf("file:jobs-%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open in-memory sqlite: %w", err)
	}
	if err := tune(db, resolveConns(memoryConns, opts)); err != nil {
		return nil, err
	}

	s := NewGormStorage(db)
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// DB returns the underlying GORM handle.
func (s *GormStorage) DB() *gorm.DB {
	return s.db
}

// Close releases the underlying connection pool.
func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Job{}, &core.Execution{})
}

// CreateJob inserts a job. Returns core.ErrDuplicateJob if the id is taken.
func (s *GormStorage) CreateJob(ctx context.Context, job *core.Job) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&core.Job{}).Where("id = ?", job.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return core.ErrDuplicateJob
		}
		return tx.Create(job).Error
	})
}

// GetJob retrieves a job by ID. Returns nil, nil when the job does not exist.
func (s *GormStorage) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJob writes every mutable field of job.
func (s *GormStorage) UpdateJob(ctx context.Context, job *core.Job) error {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ?", job.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(job)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.NotFound("job", job.ID)
	}
	return nil
}

// DeleteJob removes a job. Its executions are kept as history.
func (s *GormStorage) DeleteJob(ctx context.Context, jobID string) (bool, error) {
	result := s.db.WithContext(ctx).Delete(&core.Job{}, "id = ?", jobID)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListJobs returns every job in creation order.
func (s *GormStorage) ListJobs(ctx context.Context) ([]*core.Job, error) {
	var jobList []*core.Job
	err := s.db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Find(&jobList).Error
	return jobList, err
}

type groupCount struct {
	Grp   string
	Count int64
}

// CountJobsByPriority counts jobs per priority. Every priority is present.
func (s *GormStorage) CountJobsByPriority(ctx context.Context) (map[core.Priority]int64, error) {
	var rows []groupCount
	err := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Select("priority AS grp, COUNT(*) AS count").
		Group("priority").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[core.Priority]int64, len(core.Priorities))
	for _, p := range core.Priorities {
		counts[p] = 0
	}
	for _, r := range rows {
		counts[core.Priority(r.Grp)] = r.Count
	}
	return counts, nil
}

// CreateExecution inserts a new execution record.
func (s *GormStorage) CreateExecution(ctx context.Context, exec *core.Execution) error {
	if exec.ID == "" {
		return core.Invalid("execution id", "required")
	}
	return s.db.WithContext(ctx).Create(exec).Error
}

// GetExecution retrieves an execution by ID. Returns nil, nil when it does not exist.
func (s *GormStorage) GetExecution(ctx context.Context, execID string) (*core.Execution, error) {
	var exec core.Execution
	err := s.db.WithContext(ctx).First(&exec, "id = ?", execID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

// SaveExecution writes the current state of exec.
// Completed executions are immutable: saving over one returns core.ErrExecutionFinalized.
func (s *GormStorage) SaveExecution(ctx context.Context, exec *core.Execution) error {
	updates, err := executionColumns(exec)
	if err != nil {
		return err
	}

	// Table rather than Model: gorm writes map values back into the model
	// through the json serializer, which cannot take a nil interface Result.
	result := s.db.WithContext(ctx).
		Table(s.executionTable()).
		Where("id = ? AND status <> ?", exec.ID, core.StatusCompleted).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&core.Execution{}).Where("id = ?", exec.ID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return core.NotFound("execution", exec.ID)
	}
	return core.ErrExecutionFinalized
}

func (s *GormStorage) executionTable() string {
	return s.db.NamingStrategy.TableName("Execution")
}

// executionColumns lists every mutable execution column. The json columns
// are encoded here to match what the serializer reads back.
func executionColumns(exec *core.Execution) (map[string]any, error) {
	result, err := json.Marshal(exec.Result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	logs, err := json.Marshal(exec.Logs)
	if err != nil {
		return nil, fmt.Errorf("encode logs: %w", err)
	}
	return map[string]any{
		"job_name":        exec.JobName,
		"status":          string(exec.Status),
		"scheduled_time":  exec.ScheduledTime,
		"start_time":      exec.StartTime,
		"end_time":        exec.EndTime,
		"retry_count":     exec.RetryCount,
		"assigned_worker": exec.AssignedWorker,
		"result":          string(result),
		"error":           exec.Error,
		"logs":            string(logs),
	}, nil
}

func limited(q *gorm.DB, limit int) *gorm.DB {
	if limit > 0 {
		return q.Limit(limit)
	}
	return q
}

// ListExecutionsByJob returns a job's executions, newest first.
// A non-positive limit returns all of them.
func (s *GormStorage) ListExecutionsByJob(ctx context.Context, jobID string, limit int) ([]*core.Execution, error) {
	var execs []*core.Execution
	q := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at DESC, id DESC")
	err := limited(q, limit).Find(&execs).Error
	return execs, err
}

// RecentExecutions returns the newest executions across all jobs.
func (s *GormStorage) RecentExecutions(ctx context.Context, limit int) ([]*core.Execution, error) {
	var execs []*core.Execution
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	err := limited(q, limit).Find(&execs).Error
	return execs, err
}

// LastCompletedExecution returns the job's most recently finished completed
// execution, or nil, nil if it never completed.
func (s *GormStorage) LastCompletedExecution(ctx context.Context, jobID string) (*core.Execution, error) {
	var exec core.Execution
	err := s.db.WithContext(ctx).
		Where("job_id = ? AND status = ?", jobID, core.StatusCompleted).
		Order("end_time DESC").
		First(&exec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

// CountExecutionsByStatus counts executions per status. Every status is present.
func (s *GormStorage) CountExecutionsByStatus(ctx context.Context) (map[core.ExecutionStatus]int64, error) {
	var rows []groupCount
	err := s.db.WithContext(ctx).
		Model(&core.Execution{}).
		Select("status AS grp, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[core.ExecutionStatus]int64, len(core.ExecutionStatuses))
	for _, st := range core.ExecutionStatuses {
		counts[st] = 0
	}
	for _, r := range rows {
		counts[core.ExecutionStatus(r.Grp)] = r.Count
	}
	return counts, nil
}

// PruneExecutions deletes completed and failed executions that ended before the cutoff.
func (s *GormStorage) PruneExecutions(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("status IN ?", []core.ExecutionStatus{core.StatusCompleted, core.StatusFailed}).
		Where("end_time IS NOT NULL AND end_time < ?", before).
		Delete(&core.Execution{})
	return result.RowsAffected, result.Error
}

var _ core.Storage = (*GormStorage)(nil)
