package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus represents the current state of an execution.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusWaiting   ExecutionStatus = "waiting_for_dependencies"
	StatusRetrying  ExecutionStatus = "retrying"
)

// ExecutionStatuses lists every status in lifecycle order.
var ExecutionStatuses = []ExecutionStatus{
	StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusWaiting, StatusRetrying,
}

// LogEntry is one timestamped line of an execution log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Execution is one concrete run attempt of a job, carried across retries.
type Execution struct {
	ID             string          `gorm:"primaryKey;size:255" json:"id"`
	JobID          string          `gorm:"index;size:255;not null" json:"jobId"`
	JobName        string          `gorm:"size:255" json:"jobName"`
	Status         ExecutionStatus `gorm:"index;size:32;not null" json:"status"`
	ScheduledTime  time.Time       `gorm:"index" json:"scheduledTime"`
	StartTime      *time.Time      `json:"startTime,omitempty"`
	EndTime        *time.Time      `gorm:"index" json:"endTime,omitempty"`
	RetryCount     int             `json:"retryCount"`
	AssignedWorker string          `gorm:"size:255" json:"assignedWorker,omitempty"`
	Result         any             `gorm:"serializer:json" json:"result,omitempty"`
	Error          string          `gorm:"type:text" json:"error,omitempty"`
	Logs           []LogEntry      `gorm:"serializer:json" json:"logs"`
	CreatedAt      time.Time       `gorm:"index;autoCreateTime:false" json:"createdAt"`
}

// NewExecution builds a pending execution for job scheduled at the given time.
func NewExecution(job *Job, scheduled, now time.Time) *Execution {
	return &Execution{
		ID:            NewExecutionID(job.ID, now),
		JobID:         job.ID,
		JobName:       job.Name,
		Status:        StatusPending,
		ScheduledTime: scheduled,
		CreatedAt:     now,
	}
}

// NewExecutionID derives an execution id from the job id and creation instant.
// A random suffix keeps ids unique when two executions share a millisecond.
func NewExecutionID(jobID string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s", jobID, now.UnixMilli(), suffix)
}

// Logf appends a formatted log entry.
func (e *Execution) Logf(now time.Time, format string, args ...any) {
	e.Logs = append(e.Logs, LogEntry{Timestamp: now, Message: fmt.Sprintf(format, args...)})
}

// IsTerminal reports whether the execution ended in completed or failed.
// A failed execution can still move to retrying while budget remains.
func (e *Execution) IsTerminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusFailed
}

// Duration returns end minus start, or zero while either is unset.
func (e *Execution) Duration() time.Duration {
	if e.StartTime == nil || e.EndTime == nil {
		return 0
	}
	return e.EndTime.Sub(*e.StartTime)
}

func (e *Execution) transition(to ExecutionStatus, from ...ExecutionStatus) error {
	for _, s := range from {
		if e.Status == s {
			e.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, to)
}

// Start moves a pending or retrying execution to running on workerID.
func (e *Execution) Start(workerID string, now time.Time) error {
	if err := e.transition(StatusRunning, StatusPending, StatusRetrying); err != nil {
		return err
	}
	e.StartTime = &now
	e.EndTime = nil
	e.AssignedWorker = workerID
	e.Logf(now, "Started on worker %s", workerID)
	return nil
}

// Complete records a successful result.
func (e *Execution) Complete(result any, now time.Time) error {
	if err := e.transition(StatusCompleted, StatusRunning); err != nil {
		return err
	}
	e.EndTime = &now
	e.Result = result
	e.Error = ""
	e.Logf(now, "Completed successfully")
	return nil
}

// Fail records a failure. Pending and retrying executions can fail before
// they ever run, e.g. when no worker is available.
func (e *Execution) Fail(msg string, now time.Time) error {
	if err := e.transition(StatusFailed, StatusRunning, StatusPending, StatusRetrying); err != nil {
		return err
	}
	e.EndTime = &now
	e.Error = msg
	e.Logf(now, "Failed: %s", msg)
	return nil
}

// Wait parks a pending execution whose dependencies are unmet.
func (e *Execution) Wait(now time.Time) error {
	if err := e.transition(StatusWaiting, StatusPending); err != nil {
		return err
	}
	e.Logf(now, "Waiting for dependencies")
	return nil
}

// Retry moves a failed execution back to retrying for another attempt.
func (e *Execution) Retry(now time.Time) error {
	if err := e.transition(StatusRetrying, StatusFailed); err != nil {
		return err
	}
	e.RetryCount++
	e.StartTime = nil
	e.EndTime = nil
	e.AssignedWorker = ""
	e.Logf(now, "Scheduled retry %d", e.RetryCount)
	return nil
}

// Clone returns a copy that shares no mutable state with e except Result.
func (e *Execution) Clone() *Execution {
	c := *e
	if e.StartTime != nil {
		t := *e.StartTime
		c.StartTime = &t
	}
	if e.EndTime != nil {
		t := *e.EndTime
		c.EndTime = &t
	}
	c.Logs = append([]LogEntry(nil), e.Logs...)
	return &c
}
