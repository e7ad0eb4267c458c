package core

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors
var (
	ErrValidation              = errors.New("jobs: validation failed")
	ErrNotFound                = errors.New("jobs: not found")
	ErrDuplicateJob            = errors.New("jobs: job with same id already exists")
	ErrJobDisabled             = errors.New("jobs: job is disabled")
	ErrDependenciesUnsatisfied = errors.New("jobs: dependencies not satisfied")
	ErrNoWorkerAvailable       = errors.New("jobs: no worker available")
	ErrWorkerUnavailable       = errors.New("jobs: worker not available for assignment")
	ErrUnknownCommand          = errors.New("jobs: unknown command")
	ErrCommand                 = errors.New("jobs: command failed")
	ErrInvalidTransition       = errors.New("jobs: invalid execution state transition")
	ErrExecutionFinalized      = errors.New("jobs: execution already completed")
	ErrAlreadyRunning          = errors.New("jobs: scheduler already running")
	ErrNotRunning              = errors.New("jobs: scheduler not running")
	ErrJobArgsTooLarge         = errors.New("jobs: job arguments exceed size limit")
)

// ValidationError reports a malformed job spec field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("jobs: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports an unknown job, execution or worker id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("jobs: %s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFound builds a NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// DependencyErrorKind classifies a dependency problem.
type DependencyErrorKind string

const (
	DependencyCircular DependencyErrorKind = "circular"
	DependencyDangling DependencyErrorKind = "dangling"
)

// DependencyError describes a circular or dangling dependency.
// DependencyID is empty for circular errors.
type DependencyError struct {
	Kind         DependencyErrorKind `json:"type"`
	JobID        string              `json:"jobId"`
	DependencyID string              `json:"dependencyId,omitempty"`
}

func (e *DependencyError) Error() string {
	if e.Kind == DependencyCircular {
		return fmt.Sprintf("jobs: circular dependency detected for job %q", e.JobID)
	}
	return fmt.Sprintf("jobs: job %q depends on non-existent job %q", e.JobID, e.DependencyID)
}

// CommandError wraps an unknown command or a handler failure.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("jobs: command %q: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func (e *CommandError) Is(target error) bool {
	return target == ErrCommand
}

// NoRetryError indicates an error that should not be retried.
type NoRetryError struct {
	Err error
}

func (e *NoRetryError) Error() string {
	return fmt.Sprintf("no retry: %v", e.Err)
}

func (e *NoRetryError) Unwrap() error {
	return e.Err
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return &NoRetryError{Err: err}
}

// RetryAfterError indicates an error that should be retried after a delay.
type RetryAfterError struct {
	Err   error
	Delay time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %v: %v", e.Delay, e.Err)
}

func (e *RetryAfterError) Unwrap() error {
	return e.Err
}

// RetryAfter wraps an error to indicate it should be retried after a delay.
func RetryAfter(d time.Duration, err error) error {
	return &RetryAfterError{Err: err, Delay: d}
}
