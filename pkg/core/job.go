// Package core provides the domain models and interfaces for the scheduler.
package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Priority orders jobs competing for workers.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ParsePriority parses a priority name case-insensitively. Empty means medium.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityMedium, nil
	}
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", Invalid("priority", fmt.Sprintf("unknown priority %q", s))
	}
	return p, nil
}

// Priorities lists every priority, highest first.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// RetryKind selects the backoff rule.
type RetryKind string

const (
	RetryFixed       RetryKind = "fixed"
	RetryExponential RetryKind = "exponential"
)

// Default retry settings applied when a job omits a policy.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// RetryPolicy bounds the number and spacing of retry attempts.
// MaxDelay caps exponential backoff; zero means the scheduler-wide ceiling.
type RetryPolicy struct {
	Kind       RetryKind     `gorm:"size:20" json:"kind" yaml:"kind"`
	MaxRetries int           `json:"maxRetries" yaml:"maxRetries"`
	BaseDelay  time.Duration `json:"baseDelay" yaml:"baseDelay"`
	MaxDelay   time.Duration `json:"maxDelay,omitempty" yaml:"maxDelay"`
}

// DefaultRetryPolicy returns fixed 1s backoff with three retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Kind:       RetryFixed,
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
	}
}

type retryPolicyJSON struct {
	Kind       RetryKind `json:"kind"`
	MaxRetries int       `json:"maxRetries"`
	BaseDelay  string    `json:"baseDelay"`
	MaxDelay   string    `json:"maxDelay,omitempty"`
}

// MarshalJSON writes delays as Go duration strings.
func (p RetryPolicy) MarshalJSON() ([]byte, error) {
	out := retryPolicyJSON{
		Kind:       p.Kind,
		MaxRetries: p.MaxRetries,
		BaseDelay:  p.BaseDelay.String(),
	}
	if p.MaxDelay > 0 {
		out.MaxDelay = p.MaxDelay.String()
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts delays as duration strings ("1s") or integer milliseconds.
func (p *RetryPolicy) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind       RetryKind       `json:"kind"`
		MaxRetries int             `json:"maxRetries"`
		BaseDelay  json.RawMessage `json:"baseDelay"`
		MaxDelay   json.RawMessage `json:"maxDelay"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	base, err := decodeDelay(raw.BaseDelay)
	if err != nil {
		return fmt.Errorf("baseDelay: %w", err)
	}
	ceiling, err := decodeDelay(raw.MaxDelay)
	if err != nil {
		return fmt.Errorf("maxDelay: %w", err)
	}
	*p = RetryPolicy{Kind: raw.Kind, MaxRetries: raw.MaxRetries, BaseDelay: base, MaxDelay: ceiling}
	return nil
}

func decodeDelay(raw json.RawMessage) (time.Duration, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return time.ParseDuration(s)
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Job is a schedulable unit of work.
type Job struct {
	ID           string            `gorm:"primaryKey;size:255" json:"id"`
	Name         string            `gorm:"size:255;not null" json:"name"`
	Description  string            `gorm:"type:text" json:"description,omitempty"`
	Schedule     string            `gorm:"size:255;not null" json:"schedule"`
	Command      string            `gorm:"size:255;not null" json:"command"`
	Args         map[string]any    `gorm:"serializer:json" json:"args,omitempty"`
	Priority     Priority          `gorm:"index;size:10" json:"priority"`
	Dependencies []string          `gorm:"serializer:json" json:"dependencies"`
	Retry        RetryPolicy       `gorm:"embedded;embeddedPrefix:retry_" json:"retryPolicy"`
	Enabled      bool              `gorm:"index" json:"enabled"`
	Metadata     map[string]string `gorm:"serializer:json" json:"metadata,omitempty"`
	CreatedAt    time.Time         `gorm:"autoCreateTime:false" json:"createdAt"`
	UpdatedAt    time.Time         `gorm:"autoUpdateTime:false" json:"updatedAt"`
}

// CommandName returns the first whitespace-delimited token of the command.
func (j *Job) CommandName() string {
	fields := strings.Fields(j.Command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// JobSpec is the input for creating a job. Zero values take defaults.
type JobSpec struct {
	ID           string            `json:"id" yaml:"id"`
	Name         string            `json:"name" yaml:"name"`
	Description  string            `json:"description,omitempty" yaml:"description"`
	Schedule     string            `json:"schedule" yaml:"schedule"`
	Command      string            `json:"command" yaml:"command"`
	Args         map[string]any    `json:"args,omitempty" yaml:"args"`
	Priority     Priority          `json:"priority,omitempty" yaml:"priority"`
	Dependencies []string          `json:"dependencies,omitempty" yaml:"dependencies"`
	Retry        *RetryPolicy      `json:"retryPolicy,omitempty" yaml:"retryPolicy"`
	Enabled      *bool             `json:"enabled,omitempty" yaml:"enabled"`
	Metadata     map[string]string `json:"metadata,omitempty" yaml:"metadata"`
}

// JobUpdate carries the fields to change on an existing job. Nil fields are left alone.
type JobUpdate struct {
	Name         *string            `json:"name,omitempty"`
	Description  *string            `json:"description,omitempty"`
	Schedule     *string            `json:"schedule,omitempty"`
	Command      *string            `json:"command,omitempty"`
	Args         *map[string]any    `json:"args,omitempty"`
	Priority     *Priority          `json:"priority,omitempty"`
	Dependencies *[]string          `json:"dependencies,omitempty"`
	Retry        *RetryPolicy       `json:"retryPolicy,omitempty"`
	Enabled      *bool              `json:"enabled,omitempty"`
	Metadata     *map[string]string `json:"metadata,omitempty"`
}

// Apply copies the non-nil fields of u onto job.
func (u JobUpdate) Apply(job *Job) {
	if u.Name != nil {
		job.Name = *u.Name
	}
	if u.Description != nil {
		job.Description = *u.Description
	}
	if u.Schedule != nil {
		job.Schedule = *u.Schedule
	}
	if u.Command != nil {
		job.Command = *u.Command
	}
	if u.Args != nil {
		job.Args = *u.Args
	}
	if u.Priority != nil {
		job.Priority = *u.Priority
	}
	if u.Dependencies != nil {
		job.Dependencies = append([]string(nil), (*u.Dependencies)...)
	}
	if u.Retry != nil {
		job.Retry = *u.Retry
	}
	if u.Enabled != nil {
		job.Enabled = *u.Enabled
	}
	if u.Metadata != nil {
		job.Metadata = *u.Metadata
	}
}
