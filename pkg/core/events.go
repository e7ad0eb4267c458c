package core

import "time"

// Event is the interface for all scheduler events.
type Event interface {
	eventMarker()
}

// Emitter receives events from scheduler components.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// NopEmitter drops every event.
var NopEmitter Emitter = EmitterFunc(func(Event) {})

// ExecutionStarted is emitted when an execution starts running on a worker.
type ExecutionStarted struct {
	Execution *Execution
	WorkerID  string
	Timestamp time.Time
}

func (*ExecutionStarted) eventMarker() {}

// ExecutionCompleted is emitted when an execution completes successfully.
type ExecutionCompleted struct {
	Execution *Execution
	Duration  time.Duration
	Timestamp time.Time
}

func (*ExecutionCompleted) eventMarker() {}

// ExecutionFailed is emitted when an execution fails permanently.
type ExecutionFailed struct {
	Execution *Execution
	Error     error
	Timestamp time.Time
}

func (*ExecutionFailed) eventMarker() {}

// ExecutionRetrying is emitted when a failed execution is queued for retry.
type ExecutionRetrying struct {
	Execution *Execution
	Attempt   int
	Error     error
	NextRunAt time.Time
	Timestamp time.Time
}

func (*ExecutionRetrying) eventMarker() {}

// ExecutionWaiting is emitted when a due job is held back by its dependencies.
type ExecutionWaiting struct {
	Execution *Execution
	Timestamp time.Time
}

func (*ExecutionWaiting) eventMarker() {}

// WorkerHealthChanged is emitted when a worker flips between healthy and unhealthy.
type WorkerHealthChanged struct {
	WorkerID  string
	Health    WorkerHealth
	Timestamp time.Time
}

func (*WorkerHealthChanged) eventMarker() {}
