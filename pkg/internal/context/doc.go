// Package context provides internal context helpers for command execution.
//
// This package is internal and should not be imported directly.
// It carries the running job, its execution and the execution log sink
// from the execution engine to command code.
package context
