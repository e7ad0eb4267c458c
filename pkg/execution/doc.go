// Package execution runs single execution attempts.
//
// An Engine acquires a worker slot, moves the execution through
// running to completed or failed, invokes the job's command inside a
// handler context and always releases the slot. Execution writes are
// retried with backoff on transient storage errors.
package execution
