// Package worker provides the Pool of capacity-bounded workers.
//
// This package includes:
//   - Pool: registration, selection, assignment and release of workers
//   - Heartbeat tracking with explicit recovery of unhealthy workers
//   - PoolOption: configuration options for pools
//
// Workers are in-process slots. A remote executor would implement the same
// assign, release and heartbeat contract.
package worker
