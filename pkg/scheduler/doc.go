// Package scheduler wires the job store, schedule rules, dependency graph,
// worker pool, execution engine and retry coordinator into one Scheduler.
//
// Start launches three periodic tasks in an errgroup: the tick evaluates due
// jobs, the retry task drains due retries, and the health task checks worker
// heartbeats. Each task can also be driven by hand through Tick,
// DrainRetries and CheckWorkers, which is how the tests exercise them.
//
// Events are delivered synchronously to listeners registered with
// WithListener and, without blocking, to channels returned by Events.
package scheduler
