// Package core provides the fundamental types and interfaces for the scheduler.
//
// This package contains:
//   - Job and Execution data models with GORM annotations
//   - The Execution state machine
//   - Worker model used by the worker pool
//   - Storage interface defining the repository contract
//   - Event types for monitoring
//   - Error types shared by every component
//
// Most users should import the root package github.com/jdziat/simple-cron-jobs
// instead of this package directly.
package core
