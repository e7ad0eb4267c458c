// Package security provides validation, sanitization, and limits for the scheduler.
//
// This package includes:
//   - Input validation for job ids, names, command names and dependency lists
//   - Error message sanitization to prevent sensitive data leakage
//   - Clamping functions to enforce safe limits on retries and worker capacity
//
// Most users should import the root package github.com/jdziat/simple-cron-jobs
// which re-exports the limits.
package security
