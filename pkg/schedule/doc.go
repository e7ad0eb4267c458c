// Package schedule parses schedule expressions and decides which jobs are due.
//
// This package includes:
//   - Rule: next-fire computation for a parsed expression
//   - Parse / ParseIn for the "every", "daily", "weekly" and five-field cron forms
//   - DueAt for poll-driven due evaluation with a tolerance window
//   - Engine: the registry of job rules consulted by the scheduler tick
//
// Expressions compile to github.com/robfig/cron/v3 spec schedules.
package schedule
