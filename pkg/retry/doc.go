// Package retry decides whether failed executions run again and when.
//
// Fixed policies wait BaseDelay between attempts. Exponential policies wait
// BaseDelay doubled per earlier retry, capped at the policy's MaxDelay or the
// coordinator ceiling. Handlers can opt out with core.NoRetry or pick their
// own delay with core.RetryAfter.
package retry
