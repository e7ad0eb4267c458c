package execution

import (
	"log/slog"
	"time"

	"github.com/jdziat/simple-cron-jobs/pkg/core"
)

// Option configures an Engine.
type Option interface {
	ApplyEngine(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) ApplyEngine(c *Config) { f(c) }

// Config holds engine configuration.
type Config struct {
	// StorageRetry governs retries of execution writes. Nil disables retries.
	StorageRetry *RetryConfig
	// Timeout bounds a single command invocation. Zero means no limit.
	Timeout time.Duration
	Clock   func() time.Time
	Emitter core.Emitter
	Logger  *slog.Logger
}

// WithStorageRetry configures retry behavior for execution writes.
func WithStorageRetry(config RetryConfig) Option {
	return optionFunc(func(c *Config) {
		c.StorageRetry = &config
	})
}

// WithRetryAttempts is a convenience option to set max attempts for storage writes.
func WithRetryAttempts(attempts int) Option {
	return optionFunc(func(c *Config) {
		if c.StorageRetry == nil {
			cfg := DefaultRetryConfig()
			c.StorageRetry = &cfg
		}
		c.StorageRetry.MaxAttempts = attempts
	})
}

// DisableStorageRetry makes every execution write a single attempt.
func DisableStorageRetry() Option {
	return optionFunc(func(c *Config) {
		c.StorageRetry = &RetryConfig{
			MaxAttempts:       1,
			InitialBackoff:    0,
			MaxBackoff:        0,
			BackoffMultiplier: 1.0,
			JitterFraction:    0,
		}
	})
}

// WithTimeout bounds each command invocation.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d >= 0 {
			c.Timeout = d
		}
	})
}

// WithClock sets the time source for execution timestamps.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(c *Config) {
		if now != nil {
			c.Clock = now
		}
	})
}

// WithEmitter sets where execution events go.
func WithEmitter(e core.Emitter) Option {
	return optionFunc(func(c *Config) {
		c.Emitter = e
	})
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Config) {
		c.Logger = l
	})
}
