package retry

import (
	"log/slog"
	"time"

	"github.com/jdziat/simple-cron-jobs/pkg/core"
)

// Option configures a Coordinator.
type Option interface {
	ApplyCoordinator(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) ApplyCoordinator(c *Config) { f(c) }

// Config holds coordinator configuration.
type Config struct {
	// Ceiling caps exponential delays for policies without MaxDelay.
	Ceiling time.Duration
	Clock   func() time.Time
	Emitter core.Emitter
	Logger  *slog.Logger
}

// WithCeiling sets the default cap on exponential delays.
func WithCeiling(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d > 0 {
			c.Ceiling = d
		}
	})
}

// WithClock sets the time source used for due times.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(c *Config) {
		if now != nil {
			c.Clock = now
		}
	})
}

// WithEmitter sets where retry and final failure events go.
func WithEmitter(e core.Emitter) Option {
	return optionFunc(func(c *Config) {
		c.Emitter = e
	})
}

// WithLogger sets the coordinator logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Config) {
		c.Logger = l
	})
}
