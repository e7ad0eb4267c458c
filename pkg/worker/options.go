// Package worker provides the worker pool that executions are dispatched to.
package worker

import (
	"log/slog"
	"time"

	"github.com/jdziat/simple-cron-jobs/pkg/core"
)

// PoolOption configures a Pool.
type PoolOption interface {
	ApplyPool(*PoolConfig)
}

type poolOptionFunc func(*PoolConfig)

func (f poolOptionFunc) ApplyPool(c *PoolConfig) { f(c) }

// PoolConfig holds pool configuration.
type PoolConfig struct {
	Workers       []Spec
	HealthTimeout time.Duration
	Clock         func() time.Time
	Emitter       core.Emitter
	Logger        *slog.Logger
}

// WithWorkers replaces the default workers. Pass no specs for an empty pool.
func WithWorkers(specs ...Spec) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		c.Workers = append([]Spec{}, specs...)
	})
}

// WithHealthTimeout sets how long a worker may go without a heartbeat.
func WithHealthTimeout(d time.Duration) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		if d > 0 {
			c.HealthTimeout = d
		}
	})
}

// WithClock sets the time source used for heartbeats.
func WithClock(now func() time.Time) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		if now != nil {
			c.Clock = now
		}
	})
}

// WithEmitter sets where health change events go.
func WithEmitter(e core.Emitter) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		c.Emitter = e
	})
}

// WithLogger sets the pool logger.
func WithLogger(l *slog.Logger) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		c.Logger = l
	})
}
