package scheduler

import (
	"log/slog"
	"time"

	"github.com/jdziat/simple-cron-jobs/pkg/command"
	"github.com/jdziat/simple-cron-jobs/pkg/core"
	"github.com/jdziat/simple-cron-jobs/pkg/depgraph"
	"github.com/jdziat/simple-cron-jobs/pkg/execution"
	"github.com/jdziat/simple-cron-jobs/pkg/retry"
	"github.com/jdziat/simple-cron-jobs/pkg/schedule"
	"github.com/jdziat/simple-cron-jobs/pkg/worker"
)

// Default periods of the three loop tasks.
const (
	DefaultTickInterval   = 10 * time.Second
	DefaultRetryInterval  = 5 * time.Second
	DefaultHealthInterval = 30 * time.Second
)

// Option configures a Scheduler.
type Option interface {
	ApplyScheduler(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) ApplyScheduler(c *Config) { f(c) }

// Config holds scheduler configuration.
type Config struct {
	TickInterval   time.Duration
	RetryInterval  time.Duration
	HealthInterval time.Duration

	Location   *time.Location
	PollWindow time.Duration
	Tolerance  time.Duration

	Freshness    time.Duration
	RetryCeiling time.Duration
	// Retention prunes finished executions older than this on the health
	// tick. Zero keeps history forever.
	Retention time.Duration

	// Workers replaces the default worker set when non-nil.
	Workers          []worker.Spec
	HealthTimeout    time.Duration
	ExecutionTimeout time.Duration
	StorageRetry     *execution.RetryConfig

	Commands  *command.Registry
	Listeners []core.Emitter
	Clock     func() time.Time
	Logger    *slog.Logger
}

func defaultConfig() Config {
	return Config{
		TickInterval:   DefaultTickInterval,
		RetryInterval:  DefaultRetryInterval,
		HealthInterval: DefaultHealthInterval,
		Location:       time.UTC,
		PollWindow:     schedule.DefaultPollWindow,
		Tolerance:      schedule.DefaultTolerance,
		Freshness:      depgraph.DefaultFreshness,
		RetryCeiling:   retry.DefaultCeiling,
		HealthTimeout:  worker.DefaultHealthTimeout,
		Clock:          time.Now,
	}
}

func positive(d time.Duration, set func(time.Duration)) {
	if d > 0 {
		set(d)
	}
}

// WithTickInterval sets how often due jobs are evaluated.
func WithTickInterval(d time.Duration) Option {
	return optionFunc(func(c *Config) { positive(d, func(d time.Duration) { c.TickInterval = d }) })
}

// WithRetryInterval sets how often the retry queue is drained.
func WithRetryInterval(d time.Duration) Option {
	return optionFunc(func(c *Config) { positive(d, func(d time.Duration) { c.RetryInterval = d }) })
}

// WithHealthInterval sets how often worker health is checked.
func WithHealthInterval(d time.Duration) Option {
	return optionFunc(func(c *Config) { positive(d, func(d time.Duration) { c.HealthInterval = d }) })
}

// WithLocation sets the zone schedules are evaluated in.
func WithLocation(loc *time.Location) Option {
	return optionFunc(func(c *Config) {
		if loc != nil {
			c.Location = loc
		}
	})
}

// WithPollWindow sets how far back each tick looks for fires.
func WithPollWindow(d time.Duration) Option {
	return optionFunc(func(c *Config) { positive(d, func(d time.Duration) { c.PollWindow = d }) })
}

// WithTolerance sets how close to now a fire must be to count as due.
func WithTolerance(d time.Duration) Option {
	return optionFunc(func(c *Config) { positive(d, func(d time.Duration) { c.Tolerance = d }) })
}

// WithFreshness sets how recent a dependency's completion must be.
func WithFreshness(d time.Duration) Option {
	return optionFunc(func(c *Config) { positive(d, func(d time.Duration) { c.Freshness = d }) })
}

// WithRetryCeiling caps exponential retry delays for policies without MaxDelay.
func WithRetryCeiling(d time.Duration) Option {
	return optionFunc(func(c *Config) { positive(d, func(d time.Duration) { c.RetryCeiling = d }) })
}

// WithRetention enables pruning of finished executions older than d.
func WithRetention(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d >= 0 {
			c.Retention = d
		}
	})
}

// WithWorkers replaces the default workers. Pass no specs for an empty pool.
func WithWorkers(specs ...worker.Spec) Option {
	return optionFunc(func(c *Config) {
		c.Workers = append([]worker.Spec{}, specs...)
	})
}

// WithHealthTimeout sets how long a worker may go without a heartbeat.
func WithHealthTimeout(d time.Duration) Option {
	return optionFunc(func(c *Config) { positive(d, func(d time.Duration) { c.HealthTimeout = d }) })
}

// WithExecutionTimeout bounds each command invocation.
func WithExecutionTimeout(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d >= 0 {
			c.ExecutionTimeout = d
		}
	})
}

// WithStorageRetry configures retries of execution writes.
func WithStorageRetry(cfg execution.RetryConfig) Option {
	return optionFunc(func(c *Config) {
		c.StorageRetry = &cfg
	})
}

// WithCommands uses reg instead of a fresh empty registry.
func WithCommands(reg *command.Registry) Option {
	return optionFunc(func(c *Config) {
		c.Commands = reg
	})
}

// WithListener receives every event synchronously, before channel subscribers.
// Listeners must not block.
func WithListener(l core.Emitter) Option {
	return optionFunc(func(c *Config) {
		if l != nil {
			c.Listeners = append(c.Listeners, l)
		}
	})
}

// WithClock sets the time source shared by every component.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(c *Config) {
		if now != nil {
			c.Clock = now
		}
	})
}

// WithLogger sets the logger. Components log under their own "component" key.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Config) {
		c.Logger = l
	})
}
