// Package config loads scheduler settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/jdziat/simple-cron-jobs/pkg/logging"
	"github.com/jdziat/simple-cron-jobs/pkg/scheduler"
)

// Prefix is prepended to every variable name.
const Prefix = "JOBSCHEDULER_"

// Config is the process configuration for cmd/jobscheduler.
type Config struct {
	ListenAddr      string        `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"text"`
	AutoStart       bool          `env:"AUTO_START" envDefault:"true"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	TickInterval   time.Duration `env:"TICK_INTERVAL" envDefault:"10s"`
	RetryInterval  time.Duration `env:"RETRY_INTERVAL" envDefault:"5s"`
	HealthInterval time.Duration `env:"HEALTH_INTERVAL" envDefault:"30s"`
	HealthTimeout  time.Duration `env:"HEARTBEAT_TIMEOUT" envDefault:"30s"`

	PollWindow   time.Duration `env:"POLL_WINDOW" envDefault:"60s"`
	Tolerance    time.Duration `env:"FIRE_TOLERANCE" envDefault:"30s"`
	Freshness    time.Duration `env:"DEPENDENCY_FRESHNESS" envDefault:"24h"`
	RetryCeiling time.Duration `env:"RETRY_CEILING" envDefault:"300s"`
	Retention    time.Duration `env:"EXECUTION_RETENTION" envDefault:"0s"`
	Timezone     string        `env:"TIMEZONE" envDefault:"UTC"`

	MetricsInterval time.Duration `env:"METRICS_INTERVAL" envDefault:"15s"`
	JobsFile        string        `env:"JOBS_FILE"`
	// SampleWorkScale multiplies the simulated duration of the sample commands.
	SampleWorkScale float64 `env:"SAMPLE_WORK_SCALE" envDefault:"1"`
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(environ())
}

// LoadFrom reads the configuration from vars, keyed by full variable name.
func LoadFrom(vars map[string]string) (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Prefix: Prefix, Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func environ() map[string]string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return vars
}

// Validate checks ranges and cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"TICK_INTERVAL":     c.TickInterval,
		"RETRY_INTERVAL":    c.RetryInterval,
		"HEALTH_INTERVAL":   c.HealthInterval,
		"HEARTBEAT_TIMEOUT": c.HealthTimeout,
		"POLL_WINDOW":       c.PollWindow,
		"FIRE_TOLERANCE":    c.Tolerance,
		"RETRY_CEILING":     c.RetryCeiling,
		"METRICS_INTERVAL":  c.MetricsInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s%s must be positive", Prefix, name))
		}
	}
	if c.TickInterval >= c.Tolerance {
		errs = append(errs, fmt.Errorf("%sTICK_INTERVAL (%s) must be shorter than %sFIRE_TOLERANCE (%s)",
			Prefix, c.TickInterval, Prefix, c.Tolerance))
	}
	if c.Freshness <= 0 {
		errs = append(errs, fmt.Errorf("%sDEPENDENCY_FRESHNESS must be positive", Prefix))
	}
	if c.Retention < 0 {
		errs = append(errs, fmt.Errorf("%sEXECUTION_RETENTION must not be negative", Prefix))
	}
	if c.SampleWorkScale < 0 {
		errs = append(errs, fmt.Errorf("%sSAMPLE_WORK_SCALE must not be negative", Prefix))
	}
	if _, err := logging.LookupLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%sLOG_LEVEL: %w", Prefix, err))
	}
	if !logging.ValidFormat(c.LogFormat) {
		errs = append(errs, fmt.Errorf("%sLOG_FORMAT: unknown format %q", Prefix, c.LogFormat))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("%sTIMEZONE: %w", Prefix, err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Location resolves Timezone. Validate has already checked it loads.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SchedulerOptions translates the timing settings into scheduler options.
func (c Config) SchedulerOptions() []scheduler.Option {
	return []scheduler.Option{
		scheduler.WithTickInterval(c.TickInterval),
		scheduler.WithRetryInterval(c.RetryInterval),
		scheduler.WithHealthInterval(c.HealthInterval),
		scheduler.WithHealthTimeout(c.HealthTimeout),
		scheduler.WithPollWindow(c.PollWindow),
		scheduler.WithTolerance(c.Tolerance),
		scheduler.WithFreshness(c.Freshness),
		scheduler.WithRetryCeiling(c.RetryCeiling),
		scheduler.WithRetention(c.Retention),
		scheduler.WithLocation(c.Location()),
	}
}
