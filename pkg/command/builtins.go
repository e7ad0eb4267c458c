package command

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// BuiltinOption configures RegisterBuiltins.
type BuiltinOption interface {
	applyBuiltin(*builtinConfig)
}

type builtinOptionFunc func(*builtinConfig)

func (f builtinOptionFunc) applyBuiltin(c *builtinConfig) { f(c) }

type builtinConfig struct {
	workScale         float64
	healthFailureRate float64
}

// WithWorkScale multiplies the simulated work time of the sample commands.
// Zero makes them return immediately.
func WithWorkScale(scale float64) BuiltinOption {
	return builtinOptionFunc(func(c *builtinConfig) {
		if scale >= 0 {
			c.workScale = scale
		}
	})
}

// WithHealthCheckFailureRate sets the probability in [0,1] that the sample
// health_check command fails.
func WithHealthCheckFailureRate(p float64) BuiltinOption {
	return builtinOptionFunc(func(c *builtinConfig) {
		if p >= 0 && p <= 1 {
			c.healthFailureRate = p
		}
	})
}

type echoArgs struct {
	Message *string `json:"message"`
}

type sleepArgs struct {
	Duration *int64 `json:"duration"`
}

type calculateArgs struct {
	A         *float64 `json:"a"`
	B         *float64 `json:"b"`
	Operation string   `json:"operation"`
}

// sample describes a command that simulates work and reports what it did.
type sample struct {
	name     string
	work     time.Duration
	params   [][2]string // name, default
	format   string
	failable bool
}

var samples = []sample{
	{"api_call", 500 * time.Millisecond, [][2]string{{"endpoint", "https://api.example.com/data"}, {"method", "GET"}},
		"API call to %s with method %s completed", false},
	{"data_processing", 2 * time.Second, [][2]string{{"dataset", "default"}, {"operation", "process"}},
		"Data processing completed for %s with operation %s", false},
	{"backup", 3 * time.Second, [][2]string{{"source", "/data"}, {"destination", "/backup"}},
		"Backup completed from %s to %s", false},
	{"cleanup", 1500 * time.Millisecond, [][2]string{{"path", "/tmp"}, {"maxAge", "24h"}},
		"Cleanup completed for %s (files older than %s)", false},
	{"health_check", 500 * time.Millisecond, [][2]string{{"service", "default"}},
		"Health check passed for service %s", true},
	{"database_maintenance", 4 * time.Second, [][2]string{{"operation", "optimize"}, {"database", "main"}},
		"Database maintenance completed: %s on %s", false},
	{"report_generation", 2500 * time.Millisecond, [][2]string{{"type", "daily"}, {"format", "pdf"}},
		"Report generated: %s report in %s format", false},
	{"data_sync", 3 * time.Second, [][2]string{{"source", "local"}, {"destination", "remote"}},
		"Data synchronized from %s to %s", false},
	{"email_notification", time.Second, [][2]string{{"recipient", "admin@example.com"}, {"subject", "Job Notification"}},
		"Email sent to %s with subject %q", false},
}

// RegisterBuiltins registers echo, sleep and calculate plus the sample
// operational commands (backup, cleanup, health_check and so on).
func RegisterBuiltins(r *Registry, opts ...BuiltinOption) error {
	cfg := builtinConfig{workScale: 1, healthFailureRate: 0.1}
	for _, opt := range opts {
		opt.applyBuiltin(&cfg)
	}

	builtins := map[string]Handler{
		"echo":      MustFunc(echo),
		"sleep":     MustFunc(sleep),
		"calculate": MustFunc(calculate),
	}
	for _, s := range samples {
		builtins[s.name] = s.handler(cfg)
	}
	for name, h := range builtins {
		if err := r.Register(name, h); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

func echo(a echoArgs) (string, error) {
	msg := "Hello World"
	if a.Message != nil {
		msg = *a.Message
	}
	return "Echo: " + msg, nil
}

func sleep(ctx context.Context, a sleepArgs) (string, error) {
	ms := int64(1000)
	if a.Duration != nil {
		ms = *a.Duration
	}
	if ms < 0 {
		return "", fmt.Errorf("duration must not be negative")
	}
	if err := wait(ctx, time.Duration(ms)*time.Millisecond); err != nil {
		return "", err
	}
	return fmt.Sprintf("Slept for %dms", ms), nil
}

func calculate(a calculateArgs) (float64, error) {
	x, y := 1.0, 2.0
	if a.A != nil {
		x = *a.A
	}
	if a.B != nil {
		y = *a.B
	}
	switch op := a.Operation; op {
	case "", "add":
		return x + y, nil
	case "subtract":
		return x - y, nil
	case "multiply":
		return x * y, nil
	case "divide":
		if y == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return x / y, nil
	default:
		return 0, fmt.Errorf("unknown operation: %s", op)
	}
}

func (s sample) handler(cfg builtinConfig) Handler {
	return HandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
		values := make([]any, len(s.params))
		for i, p := range s.params {
			values[i] = p[1]
			if v, ok := args[p[0]]; ok && v != nil {
				values[i] = fmt.Sprint(v)
			}
		}
		if err := wait(ctx, time.Duration(float64(s.work)*cfg.workScale)); err != nil {
			return nil, err
		}
		if s.failable && rand.Float64() < cfg.healthFailureRate {
			return nil, fmt.Errorf("health check failed for service %s", values[0])
		}
		return fmt.Sprintf(s.format, values...), nil
	})
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
