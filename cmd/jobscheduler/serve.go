package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jdziat/simple-cron-jobs/pkg/api"
	"github.com/jdziat/simple-cron-jobs/pkg/command"
	"github.com/jdziat/simple-cron-jobs/pkg/config"
	"github.com/jdziat/simple-cron-jobs/pkg/jobfile"
	"github.com/jdziat/simple-cron-jobs/pkg/metrics"
	"github.com/jdziat/simple-cron-jobs/pkg/scheduler"
	"github.com/jdziat/simple-cron-jobs/pkg/storage"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var (
		addr     string
		jobsFile string
		noStart  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and its HTTP API",
		Long: "Run the scheduler and its HTTP API. Settings come from JOBSCHEDULER_* " +
			"environment variables; flags override them.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ListenAddr = addr
			}
			if jobsFile != "" {
				cfg.JobsFile = jobsFile
			}
			if noStart {
				cfg.AutoStart = false
			}
			cfg.LogLevel = flags.level(cfg.LogLevel)
			cfg.LogFormat = flags.format(cfg.LogFormat)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, flags.logger(cfg.LogLevel, cfg.LogFormat))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address; overrides JOBSCHEDULER_HTTP_ADDR")
	cmd.Flags().StringVar(&jobsFile, "jobs", "", "YAML or HCL job file to load at startup; overrides JOBSCHEDULER_JOBS_FILE")
	cmd.Flags().BoolVar(&noStart, "no-start", false, "Serve the API without starting the scheduler loop")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, err := storage.OpenMemory(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	reg := command.NewRegistry()
	if err := command.RegisterBuiltins(reg, command.WithWorkScale(cfg.SampleWorkScale)); err != nil {
		return err
	}

	var sched *scheduler.Scheduler
	collector := metrics.NewCollector(
		metrics.StatusSourceFunc(func(ctx context.Context) (*scheduler.SystemStatus, error) {
			return sched.SystemStatus(ctx)
		}),
		metrics.WithSnapshotInterval(cfg.MetricsInterval),
		metrics.WithLogger(logger),
	)

	opts := append(cfg.SchedulerOptions(),
		scheduler.WithCommands(reg),
		scheduler.WithListener(collector),
		scheduler.WithLogger(logger),
	)
	sched = scheduler.New(store, opts...)

	if cfg.JobsFile != "" {
		if err := loadJobs(ctx, sched, cfg.JobsFile, logger); err != nil {
			return err
		}
	}

	if cfg.AutoStart {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	metricsCtx, cancelMetrics := context.WithCancel(ctx)
	defer cancelMetrics()
	go collector.Run(metricsCtx)

	httpServer := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: api.New(sched,
			api.WithLogger(logger),
			api.WithMetricsHandler(collector.Handler()),
			api.WithBaseContext(ctx),
		),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-serveErr:
		logger.Error("server failed", "error", runErr)
	}

	// Stop the scheduler before the HTTP server so in-flight executions finish.
	if sched.Running() {
		if err := sched.Stop(); err != nil {
			logger.Error("scheduler stop error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return runErr
}

// loadJobs creates every job in path. Dependency problems are logged as
// warnings; any other failure aborts startup.
func loadJobs(ctx context.Context, sched *scheduler.Scheduler, path string, logger *slog.Logger) error {
	specs, err := jobfile.Load(path)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		_, warnings, err := sched.CreateJob(ctx, spec)
		if err != nil {
			return fmt.Errorf("%s: job %q: %w", path, spec.ID, err)
		}
		for _, w := range warnings {
			logger.Warn("dependency problem", "job_id", spec.ID, "error", w)
		}
	}
	logger.Info("jobs loaded", "path", path, "count", len(specs))
	return nil
}
