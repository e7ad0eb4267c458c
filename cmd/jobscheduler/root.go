package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jdziat/simple-cron-jobs/pkg/logging"
)

type rootFlags struct {
	debug     bool
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:          "jobscheduler",
		Short:        "Cron-style job scheduler with dependencies, workers and retries",
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Shorthand for --log-level=debug")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides JOBSCHEDULER_LOG_LEVEL")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Log format (text, json); overrides JOBSCHEDULER_LOG_FORMAT")

	root.AddCommand(
		newServeCmd(&flags),
		newValidateCmd(&flags),
		newNextCmd(),
	)
	return root
}

// level resolves the effective log level, falling back to def when no flag
// was given.
func (f *rootFlags) level(def string) string {
	switch {
	case f.debug:
		return "debug"
	case f.logLevel != "":
		return f.logLevel
	default:
		return def
	}
}

func (f *rootFlags) format(def string) string {
	if f.logFormat != "" {
		return f.logFormat
	}
	return def
}

func (f *rootFlags) logger(defLevel, defFormat string) *slog.Logger {
	return logging.NewLogger(logging.ParseLevel(f.level(defLevel)), f.format(defFormat))
}
