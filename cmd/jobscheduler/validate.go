package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jdziat/simple-cron-jobs/pkg/command"
	"github.com/jdziat/simple-cron-jobs/pkg/jobfile"
	"github.com/jdziat/simple-cron-jobs/pkg/scheduler"
	"github.com/jdziat/simple-cron-jobs/pkg/storage"
)

var errInvalidJobFile = errors.New("job file has problems")

func newValidateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a job file's schedules, commands and dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := flags.logger("warn", "text")
			return validateFile(cmd.Context(), cmd.OutOrStdout(), args[0], scheduler.WithLogger(logger))
		},
	}
}

// validateFile loads path into a throwaway scheduler and reports every job
// that fails validation, names an unknown command, or has a circular or
// dangling dependency.
func validateFile(ctx context.Context, out io.Writer, path string, opts ...scheduler.Option) error {
	specs, err := jobfile.Load(path)
	if err != nil {
		return err
	}

	store, err := storage.OpenMemory(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := command.NewRegistry()
	if err := command.RegisterBuiltins(reg); err != nil {
		return err
	}
	sched := scheduler.New(store, append(opts, scheduler.WithCommands(reg))...)

	problems := 0
	for _, spec := range specs {
		if _, _, err := sched.CreateJob(ctx, spec); err != nil {
			fmt.Fprintf(out, "INVALID  %-30s  %v\n", spec.ID, err)
			problems++
			continue
		}
		if _, _, err := reg.Resolve(spec.Command); err != nil {
			fmt.Fprintf(out, "INVALID  %-30s  %v\n", spec.ID, err)
			problems++
		}
	}

	depErrs, err := sched.ValidateDependencies(ctx)
	if err != nil {
		return err
	}
	for _, de := range depErrs {
		fmt.Fprintf(out, "DEPENDS  %-30s  %v\n", de.JobID, de)
		problems++
	}

	if problems > 0 {
		return fmt.Errorf("%w: %d in %s", errInvalidJobFile, problems, path)
	}
	fmt.Fprintf(out, "%s: %d jobs OK\n", path, len(specs))
	return nil
}
