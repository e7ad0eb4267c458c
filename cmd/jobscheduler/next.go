package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jdziat/simple-cron-jobs/pkg/jobfile"
	"github.com/jdziat/simple-cron-jobs/pkg/schedule"
)

// now is replaced in tests.
var now = time.Now

func newNextCmd() *cobra.Command {
	var (
		timezone string
		count    int
	)
	cmd := &cobra.Command{
		Use:   "next <file>",
		Short: "Show when each enabled job in a file fires next",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := time.LoadLocation(timezone)
			if err != nil {
				return fmt.Errorf("timezone: %w", err)
			}
			return printUpcoming(cmd.OutOrStdout(), args[0], loc, count)
		},
	}
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "Zone schedules are evaluated in")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Show at most this many jobs (0 for all)")
	return cmd
}

func printUpcoming(out io.Writer, path string, loc *time.Location, count int) error {
	specs, err := jobfile.Load(path)
	if err != nil {
		return err
	}

	rules := schedule.NewEngine(schedule.WithLocation(loc))
	for _, spec := range specs {
		if spec.Enabled != nil && !*spec.Enabled {
			continue
		}
		if err := rules.Add(spec.ID, spec.Schedule); err != nil {
			return fmt.Errorf("job %q: %w", spec.ID, err)
		}
	}

	fires := rules.Upcoming(now(), count)
	if len(fires) == 0 {
		fmt.Fprintln(out, "No enabled jobs.")
		return nil
	}

	fmt.Fprintf(out, "%-30s  %-25s  %s\n", "JOB", "NEXT FIRE", "IN")
	fmt.Fprintf(out, "%-30s  %-25s  %s\n", "---", "---------", "--")
	for _, f := range fires {
		at := f.At.In(loc)
		fmt.Fprintf(out, "%-30s  %-25s  %s\n", f.JobID, at.Format("Mon 2006-01-02 15:04 MST"), humanize.RelTime(at, now(), "ago", "from now"))
	}
	return nil
}
