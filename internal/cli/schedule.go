package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/backoffice/internal/core"
)

func newScheduleCommand(opts *options) *cobra.Command {
	var spec string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Import the input directory on a cron schedule",
		Long: `Import the input directory once at start-up, then on a cron schedule until
SIGINT or SIGTERM. The schedule takes an optional seconds field, for example
"0 */5 * * * *" for every five minutes. A run that is still going when the
next one is due is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			e, err := opts.open(ctx, cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			defer e.Close()

			runner, err := opts.batchRunner(e)
			if err != nil {
				return err
			}

			if spec == "" {
				spec = e.cfg.Batch.Schedule
			}
			sched, err := core.NewScheduler(runner, spec, e.logger)
			if err != nil {
				return err
			}

			// Run returns once the in-flight batch, if any, has finished.
			if err := sched.Run(ctx); err != nil {
				return err
			}
			if last, ok := sched.LastResult(); ok {
				e.logger.Info("last batch run",
					"run_id", last.RunID,
					"success", last.Success,
					"processed_count", last.ProcessedCount,
					"error_count", last.ErrorCount,
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&spec, "cron", "", "cron schedule, overrides BATCH_SCHEDULE")
	return cmd
}
