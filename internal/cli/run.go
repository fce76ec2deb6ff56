package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/backoffice/internal/core"
)

// errBatchFailed makes the process exit non-zero when any file or row failed.
var errBatchFailed = errors.New("batch finished with errors")

func newRunCommand(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Import every file in the input directory once",
		Long: `Import every supported file in the input directory once.

With --dry-run the rows are mapped, validated and counted in memory only and
the files stay where they are. The command exits non-zero when any file or
row failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := opts.open(ctx, cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			defer e.Close()

			runner, err := opts.batchRunner(e)
			if err != nil {
				return err
			}

			res, err := runner.Run(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				printResult(out, res, opts.dryRun)
			}

			if !res.Success {
				return fmt.Errorf("%w: %d errors", errBatchFailed, res.ErrorCount)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the batch result as JSON")
	return cmd
}

// printResult writes a short human readable report.
func printResult(w io.Writer, res core.BatchResult, dryRun bool) {
	mode := ""
	if dryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(w, "Batch %s%s: %d files, %d rows processed, %d errors in %dms\n",
		res.RunID, mode, len(res.Files), res.ProcessedCount, res.ErrorCount, res.DurationMs)

	for _, f := range res.Files {
		line := fmt.Sprintf("  %-40s %s", f.File, f.Status)
		if f.ImportNo != 0 {
			line += fmt.Sprintf(" import_no=%d", f.ImportNo)
		}
		if f.Error != "" {
			line += " error=" + f.Error
		}
		fmt.Fprintln(w, line)
	}

	for _, e := range res.Errors {
		if e.RowNo > 0 {
			fmt.Fprintf(w, "  ! %s row %d: %s\n", e.File, e.RowNo, e.Message)
		} else {
			fmt.Fprintf(w, "  ! %s: %s\n", e.File, e.Message)
		}
	}
}
