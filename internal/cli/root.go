package cli

// root.go defines the batch importer command tree:
//
//	backoffice-batch
//	├── run            import the input directory once
//	├── schedule       import on a cron schedule until stopped
//	└── rules
//	    ├── export     write a supplier's rules as CSV or YAML
//	    └── check      validate a YAML rule file
//
// Flags override the matching environment settings.

import (
	"context"

	"github.com/spf13/cobra"
)

// options holds the persistent flags shared by every command.
type options struct {
	rulesFile    string
	encoding     string
	inputDir     string
	processedDir string
	errorDir     string
	dryRun       bool
	verbose      bool
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "backoffice-batch",
		Short: "Import supplier stock and price files",
		Long: `backoffice-batch imports supplier stock and price files from a directory.

Files are named <supplier>_<stock|zaiko|price|tanka>_<anything>.csv or .xlsx.
Each file is mapped with the supplier's rules, validated and staged. Imported
files move to the processed directory; failed files move to the error
directory with an .error.log beside them.

Example usage:
  backoffice-batch run                                  # import once
  backoffice-batch run --dry-run --rules-file rules.yaml
  backoffice-batch schedule --cron "0 */10 * * * *"
  backoffice-batch rules export --supplier acme --format yaml`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.rulesFile, "rules-file", "", "YAML rule file used instead of the database rule tables")
	pf.StringVar(&opts.encoding, "encoding", "", "force the CSV encoding (utf-8, shift_jis, euc-jp, utf-16)")
	pf.StringVar(&opts.inputDir, "input-dir", "", "directory scanned for supplier files")
	pf.StringVar(&opts.processedDir, "processed-dir", "", "directory imported files move to")
	pf.StringVar(&opts.errorDir, "error-dir", "", "directory failed files move to")
	pf.BoolVar(&opts.dryRun, "dry-run", false, "import into memory and leave files in place")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newRunCommand(opts),
		newScheduleCommand(opts),
		newRulesCommand(opts),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
