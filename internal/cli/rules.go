package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/backoffice/internal/core"
	"github.com/JonMunkholm/backoffice/internal/rules"
)

func newRulesCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Export and check mapping rules",
	}
	cmd.AddCommand(newRulesExportCommand(opts), newRulesCheckCommand())
	return cmd
}

func newRulesExportCommand(opts *options) *cobra.Command {
	var (
		supplier string
		format   string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a supplier's rules as CSV or YAML",
		Long: `Write mapping rules as CSV (basic rules, every supplier when --supplier is
empty) or as a YAML rule file (basic and advanced rules of one supplier).

A YAML export can be passed back with --rules-file. With --output set to a
directory the file gets its default name, mapping_rules_<supplier>_<date>.<ext>.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := opts.open(ctx, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer e.Close()

			var buf bytes.Buffer
			name, err := e.svc.ExportBasicRules(ctx, supplier, format, &buf)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = buf.WriteTo(cmd.OutOrStdout())
				return err
			}

			path := output
			if info, err := os.Stat(output); err == nil && info.IsDir() {
				path = filepath.Join(output, name)
			}
			if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			e.logger.Info("rules exported", "path", path, "bytes", buf.Len())
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&supplier, "supplier", "", "supplier key")
	f.StringVar(&format, "format", core.ExportCSV, "csv or yaml")
	f.StringVarP(&output, "output", "o", "", "file or directory to write, stdout when empty")
	return cmd
}

func newRulesCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <rules.yaml>",
		Short: "Validate a YAML rule file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := rules.LoadFile(args[0])
			if err != nil {
				return err
			}

			suppliers, err := store.Suppliers(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range suppliers {
				advanced, err := store.AdvancedRules(ctx, s.Supplier)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %d basic rules, %d advanced rules\n", s.Supplier, s.RuleCount, len(advanced))
			}
			fmt.Fprintf(out, "%s is valid\n", args[0])
			return nil
		},
	}
}
