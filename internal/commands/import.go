package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/importer"
)

func newImportCommand(opts *rootOptions) *cobra.Command {
	var account, format string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import bank CSV files waiting in import/",
		Long: `Parses every CSV file in the import/ directory, records new
transactions against a bank account and moves each file to
import/processed/. Rows seen in earlier imports are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if format == "" {
				format = a.Config.Import.Format
			}
			parser := importer.DefaultRegistry().Get(format)
			if parser == nil {
				return fmt.Errorf("unknown import format %q", format)
			}

			acct, err := findBankAccount(ctx, a, account)
			if err != nil {
				return err
			}

			ing, index, err := a.Ingester()
			if err != nil {
				return err
			}
			defer index.Close()

			results, err := ing.ImportDir(ctx, a.Dir, acct.ID, parser)
			for _, res := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d recorded, %d skipped\n", res.File, len(res.Recorded), res.Skipped)
			}
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No files to import")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "bank account ID, name or mask")
	cmd.Flags().StringVar(&format, "format", "", "file format: chase or generic (default from ledger.yaml)")
	return cmd
}
