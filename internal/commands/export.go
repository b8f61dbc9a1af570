package commands

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/gitops"
	"github.com/cleared-dev/ledger/internal/journal"
)

func newExportCommand(opts *rootOptions) *cobra.Command {
	var commit bool
	var message string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the books to CSV files in the books directory",
		Long: `Writes the chart of accounts to accounts/chart-of-accounts.csv and
the journal to journal/YYYY/MM/journal.csv. With --commit (or
git.auto_commit in ledger.yaml) the written files are committed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()

			chart, err := a.Accounts.List(ctx)
			if err != nil {
				return err
			}
			if err := accounts.SaveChart(a.Dir, chart); err != nil {
				return err
			}

			entries, err := a.Journal.Collect(ctx, journal.Filter{})
			if err != nil {
				return err
			}
			codes, err := a.AccountCodes(ctx)
			if err != nil {
				return err
			}
			paths, err := journal.WriteMonths(filepath.Join(a.Dir, "journal"), entries, codes)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Exported %d accounts and %d entries in %d journal files\n", len(chart), len(entries), len(paths))

			if !cmd.Flags().Changed("commit") {
				commit = a.Config.Git.AutoCommit && gitops.IsRepo(a.Dir)
			}
			if !commit {
				return nil
			}
			if !gitops.IsRepo(a.Dir) {
				return fmt.Errorf("%s is not a git repository", a.Dir)
			}
			author := gitops.Author{Name: a.Config.Git.AuthorName, Email: a.Config.Git.AuthorEmail}
			hash, err := gitops.Commit(ctx, a.Dir, message, author, "accounts", "journal")
			if errors.Is(err, gitops.ErrNothingToCommit) {
				fmt.Fprintln(out, "Nothing changed since the last export")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Committed %s\n", hash)
			return nil
		},
	}

	cmd.Flags().BoolVar(&commit, "commit", false, "commit the exported files")
	cmd.Flags().StringVar(&message, "message", "export: Update books", "commit message")
	return cmd
}
