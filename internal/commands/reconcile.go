package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/bank"
	"github.com/cleared-dev/ledger/internal/model"
)

func newReconcileCommand(opts *rootOptions) *cobra.Command {
	var (
		category, account string
		all, dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile [transaction-id]",
		Short: "Reconcile bank transactions against the ledger",
		Long: `Categorizes a bank transaction, posts the matching journal entry and
marks the transaction reconciled. Without --category the first matching
rule wins, then category keywords. With --all every unreconciled
transaction is tried, oldest first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("give a transaction ID or --all")
			}
			if all && category != "" {
				return errors.New("--category applies to a single transaction")
			}

			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()

			if !all {
				if dryRun {
					s, err := a.Reconcile.Suggest(ctx, args[0])
					if err != nil {
						return err
					}
					if !s.Matched {
						fmt.Fprintf(out, "%s: no category matches\n", args[0])
						return nil
					}
					fmt.Fprintf(out, "%s: %s (%s)\n", args[0], s.Decision.Category.Name, s.Decision.Source)
					return nil
				}
				txn, err := a.Reconcile.Reconcile(ctx, args[0], category)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Reconciled %s as %s (entry %s)\n", txn.ID, txn.Category, txn.JournalEntryID)
				return nil
			}

			var f bank.TransactionFilter
			if account != "" {
				acct, err := findBankAccount(ctx, a, account)
				if err != nil {
					return err
				}
				f.BankAccountID = acct.ID
			}
			report, err := a.Reconcile.ReconcileAll(ctx, f)
			for _, r := range report.Reconciled {
				fmt.Fprintf(out, "Reconciled %s %s %s as %s (entry %s)\n",
					r.Transaction.ID, r.Transaction.Merchant,
					r.Transaction.Amount.StringFixed(model.CurrencyPlaces),
					r.Transaction.Category, r.Entry.ID)
			}
			for _, id := range report.Uncategorized {
				fmt.Fprintf(out, "Uncategorized %s\n", id)
			}
			fmt.Fprintf(out, "%d reconciled, %d need a category\n", len(report.Reconciled), len(report.Uncategorized))
			return err
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "expense category, overriding rules")
	cmd.Flags().BoolVar(&all, "all", false, "reconcile every unreconciled transaction")
	cmd.Flags().StringVar(&account, "account", "", "with --all, only this bank account")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the category that would be used")
	return cmd
}
