package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/model"
)

func newAccountCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage the chart of accounts",
	}
	cmd.AddCommand(
		newAccountCreateCommand(opts),
		newAccountListCommand(opts),
		newAccountShowCommand(opts),
		newAccountArchiveCommand(opts),
		newTrialBalanceCommand(opts),
	)
	return cmd
}

func newAccountCreateCommand(opts *rootOptions) *cobra.Command {
	var p accounts.CreateParams
	var accountType string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add an account to the chart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			p.Type = model.AccountType(accountType)
			acct, err := a.Accounts.Create(ctx, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created account %s %s (%s)\n", acct.Code, acct.Name, acct.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&p.Code, "code", "", "account code (required)")
	cmd.Flags().StringVar(&p.Name, "name", "", "account name (required)")
	cmd.Flags().StringVar(&accountType, "type", "", "asset, liability, equity, revenue or expense (required)")
	cmd.Flags().StringVar(&p.Category, "category", "", "grouping within the type")
	cmd.Flags().StringVar(&p.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newAccountListCommand(opts *rootOptions) *cobra.Command {
	var accountType string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts with their balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var list []model.Account
			if accountType != "" {
				list, err = a.Accounts.ByType(ctx, model.AccountType(accountType))
			} else {
				list, err = a.Accounts.List(ctx)
			}
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), list)
			}

			tw := newTable(cmd.OutOrStdout(), "CODE", "NAME", "TYPE", "STATUS", "BALANCE")
			for _, acct := range list {
				row(tw, acct.Code, acct.Name, acct.Type, acct.Status, acct.Balance)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&accountType, "type", "", "only accounts of this type")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newAccountShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|code>",
		Short: "Show one account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			acct, err := a.Accounts.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), acct)
		},
	}
}

func newAccountArchiveCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <id|code>",
		Short: "Stop an account from accepting postings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			acct, err := a.Accounts.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			if _, err := a.Accounts.Archive(ctx, acct.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived account %s %s\n", acct.Code, acct.Name)
			return nil
		},
	}
}

func newTrialBalanceCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trial-balance",
		Short: "Print the trial balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tb, err := a.Accounts.TrialBalance(ctx)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout(), "CODE", "NAME", "DEBIT", "CREDIT")
			for _, r := range tb.Rows {
				row(tw, r.Account.Code, r.Account.Name, r.Debit, r.Credit)
			}
			row(tw, "", "TOTAL", tb.Debits, tb.Credits)
			if err := tw.Flush(); err != nil {
				return err
			}
			if !tb.Balanced() {
				return fmt.Errorf("trial balance is out of balance by %s", tb.Debits.Sub(tb.Credits))
			}
			return nil
		},
	}
}
