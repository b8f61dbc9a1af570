package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/tax"
)

func newTaxCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tax",
		Short: "Manage tax configs",
	}
	cmd.AddCommand(newTaxAddCommand(opts), newTaxListCommand(opts), newTaxComputeCommand(opts))
	return cmd
}

func newTaxAddCommand(opts *rootOptions) *cobra.Command {
	var p tax.Params
	var rate string

	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Add a tax config",
		Example: `  ledger tax add --name "Texas sales tax" --rate 0.0825 --liability 2200 --expense 5900`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if p.Rate, err = parseAmount(rate); err != nil {
				return err
			}

			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg, err := a.Tax.Create(ctx, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added tax config %s (%s)\n", cfg.Name, cfg.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&p.Name, "name", "", "name (required)")
	cmd.Flags().StringVar(&rate, "rate", "", "rate as a fraction, e.g. 0.0825 (required)")
	cmd.Flags().StringVar(&p.LiabilityAccountID, "liability", "", "liability account code or ID (required)")
	cmd.Flags().StringVar(&p.ExpenseAccountID, "expense", "", "expense account code or ID (required)")
	cmd.Flags().StringVar(&p.Jurisdiction, "jurisdiction", "", "jurisdiction")
	for _, f := range []string{"name", "rate", "liability", "expense"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newTaxListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tax configs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.Tax.List(ctx)
			if err != nil {
				return err
			}
			codes, err := a.AccountCodes(ctx)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "NAME", "RATE", "LIABILITY", "EXPENSE", "JURISDICTION")
			for _, c := range list {
				row(tw, c.ID, c.Name, c.Rate.String(), codes[c.LiabilityAccountID], codes[c.ExpenseAccountID], dash(c.Jurisdiction))
			}
			return tw.Flush()
		},
	}
}

func newTaxComputeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compute <tax-config-id> <base>",
		Short: "Show the tax lines for a base amount without posting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := parseAmount(args[1])
			if err != nil {
				return err
			}

			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			lines, err := a.Tax.ComputeTaxLines(ctx, args[0], base)
			if err != nil {
				return err
			}
			codes, err := a.AccountCodes(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Tax: %s\n", lines.Amount.StringFixed(model.CurrencyPlaces))
			tw := newTable(out, "ACCOUNT", "DEBIT", "CREDIT")
			row(tw, codes[lines.Expense.AccountID], lines.Expense.Debit, lines.Expense.Credit)
			row(tw, codes[lines.Liability.AccountID], lines.Liability.Debit, lines.Liability.Credit)
			return tw.Flush()
		},
	}
}
