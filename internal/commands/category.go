package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/rules"
)

func newCategoryCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Manage expense categories",
	}
	cmd.AddCommand(newCategoryAddCommand(opts), newCategoryListCommand(opts))
	return cmd
}

func newCategoryAddCommand(opts *rootOptions) *cobra.Command {
	var p rules.CategoryParams

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an expense category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			cat, err := a.Rules.CreateCategory(ctx, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added category %s (%s)\n", cat.Name, cat.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&p.Name, "name", "", "category name (required)")
	cmd.Flags().StringVar(&p.AccountID, "account", "", "GL account code or ID (required)")
	cmd.Flags().BoolVar(&p.TaxDeductible, "deductible", false, "mark as tax deductible")
	cmd.Flags().StringSliceVar(&p.Keywords, "keyword", nil, "merchant keyword (repeatable)")
	cmd.Flags().StringVar(&p.TaxConfigID, "tax-config", "", "tax config applied on reconciliation")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func newCategoryListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List expense categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.Rules.ListCategories(ctx)
			if err != nil {
				return err
			}
			codes, err := a.AccountCodes(ctx)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout(), "NAME", "ACCOUNT", "DEDUCTIBLE", "TAX", "KEYWORDS")
			for _, c := range list {
				row(tw, c.Name, codes[c.AccountID], c.TaxDeductible, dash(c.TaxConfigID), dash(strings.Join(c.Keywords, ",")))
			}
			return tw.Flush()
		},
	}
}
