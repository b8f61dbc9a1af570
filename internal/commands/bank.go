package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/app"
	"github.com/cleared-dev/ledger/internal/bank"
	"github.com/cleared-dev/ledger/internal/model"
)

func newBankCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bank",
		Short: "Manage bank accounts and their transactions",
	}
	cmd.AddCommand(
		newBankAccountAddCommand(opts),
		newBankAccountsCommand(opts),
		newBankRecordCommand(opts),
		newBankListCommand(opts),
	)
	return cmd
}

// findBankAccount matches ref against bank account IDs, names and masks.
// An empty ref picks the only bank account, if there is exactly one.
func findBankAccount(ctx context.Context, a *app.App, ref string) (model.BankAccount, error) {
	all, err := a.Bank.ListAccounts(ctx, "")
	if err != nil {
		return model.BankAccount{}, err
	}
	if ref == "" {
		if len(all) == 1 {
			return all[0], nil
		}
		return model.BankAccount{}, fmt.Errorf("%d bank accounts exist; choose one with --account", len(all))
	}
	for _, b := range all {
		if b.ID == ref || strings.EqualFold(b.Name, ref) || (b.Mask != "" && b.Mask == ref) {
			return b, nil
		}
	}
	return model.BankAccount{}, model.NotFoundError{Kind: "bank account", ID: ref}
}

func newBankAccountAddCommand(opts *rootOptions) *cobra.Command {
	var p bank.AccountParams
	var accountType, balance string

	cmd := &cobra.Command{
		Use:   "account-add",
		Short: "Add a bank account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			p.Type = model.BankAccountType(accountType)
			if balance != "" {
				if p.Balance, err = parseAmount(balance); err != nil {
					return err
				}
			}
			acct, err := a.Bank.CreateAccount(ctx, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added bank account %s (%s)\n", acct.Name, acct.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&p.Name, "name", "", "account name (required)")
	cmd.Flags().StringVar(&p.Institution, "institution", "", "bank or card issuer")
	cmd.Flags().StringVar(&p.Mask, "mask", "", "last four digits")
	cmd.Flags().StringVar(&accountType, "type", string(model.BankChecking), "checking, savings or credit_card")
	cmd.Flags().StringVar(&balance, "balance", "", "current balance")
	cmd.Flags().StringVar(&p.LedgerAccountID, "ledger-account", "", "clearing account code or ID")
	cmd.Flags().StringVar(&p.Owner, "owner", "", "owning principal (default: firm for ADMIN operators)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newBankAccountsCommand(opts *rootOptions) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List bank accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.Bank.ListAccounts(ctx, owner)
			if err != nil {
				return err
			}
			codes, err := a.AccountCodes(ctx)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "NAME", "MASK", "TYPE", "STATUS", "OWNER", "CLEARING")
			for _, b := range list {
				clearing := codes[b.LedgerAccountID]
				if clearing == "" {
					clearing = "-"
				}
				row(tw, b.ID, b.Name, b.Mask, b.Type, b.Status, b.Owner, clearing)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only accounts of this owner")
	return cmd
}

func newBankRecordCommand(opts *rootOptions) *cobra.Command {
	var (
		account, date, amount string
		pending               bool
		p                     bank.RecordParams
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a bank transaction (negative amounts are outflows)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if p.Date, err = parseDate(date); err != nil {
				return err
			}
			if p.Amount, err = parseAmount(amount); err != nil {
				return err
			}
			p.Status = model.TxnPosted
			if pending {
				p.Status = model.TxnPending
			}

			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			acct, err := findBankAccount(ctx, a, account)
			if err != nil {
				return err
			}
			p.BankAccountID = acct.ID
			txn, err := a.Bank.RecordTransaction(ctx, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s %s %s\n", txn.ID, txn.Merchant, txn.Amount.StringFixed(model.CurrencyPlaces))
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "bank account ID, name or mask")
	cmd.Flags().StringVar(&date, "date", "", "transaction date YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&p.Merchant, "merchant", "", "merchant (required)")
	cmd.Flags().StringVar(&p.Description, "description", "", "description")
	cmd.Flags().StringVar(&amount, "amount", "", "signed amount (required)")
	cmd.Flags().StringVar(&p.ExternalRef, "ref", "", "feed reference used for dedupe")
	cmd.Flags().BoolVar(&pending, "pending", false, "record as pending")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("merchant")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newBankListCommand(opts *rootOptions) *cobra.Command {
	var (
		account, status, from, to string
		unreconciled, asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bank transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			f := bank.TransactionFilter{Status: model.BankTxnStatus(status), Unreconciled: unreconciled}
			if f.From, err = parseDate(from); err != nil {
				return err
			}
			if f.To, err = parseDate(to); err != nil {
				return err
			}
			if account != "" {
				acct, err := findBankAccount(ctx, a, account)
				if err != nil {
					return err
				}
				f.BankAccountID = acct.ID
			}

			list, err := a.Bank.ListTransactions(ctx, f)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), list)
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "DATE", "MERCHANT", "AMOUNT", "STATUS", "CATEGORY", "ENTRY")
			for _, t := range list {
				row(tw, t.ID, t.Date, t.Merchant, t.Amount, t.Status, dash(t.Category), dash(t.JournalEntryID))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "bank account ID, name or mask")
	cmd.Flags().StringVar(&status, "status", "", "pending, posted or reconciled")
	cmd.Flags().BoolVar(&unreconciled, "unreconciled", false, "only transactions not yet reconciled")
	cmd.Flags().StringVar(&from, "from", "", "first date YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last date YYYY-MM-DD")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
