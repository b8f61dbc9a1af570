package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/journal"
	"github.com/cleared-dev/ledger/internal/model"
)

func newJournalCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Post, void and list journal entries",
	}
	cmd.AddCommand(
		newJournalPostCommand(opts),
		newJournalVoidCommand(opts),
		newJournalListCommand(opts),
		newJournalShowCommand(opts),
		newJournalExportCommand(opts),
	)
	return cmd
}

// parseLegs turns ACCOUNT=AMOUNT flags into lines on one side.
func parseLegs(legs []string, debit bool) ([]model.LineInput, error) {
	out := make([]model.LineInput, 0, len(legs))
	for _, leg := range legs {
		acct, amount, ok := strings.Cut(leg, "=")
		if !ok || strings.TrimSpace(acct) == "" {
			return nil, fmt.Errorf("invalid line %q (want ACCOUNT=AMOUNT)", leg)
		}
		d, err := parseAmount(amount)
		if err != nil {
			return nil, err
		}
		if debit {
			out = append(out, model.DebitLine(strings.TrimSpace(acct), d, ""))
		} else {
			out = append(out, model.CreditLine(strings.TrimSpace(acct), d, ""))
		}
	}
	return out, nil
}

func newJournalPostCommand(opts *rootOptions) *cobra.Command {
	var (
		date, description, reference string
		debits, credits              []string
		draft                        bool
	)

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post a journal entry",
		Example: `  ledger journal post --date 2025-01-15 --description "Team lunch" \
    --debit 5100=42.50 --credit 1010=42.50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDate(date)
			if err != nil {
				return err
			}
			lines, err := parseLegs(debits, true)
			if err != nil {
				return err
			}
			creditLines, err := parseLegs(credits, false)
			if err != nil {
				return err
			}
			lines = append(lines, creditLines...)

			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			p := journal.PostParams{
				Date:        d,
				Description: description,
				Reference:   reference,
				Lines:       lines,
				Source:      model.SourceManual,
			}
			if draft {
				entry, err := a.Journal.SaveDraft(ctx, p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved draft %s %s\n", entry.ID, entry.Description)
				return nil
			}
			entry, err := a.Journal.Post(ctx, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Posted %s %s\n", entry.ID, entry.Description)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "entry date YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&description, "description", "", "description (required)")
	cmd.Flags().StringVar(&reference, "reference", "", "external reference")
	cmd.Flags().StringArrayVar(&debits, "debit", nil, "debit line ACCOUNT=AMOUNT (repeatable)")
	cmd.Flags().StringArrayVar(&credits, "credit", nil, "credit line ACCOUNT=AMOUNT (repeatable)")
	cmd.Flags().BoolVar(&draft, "draft", false, "save as a draft without posting")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func newJournalVoidCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "void <entry-id>",
		Short: "Void an entry by posting its reversal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			reversal, err := a.Journal.Void(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Voided %s (reversal %s)\n", args[0], reversal.ID)
			return nil
		},
	}
}

type listFlags struct {
	from, to, status, account string
}

func (f *listFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "first date YYYY-MM-DD")
	cmd.Flags().StringVar(&f.to, "to", "", "last date YYYY-MM-DD")
	cmd.Flags().StringVar(&f.status, "status", "", "only this status")
	cmd.Flags().StringVar(&f.account, "account", "", "only this account")
}

func newJournalListCommand(opts *rootOptions) *cobra.Command {
	var lf listFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journal entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := journalFilter(ctx, lf, a.Accounts.Resolve)
			if err != nil {
				return err
			}

			tw := newTable(cmd.OutOrStdout(), "ID", "DATE", "STATUS", "DESCRIPTION", "AMOUNT")
			for entry, err := range a.Journal.List(ctx, f) {
				if err != nil {
					return err
				}
				debits, _ := entry.Totals()
				row(tw, entry.ID, entry.Date, entry.Status, entry.Description, debits)
			}
			return tw.Flush()
		},
	}
	lf.bind(cmd)
	return cmd
}

func journalFilter(ctx context.Context, lf listFlags, resolve func(context.Context, string) (model.Account, error)) (journal.Filter, error) {
	from, err := parseDate(lf.from)
	if err != nil {
		return journal.Filter{}, err
	}
	to, err := parseDate(lf.to)
	if err != nil {
		return journal.Filter{}, err
	}
	f := journal.Filter{From: from, To: to, Status: model.EntryStatus(lf.status)}
	if lf.account != "" {
		acct, err := resolve(ctx, lf.account)
		if err != nil {
			return journal.Filter{}, err
		}
		f.AccountID = acct.ID
	}
	return f, nil
}

func newJournalShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <entry-id>",
		Short: "Show one entry with its lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			entry, err := a.Journal.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		},
	}
}

func newJournalExportCommand(opts *rootOptions) *cobra.Command {
	var lf listFlags

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write entries as journal CSV to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := journalFilter(ctx, lf, a.Accounts.Resolve)
			if err != nil {
				return err
			}
			entries, err := a.Journal.Collect(ctx, f)
			if err != nil {
				return err
			}
			codes, err := a.AccountCodes(ctx)
			if err != nil {
				return err
			}
			return journal.WriteEntries(cmd.OutOrStdout(), entries, codes)
		},
	}
	lf.bind(cmd)
	return cmd
}
