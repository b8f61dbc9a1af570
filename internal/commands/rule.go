package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/rules"
)

func newRuleCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Manage categorization rules",
	}
	cmd.AddCommand(
		newRuleAddCommand(opts),
		newRuleListCommand(opts),
		newRuleImportCommand(opts),
		newRuleDeleteCommand(opts),
	)
	return cmd
}

// parseCondition reads FIELD:OPERATOR:VALUE. The value may itself contain
// colons.
func parseCondition(s string) (model.Condition, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return model.Condition{}, fmt.Errorf("invalid condition %q (want FIELD:OPERATOR:VALUE)", s)
	}
	return model.Condition{
		Field:    model.RuleField(strings.TrimSpace(parts[0])),
		Operator: model.RuleOperator(strings.TrimSpace(parts[1])),
		Value:    parts[2],
	}, nil
}

func newRuleAddCommand(opts *rootOptions) *cobra.Command {
	var p rules.RuleParams
	var when []string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a rule",
		Example: `  ledger rule add --name Coffee --category Meals --when merchant:contains:starbucks
  ledger rule add --name "Big spend" --category Travel --priority 5 \
    --when description:contains:airline --when amount:greater_than:500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, w := range when {
				c, err := parseCondition(w)
				if err != nil {
					return err
				}
				p.Conditions = append(p.Conditions, c)
			}

			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			rule, err := a.Rules.CreateRule(ctx, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added rule %s (%s) -> %s\n", rule.Name, rule.ID, rule.Category)
			return nil
		},
	}

	cmd.Flags().StringVar(&p.Name, "name", "", "rule name (required)")
	cmd.Flags().StringVar(&p.Category, "category", "", "expense category to assign (required)")
	cmd.Flags().IntVar(&p.Priority, "priority", 0, "lower runs first")
	cmd.Flags().StringVar(&p.Owner, "owner", "", "owning principal (default: firm for ADMIN operators)")
	cmd.Flags().StringArrayVar(&when, "when", nil, "condition FIELD:OPERATOR:VALUE (repeatable, all must match)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("when")
	return cmd
}

func newRuleListCommand(opts *rootOptions) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.Rules.ListRules(ctx, owner)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "PRIORITY", "OWNER", "NAME", "CATEGORY", "CONDITIONS")
			for _, r := range list {
				conds := make([]string, len(r.Conditions))
				for i, c := range r.Conditions {
					conds[i] = fmt.Sprintf("%s %s %q", c.Field, c.Operator, c.Value)
				}
				row(tw, r.ID, r.Priority, r.Owner, r.Name, r.Category, strings.Join(conds, " and "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only rules of this owner")
	return cmd
}

func newRuleImportCommand(opts *rootOptions) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import rules from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			created, err := a.Rules.ImportRules(ctx, owner, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rules\n", len(created))
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner for every imported rule")
	return cmd
}

func newRuleDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Rules.DeleteRule(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted rule %s\n", args[0])
			return nil
		},
	}
}
