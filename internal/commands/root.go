// Package commands implements the ledger command line.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/app"
	"github.com/cleared-dev/ledger/internal/buildinfo"
	"github.com/cleared-dev/ledger/internal/config"
)

type rootOptions struct {
	dir   string
	debug bool
	log   *slog.Logger
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:     "ledger",
		Short:   "Double-entry books and bank reconciliation",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if opts.debug {
				level = slog.LevelDebug
			}
			opts.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.dir, "dir", "C", ".", "books directory")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newInitCommand(opts),
		newServeCommand(opts),
		newAccountCommand(opts),
		newJournalCommand(opts),
		newBankCommand(opts),
		newImportCommand(opts),
		newRuleCommand(opts),
		newCategoryCommand(opts),
		newTaxCommand(opts),
		newReconcileCommand(opts),
		newExportCommand(opts),
	)

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func (o *rootOptions) logger() *slog.Logger {
	if o.log == nil {
		return slog.Default()
	}
	return o.log
}

func (o *rootOptions) absDir() (string, error) {
	dir, err := filepath.Abs(o.dir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	return dir, nil
}

// open loads the books directory, seeds it if empty and returns a context
// carrying the configured operator. The caller closes the App.
func (o *rootOptions) open(cmd *cobra.Command) (*app.App, context.Context, error) {
	dir, err := o.absDir()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Resolve(dir)
	if err != nil {
		return nil, nil, err
	}
	return o.openWith(cmd, dir, cfg, o.logger())
}

func (o *rootOptions) openWith(cmd *cobra.Command, dir string, cfg *config.Config, logger *slog.Logger) (*app.App, context.Context, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.Open(ctx, dir, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := a.Bootstrap(ctx); err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, a.AsOperator(ctx), nil
}
