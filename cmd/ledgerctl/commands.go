package main

import (
	"fmt"
	"strconv"

	"github.com/punchamoorthee/creditgate/internal/models"
	"github.com/punchamoorthee/creditgate/internal/store"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := store.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			version, err := store.MigrationVersion(cmd.Context(), pool)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var (
		total   int
		balance int64
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Bulk-create synthetic accounts for load testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			created, err := store.Seed(cmd.Context(), pool, total, balance)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d new accounts (%s .. %s)\n", created, store.SeedEmail(0), store.SeedEmail(total-1))
			return nil
		},
	}
	cmd.Flags().IntVar(&total, "count", 1000, "number of accounts")
	cmd.Flags().Int64Var(&balance, "credits", 100, "starting credits per account")
	return cmd
}

func newAccountCmd(opts *rootOptions) *cobra.Command {
	var entries int
	cmd := &cobra.Command{
		Use:   "account <email>",
		Short: "Show (and lazily create) an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := models.NormalizeEmail(args[0])
			if err != nil {
				return err
			}
			pool, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := opts.accounts(pool)
			acc, err := svc.GetOrCreateAccount(cmd.Context(), email)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), acc); err != nil {
				return err
			}
			if entries <= 0 {
				return nil
			}
			journal, err := svc.Entries(cmd.Context(), email, entries)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), journal)
		},
	}
	cmd.Flags().IntVar(&entries, "entries", 0, "also print this many recent journal entries")
	return cmd
}

func newGrantCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <email> <credits>",
		Short: "Add credits to an account outside the payment flow",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := models.NormalizeEmail(args[0])
			if err != nil {
				return err
			}
			n, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || n <= 0 {
				return fmt.Errorf("credits must be a positive integer, got %q", args[1])
			}
			pool, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			balance, err := opts.accounts(pool).Grant(cmd.Context(), email, n)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now has %d credits\n", email, balance)
			return nil
		},
	}
}
