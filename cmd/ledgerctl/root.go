package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/creditgate/internal/logging"
	"github.com/punchamoorthee/creditgate/internal/service"
	"github.com/punchamoorthee/creditgate/internal/store"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	dbURL string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:          "ledgerctl",
		Short:        "Operate the credit ledger: migrations, seeding, balances and manual grants",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.dbURL, "db", os.Getenv("DB_SOURCE"), "PostgreSQL connection string (defaults to $DB_SOURCE)")

	rootCmd.AddCommand(
		newMigrateCmd(opts),
		newSeedCmd(opts),
		newAccountCmd(opts),
		newGrantCmd(opts),
	)
	return rootCmd
}

func (o *rootOptions) connect(ctx context.Context) (*pgxpool.Pool, error) {
	if o.dbURL == "" {
		return nil, fmt.Errorf("no database configured: pass --db or set DB_SOURCE")
	}
	return store.NewPool(ctx, o.dbURL)
}

func (o *rootOptions) accounts(pool *pgxpool.Pool) *service.Accounts {
	logger := logging.New("production", "warn")
	return service.NewAccounts(store.NewLedgerStore(pool), nil, service.ProPlan{}, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
