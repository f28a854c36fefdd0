package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/creditgate/internal/domain"
)

// SeedEmail is the address of the i-th synthetic account created by Seed.
func SeedEmail(i int) string {
	return fmt.Sprintf("seed-%05d@creditgate.local", i)
}

// Seed bulk-inserts total synthetic accounts holding balance credits each, plus
// the matching journal rows. Accounts that already exist are left untouched and
// the number of newly created accounts is returned.
func Seed(ctx context.Context, pool *pgxpool.Pool, total int, balance int64) (int64, error) {
	if total <= 0 || balance < 0 {
		return 0, fmt.Errorf("%w: seed needs a positive count and non-negative balance", domain.ErrInvalidInput)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "CREATE TEMP TABLE seed_accounts (LIKE accounts INCLUDING DEFAULTS) ON COMMIT DROP"); err != nil {
		return 0, fmt.Errorf("staging table failed: %w", err)
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, total)
	for i := 0; i < total; i++ {
		rows = append(rows, []any{SeedEmail(i), balance, false, now})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"seed_accounts"},
		[]string{"email", "credits", "is_pro", "created_at"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return 0, fmt.Errorf("bulk copy failed: %w", err)
	}

	var created int64
	err = tx.QueryRow(ctx, `
WITH inserted AS (
    INSERT INTO accounts (email, credits, is_pro, created_at)
    SELECT email, credits, is_pro, created_at FROM seed_accounts
    ON CONFLICT (email) DO NOTHING
    RETURNING email, credits
), journal AS (
    INSERT INTO credit_entries (email, delta, reason, reference)
    SELECT email, credits, $1::text, 'seed' FROM inserted WHERE credits > 0
)
SELECT COUNT(*) FROM inserted`, string(domain.ReasonGrant)).Scan(&created)
	if err != nil {
		return 0, fmt.Errorf("seed insert failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("tx commit failed: %w", err)
	}
	return created, nil
}
