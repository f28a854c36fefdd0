package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/creditgate/internal/domain"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	maxTxAttempts          = 5
	retryBaseDelay         = 5 * time.Millisecond
)

// LedgerStore is the PostgreSQL-backed ledger. Every mutation runs in its own
// transaction that writes the balance and its journal row together.
type LedgerStore struct {
	db *pgxpool.Pool
}

func NewLedgerStore(db *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{db: db}
}

// NewPool parses the connection string and verifies the database is reachable.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return pool, nil
}

// GetOrCreate returns the account for email, creating it with signup credits on first access.
// Concurrent first accesses race on the primary key; only one insert wins.
func (s *LedgerStore) GetOrCreate(ctx context.Context, email string) (domain.Account, error) {
	var acc domain.Account
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			"INSERT INTO accounts (email, credits, is_pro) VALUES ($1, $2, FALSE) ON CONFLICT (email) DO NOTHING",
			email, domain.SignupCredits,
		)
		if err != nil {
			return fmt.Errorf("account insert failed: %w", err)
		}
		if tag.RowsAffected() == 1 {
			if err := insertEntry(ctx, tx, email, domain.SignupCredits, domain.ReasonSignup, ""); err != nil {
				return err
			}
		}
		acc, err = selectAccount(ctx, tx, email)
		return err
	})
	return acc, err
}

// GetAccount reads the current account state without creating it.
func (s *LedgerStore) GetAccount(ctx context.Context, email string) (domain.Account, error) {
	return selectAccount(ctx, s.db, email)
}

// ReserveCredits atomically deducts n credits, refusing to drive the balance negative.
// The guard lives in the UPDATE itself: a writer blocked on the row lock re-checks
// the committed balance once the lock is released.
func (s *LedgerStore) ReserveCredits(ctx context.Context, email string, n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: reservation must be positive", domain.ErrInvalidInput)
	}
	var balance int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			"UPDATE accounts SET credits = credits - $1 WHERE email = $2 AND credits >= $1 RETURNING credits",
			n, email,
		).Scan(&balance)
		if errors.Is(err, pgx.ErrNoRows) {
			if _, err := selectAccount(ctx, tx, email); err != nil {
				return err
			}
			return domain.ErrInsufficientCredits
		}
		if err != nil {
			return fmt.Errorf("balance update failed: %w", err)
		}
		return insertEntry(ctx, tx, email, -n, domain.ReasonReserve, "")
	})
	return balance, err
}

// GrantCredits atomically adds n credits. Used for refunds and top-ups alike.
func (s *LedgerStore) GrantCredits(ctx context.Context, email string, n int64, reason domain.EntryReason) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: grant must be positive", domain.ErrInvalidInput)
	}
	var balance int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		balance, err = addCredits(ctx, tx, email, n)
		if err != nil {
			return err
		}
		return insertEntry(ctx, tx, email, n, reason, "")
	})
	return balance, err
}

// SetPro sets the subscription flag.
func (s *LedgerStore) SetPro(ctx context.Context, email string, isPro bool) error {
	tag, err := s.db.Exec(ctx, "UPDATE accounts SET is_pro = $1 WHERE email = $2", isPro, email)
	if err != nil {
		return fmt.Errorf("pro flag update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// ApplyPayment records a captured order, grants bonus credits and sets the pro flag
// in a single transaction. A replayed order reference is rejected and rolls the grant back.
func (s *LedgerStore) ApplyPayment(ctx context.Context, orderRef, email string, bonus int64) (domain.Account, error) {
	if bonus <= 0 {
		return domain.Account{}, fmt.Errorf("%w: payment bonus must be positive", domain.ErrInvalidInput)
	}
	var acc domain.Account
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			"UPDATE accounts SET credits = credits + $1, is_pro = TRUE WHERE email = $2 RETURNING email, credits, is_pro, created_at",
			bonus, email,
		).Scan(&acc.Email, &acc.Credits, &acc.IsPro, &acc.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("payment grant failed: %w", err)
		}

		_, err = tx.Exec(ctx,
			"INSERT INTO captured_orders (order_ref, email, credits_granted) VALUES ($1, $2, $3)",
			orderRef, email, bonus,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return domain.ErrOrderAlreadyCaptured
			}
			return fmt.Errorf("order record failed: %w", err)
		}
		return insertEntry(ctx, tx, email, bonus, domain.ReasonPayment, orderRef)
	})
	if err != nil {
		return domain.Account{}, err
	}
	return acc, nil
}

// Entries returns the most recent journal rows for an account, newest first.
func (s *LedgerStore) Entries(ctx context.Context, email string, limit int) ([]domain.CreditEntry, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1)", email).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrAccountNotFound
	}

	rows, err := s.db.Query(ctx,
		"SELECT id, email, delta, reason, reference, created_at FROM credit_entries WHERE email = $1 ORDER BY id DESC LIMIT $2",
		email, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.CreditEntry{}
	for rows.Next() {
		var e domain.CreditEntry
		var reason string
		if err := rows.Scan(&e.ID, &e.Email, &e.Delta, &reason, &e.Reference, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Reason = domain.EntryReason(reason)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// inTx runs fn inside a READ COMMITTED transaction. Every balance change is a single
// guarded UPDATE, so row locks alone linearize writers on one account. Deadlocks and
// serialization failures are retried with jittered backoff, then surface as ErrConflict.
func (s *LedgerStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		if attempt > 0 {
			if err := backoff(ctx, attempt); err != nil {
				return err
			}
		}
		lastErr = s.runTx(ctx, fn)
		if lastErr == nil || !isRetryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrConflict, lastErr)
}

func (s *LedgerStore) runTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

// backoff sleeps a random duration in [0, retryBaseDelay*2^attempt).
func backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(rand.Int64N(int64(retryBaseDelay << attempt)))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func selectAccount(ctx context.Context, q querier, email string) (domain.Account, error) {
	var acc domain.Account
	err := q.QueryRow(ctx,
		"SELECT email, credits, is_pro, created_at FROM accounts WHERE email = $1", email,
	).Scan(&acc.Email, &acc.Credits, &acc.IsPro, &acc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("account lookup failed: %w", err)
	}
	return acc, nil
}

func addCredits(ctx context.Context, tx pgx.Tx, email string, n int64) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx,
		"UPDATE accounts SET credits = credits + $1 WHERE email = $2 RETURNING credits",
		n, email,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrAccountNotFound
		}
		return 0, fmt.Errorf("balance update failed: %w", err)
	}
	return balance, nil
}

func insertEntry(ctx context.Context, tx pgx.Tx, email string, delta int64, reason domain.EntryReason, reference string) error {
	_, err := tx.Exec(ctx,
		"INSERT INTO credit_entries (email, delta, reason, reference) VALUES ($1, $2, $3, $4)",
		email, delta, string(reason), reference,
	)
	if err != nil {
		return fmt.Errorf("ledger entry failed: %w", err)
	}
	return nil
}
