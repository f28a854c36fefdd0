package service

import (
	"context"

	"github.com/punchamoorthee/creditgate/internal/domain"
)

// Ledger is the durable, contention-safe account store the services depend on.
// Implementations re-read current state on every call; nothing is cached.
type Ledger interface {
	GetOrCreate(ctx context.Context, email string) (domain.Account, error)
	GetAccount(ctx context.Context, email string) (domain.Account, error)
	ReserveCredits(ctx context.Context, email string, n int64) (int64, error)
	GrantCredits(ctx context.Context, email string, n int64, reason domain.EntryReason) (int64, error)
	SetPro(ctx context.Context, email string, isPro bool) error
	ApplyPayment(ctx context.Context, orderRef, email string, bonus int64) (domain.Account, error)
	Entries(ctx context.Context, email string, limit int) ([]domain.CreditEntry, error)
}
