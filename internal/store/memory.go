package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/punchamoorthee/creditgate/internal/domain"
)

// MemoryStore is an in-process ledger with the same semantics as LedgerStore.
// A single mutex linearizes every read-modify-write.
type MemoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	accounts map[string]*domain.Account
	orders   map[string]domain.CapturedOrder
	entries  []domain.CreditEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      time.Now,
		accounts: make(map[string]*domain.Account),
		orders:   make(map[string]domain.CapturedOrder),
	}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, email string) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acc, ok := s.accounts[email]; ok {
		return *acc, nil
	}
	acc := &domain.Account{Email: email, Credits: domain.SignupCredits, CreatedAt: s.now().UTC()}
	s.accounts[email] = acc
	s.appendEntry(email, domain.SignupCredits, domain.ReasonSignup, "")
	return *acc, nil
}

func (s *MemoryStore) GetAccount(_ context.Context, email string) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[email]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return *acc, nil
}

func (s *MemoryStore) ReserveCredits(_ context.Context, email string, n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: reservation must be positive", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[email]
	if !ok {
		return 0, domain.ErrAccountNotFound
	}
	if acc.Credits < n {
		return 0, domain.ErrInsufficientCredits
	}
	acc.Credits -= n
	s.appendEntry(email, -n, domain.ReasonReserve, "")
	return acc.Credits, nil
}

func (s *MemoryStore) GrantCredits(_ context.Context, email string, n int64, reason domain.EntryReason) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: grant must be positive", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[email]
	if !ok {
		return 0, domain.ErrAccountNotFound
	}
	acc.Credits += n
	s.appendEntry(email, n, reason, "")
	return acc.Credits, nil
}

func (s *MemoryStore) SetPro(_ context.Context, email string, isPro bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[email]
	if !ok {
		return domain.ErrAccountNotFound
	}
	acc.IsPro = isPro
	return nil
}

func (s *MemoryStore) ApplyPayment(_ context.Context, orderRef, email string, bonus int64) (domain.Account, error) {
	if bonus <= 0 {
		return domain.Account{}, fmt.Errorf("%w: payment bonus must be positive", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[email]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if _, seen := s.orders[orderRef]; seen {
		return domain.Account{}, domain.ErrOrderAlreadyCaptured
	}
	s.orders[orderRef] = domain.CapturedOrder{OrderRef: orderRef, Email: email, CreditsGranted: bonus, CapturedAt: s.now().UTC()}
	acc.Credits += bonus
	acc.IsPro = true
	s.appendEntry(email, bonus, domain.ReasonPayment, orderRef)
	return *acc, nil
}

func (s *MemoryStore) Entries(_ context.Context, email string, limit int) ([]domain.CreditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[email]; !ok {
		return nil, domain.ErrAccountNotFound
	}
	out := []domain.CreditEntry{}
	for i := len(s.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.entries[i].Email == email {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

// appendEntry must be called with mu held.
func (s *MemoryStore) appendEntry(email string, delta int64, reason domain.EntryReason, reference string) {
	s.entries = append(s.entries, domain.CreditEntry{
		ID:        int64(len(s.entries) + 1),
		Email:     email,
		Delta:     delta,
		Reason:    reason,
		Reference: reference,
		CreatedAt: s.now().UTC(),
	})
}
