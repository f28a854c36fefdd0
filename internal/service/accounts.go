package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/punchamoorthee/creditgate/internal/domain"
	"github.com/punchamoorthee/creditgate/internal/payment"
	"github.com/rs/zerolog"
)

const defaultEntriesLimit = 50

// ProPlan describes the subscription the checkout sells.
type ProPlan struct {
	Price    string
	Currency string
}

// Accounts exposes account bootstrap and the payment-capture grant.
type Accounts struct {
	ledger    Ledger
	processor payment.Processor
	plan      ProPlan
	logger    zerolog.Logger
}

// NewAccounts wires the account service. processor may be nil, in which case
// payment operations fail with domain.ErrPaymentNotConfigured.
func NewAccounts(ledger Ledger, processor payment.Processor, plan ProPlan, logger zerolog.Logger) *Accounts {
	return &Accounts{
		ledger:    ledger,
		processor: processor,
		plan:      plan,
		logger:    logger.With().Str("component", "accounts").Logger(),
	}
}

// GetOrCreateAccount never surfaces ErrAccountNotFound: a missing account is created.
func (a *Accounts) GetOrCreateAccount(ctx context.Context, email string) (domain.Account, error) {
	return a.ledger.GetOrCreate(ctx, email)
}

func (a *Accounts) Entries(ctx context.Context, email string, limit int) ([]domain.CreditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultEntriesLimit
	}
	return a.ledger.Entries(ctx, email, limit)
}

// Grant adds credits outside the payment flow (operator top-ups).
func (a *Accounts) Grant(ctx context.Context, email string, n int64) (int64, error) {
	if _, err := a.ledger.GetOrCreate(ctx, email); err != nil {
		return 0, err
	}
	balance, err := a.ledger.GrantCredits(ctx, email, n, domain.ReasonGrant)
	if err != nil {
		return 0, err
	}
	a.logger.Info().Str("email", email).Int64("credits", n).Int64("balance", balance).Msg("manual grant applied")
	return balance, nil
}

// CreateOrder opens a checkout for the pro plan.
func (a *Accounts) CreateOrder(ctx context.Context) (string, error) {
	if a.processor == nil {
		return "", domain.ErrPaymentNotConfigured
	}
	ref, err := a.processor.CreateOrder(ctx, payment.Order{
		Amount:      a.plan.Price,
		Currency:    a.plan.Currency,
		Description: fmt.Sprintf("Pro plan: %d credits", domain.ProBonusCredits),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProcessorError, err)
	}
	return ref, nil
}

// CapturePayment settles orderRef with the processor and, only if the processor reports the
// capture as completed, grants the pro bonus and flag in one ledger transaction.
func (a *Accounts) CapturePayment(ctx context.Context, orderRef, email string) (domain.Account, error) {
	if a.processor == nil {
		return domain.Account{}, domain.ErrPaymentNotConfigured
	}
	log := a.logger.With().Str("order_ref", orderRef).Str("email", email).Logger()

	if _, err := a.ledger.GetOrCreate(ctx, email); err != nil {
		return domain.Account{}, err
	}

	status, err := a.processor.CaptureOrder(ctx, orderRef)
	if err != nil {
		log.Error().Err(err).Msg("capture call failed")
		return domain.Account{}, fmt.Errorf("%w: %v", domain.ErrProcessorError, err)
	}
	if status != payment.StatusCompleted {
		log.Warn().Str("status", string(status)).Msg("capture not completed")
		return domain.Account{}, fmt.Errorf("%w: status %s", domain.ErrCaptureNotCompleted, status)
	}

	acc, err := a.ledger.ApplyPayment(ctx, orderRef, email, domain.ProBonusCredits)
	if err != nil {
		if errors.Is(err, domain.ErrOrderAlreadyCaptured) {
			log.Warn().Msg("replayed capture rejected")
		} else {
			log.Error().Err(err).Msg("capture confirmed but grant failed")
		}
		return domain.Account{}, err
	}
	log.Info().Int64("credits", acc.Credits).Msg("pro plan granted")
	return acc, nil
}
