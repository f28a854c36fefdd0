package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/creditgate/internal/domain"
	"github.com/punchamoorthee/creditgate/internal/provider"
	"github.com/rs/zerolog"
)

const compensationTimeout = 10 * time.Second

var (
	generationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "creditgate_generation_attempts_total",
		Help: "Metered generation attempts by terminal outcome",
	}, []string{"outcome"})

	providerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "creditgate_provider_duration_seconds",
		Help:    "Latency of generation provider calls",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
	}, []string{"result"})
)

// Generation is a delivered result together with the post-charge balance.
type Generation struct {
	AttemptID string
	Payload   provider.Payload
	Credits   int64
}

// Gateway charges one credit per provider call and refunds it when the call fails.
type Gateway struct {
	ledger   Ledger
	provider provider.Generator
	logger   zerolog.Logger
	newID    func() string
}

func NewGateway(ledger Ledger, gen provider.Generator, logger zerolog.Logger) *Gateway {
	return &Gateway{
		ledger:   ledger,
		provider: gen,
		logger:   logger.With().Str("component", "gateway").Logger(),
		newID:    uuid.NewString,
	}
}

// GenerateMetered reserves a credit, invokes the provider once and compensates on failure.
//
// Returned errors:
//   - domain.ErrInsufficientCredits / domain.ErrAccountNotFound: nothing was charged, provider not called.
//   - *domain.ProviderFailure: the provider was called and failed; a refund was attempted.
//   - any other error: the reservation itself could not be made; nothing was charged.
func (g *Gateway) GenerateMetered(ctx context.Context, email string, in provider.Input) (*Generation, error) {
	attempt := domain.NewAttempt(g.newID(), email)
	log := g.logger.With().Str("attempt_id", attempt.ID).Str("email", email).Logger()

	// Accounts are created lazily on the first metered call as well as on profile fetch.
	if _, err := g.ledger.GetOrCreate(ctx, email); err != nil {
		return nil, g.reject(attempt, log, fmt.Errorf("bootstrap account: %w", err))
	}

	reserved, err := g.ledger.ReserveCredits(ctx, email, domain.GenerationCost)
	if err != nil {
		return nil, g.reject(attempt, log, err)
	}
	g.advance(attempt, log, domain.StateReserved)

	start := time.Now()
	result, err := g.provider.Generate(ctx, in)
	if err == nil && len(result.Payloads) == 0 {
		err = &provider.Error{Kind: provider.KindEmpty, Err: errors.New("provider returned no payloads")}
	}
	if err != nil {
		providerDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())
		return nil, g.compensate(ctx, attempt, log, err)
	}
	providerDuration.WithLabelValues("succeeded").Observe(time.Since(start).Seconds())
	g.advance(attempt, log, domain.StateDelivered)
	generationAttempts.WithLabelValues("delivered").Inc()

	credits := reserved
	if acc, err := g.ledger.GetAccount(ctx, email); err == nil {
		credits = acc.Credits
	} else {
		// The charge already committed; fall back to the balance the reservation returned.
		log.Warn().Err(err).Msg("post-delivery balance read failed")
	}

	return &Generation{AttemptID: attempt.ID, Payload: result.Payloads[0], Credits: credits}, nil
}

func (g *Gateway) reject(attempt *domain.Attempt, log zerolog.Logger, err error) error {
	g.advance(attempt, log, domain.StateRejected)
	switch {
	case errors.Is(err, domain.ErrInsufficientCredits):
		generationAttempts.WithLabelValues("rejected_insufficient").Inc()
	case errors.Is(err, domain.ErrAccountNotFound):
		generationAttempts.WithLabelValues("rejected_not_found").Inc()
	default:
		generationAttempts.WithLabelValues("rejected_error").Inc()
		log.Error().Err(err).Msg("reservation failed")
	}
	return err
}

// compensate refunds the reserved credit. A refund failure is logged and swallowed so
// the caller always sees the provider's failure, never the storage error.
func (g *Gateway) compensate(ctx context.Context, attempt *domain.Attempt, log zerolog.Logger, cause error) error {
	g.advance(attempt, log, domain.StateCompensating)
	failure := &domain.ProviderFailure{
		AttemptID: attempt.ID,
		Kind:      string(provider.KindOf(cause)),
		Err:       cause,
	}
	log.Warn().Err(cause).Str("kind", failure.Kind).Msg("provider call failed, refunding reservation")

	// The refund must run even if the client has gone away.
	refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	balance, err := g.ledger.GrantCredits(refundCtx, attempt.RequestedBy, domain.GenerationCost, domain.ReasonRefund)
	if err != nil {
		g.advance(attempt, log, domain.StateRefundFailed)
		generationAttempts.WithLabelValues("refund_failed").Inc()
		log.Error().Err(err).Msg("refund failed; credit remains consumed")
		if acc, readErr := g.ledger.GetAccount(refundCtx, attempt.RequestedBy); readErr == nil {
			failure.Balance = &acc.Credits
		}
		return failure
	}

	g.advance(attempt, log, domain.StateRefunded)
	generationAttempts.WithLabelValues("refunded").Inc()
	failure.Refunded = true
	failure.Balance = &balance
	return failure
}

func (g *Gateway) advance(attempt *domain.Attempt, log zerolog.Logger, next domain.AttemptState) {
	from := attempt.State
	if err := attempt.Advance(next); err != nil {
		log.Error().Err(err).Msg("attempt state machine violated")
		return
	}
	log.Debug().
		Str("from", string(from)).
		Str("to", string(next)).
		Bool("charged", attempt.ChargedCredit).
		Msg("attempt transition")
	if attempt.Terminal() {
		log.Info().Str("state", string(attempt.State)).Bool("charged", attempt.ChargedCredit).Msg("attempt finished")
	}
}
