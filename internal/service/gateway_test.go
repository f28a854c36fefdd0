package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/punchamoorthee/creditgate/internal/domain"
	"github.com/punchamoorthee/creditgate/internal/provider"
	"github.com/punchamoorthee/creditgate/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	calls  atomic.Int32
	mu     sync.Mutex
	err    error
	result provider.Result
	inputs []provider.Input
}

func (s *stubGenerator) Generate(ctx context.Context, in provider.Input) (provider.Result, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, in)
	if s.err != nil {
		return provider.Result{}, s.err
	}
	return s.result, nil
}

func (s *stubGenerator) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func okGenerator() *stubGenerator {
	return &stubGenerator{result: provider.Result{Payloads: []provider.Payload{{MIMEType: "image/png", Data: []byte("png")}}}}
}

// flakyLedger wraps a real ledger and injects failures into selected operations.
type flakyLedger struct {
	Ledger
	grantErr   error
	reserveErr error
}

func (f *flakyLedger) GrantCredits(ctx context.Context, email string, n int64, reason domain.EntryReason) (int64, error) {
	if f.grantErr != nil {
		return 0, f.grantErr
	}
	return f.Ledger.GrantCredits(ctx, email, n, reason)
}

func (f *flakyLedger) ReserveCredits(ctx context.Context, email string, n int64) (int64, error) {
	if f.reserveErr != nil {
		return 0, f.reserveErr
	}
	return f.Ledger.ReserveCredits(ctx, email, n)
}

func TestGenerateMeteredDelivers(t *testing.T) {
	ledger := store.NewMemoryStore()
	gen := okGenerator()
	gw := NewGateway(ledger, gen, zerolog.Nop())

	out, err := gw.GenerateMetered(context.Background(), "a@x.com", provider.Input{Theme: "spring"})
	require.NoError(t, err)
	assert.Equal(t, domain.SignupCredits-1, out.Credits)
	assert.Equal(t, []byte("png"), out.Payload.Data)
	assert.NotEmpty(t, out.AttemptID)
	assert.Equal(t, int32(1), gen.calls.Load())
	assert.Equal(t, "spring", gen.inputs[0].Theme)
}

func TestGenerateMeteredRefundsOnProviderFailure(t *testing.T) {
	ledger := store.NewMemoryStore()
	gen := okGenerator()
	gen.fail(&provider.Error{Kind: provider.KindUpstream, StatusCode: 503, Err: errors.New("overloaded")})
	gw := NewGateway(ledger, gen, zerolog.Nop())
	ctx := context.Background()

	before, err := ledger.GetOrCreate(ctx, "a@x.com")
	require.NoError(t, err)

	_, err = gw.GenerateMetered(ctx, "a@x.com", provider.Input{Prompt: "banner"})
	require.ErrorIs(t, err, domain.ErrProviderFailure)

	var failure *domain.ProviderFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, string(provider.KindUpstream), failure.Kind)
	assert.True(t, failure.Refunded)
	require.NotNil(t, failure.Balance)
	assert.Equal(t, before.Credits, *failure.Balance)

	after, err := ledger.GetAccount(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, before.Credits, after.Credits)
}

func TestGenerateMeteredTreatsEmptyResultAsFailure(t *testing.T) {
	ledger := store.NewMemoryStore()
	gen := &stubGenerator{}
	gw := NewGateway(ledger, gen, zerolog.Nop())

	_, err := gw.GenerateMetered(context.Background(), "a@x.com", provider.Input{Theme: "x"})
	var failure *domain.ProviderFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, string(provider.KindEmpty), failure.Kind)
	assert.True(t, failure.Refunded)

	acc, err := ledger.GetAccount(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, domain.SignupCredits, acc.Credits)
}

func TestGenerateMeteredUnclassifiedErrorIsStillRefunded(t *testing.T) {
	ledger := store.NewMemoryStore()
	gen := okGenerator()
	gen.fail(errors.New("something with no recognizable words"))
	gw := NewGateway(ledger, gen, zerolog.Nop())

	_, err := gw.GenerateMetered(context.Background(), "a@x.com", provider.Input{Theme: "x"})
	var failure *domain.ProviderFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, string(provider.KindTransport), failure.Kind)
	assert.True(t, failure.Refunded)
}

func TestGenerateMeteredNoCallWithoutReservation(t *testing.T) {
	ctx := context.Background()
	ledger := store.NewMemoryStore()
	_, err := ledger.GetOrCreate(ctx, "broke@x.com")
	require.NoError(t, err)
	_, err = ledger.ReserveCredits(ctx, "broke@x.com", domain.SignupCredits)
	require.NoError(t, err)

	gen := okGenerator()
	gw := NewGateway(ledger, gen, zerolog.Nop())

	_, err = gw.GenerateMetered(ctx, "broke@x.com", provider.Input{Theme: "x"})
	assert.ErrorIs(t, err, domain.ErrInsufficientCredits)
	assert.Equal(t, int32(0), gen.calls.Load())

	acc, err := ledger.GetAccount(ctx, "broke@x.com")
	require.NoError(t, err)
	assert.Zero(t, acc.Credits)
}

func TestGenerateMeteredAccountNotFoundIsNotCharged(t *testing.T) {
	ledger := &flakyLedger{Ledger: store.NewMemoryStore(), reserveErr: domain.ErrAccountNotFound}
	gen := okGenerator()
	gw := NewGateway(ledger, gen, zerolog.Nop())

	_, err := gw.GenerateMetered(context.Background(), "gone@x.com", provider.Input{Theme: "x"})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.NotErrorIs(t, err, domain.ErrProviderFailure)
	assert.Equal(t, int32(0), gen.calls.Load())
}

func TestGenerateMeteredRefundFailureIsIsolated(t *testing.T) {
	ledger := &flakyLedger{Ledger: store.NewMemoryStore(), grantErr: errors.New("connection reset by peer")}
	gen := okGenerator()
	gen.fail(&provider.Error{Kind: provider.KindTimeout, Err: context.DeadlineExceeded})
	gw := NewGateway(ledger, gen, zerolog.Nop())

	_, err := gw.GenerateMetered(context.Background(), "a@x.com", provider.Input{Theme: "x"})
	require.ErrorIs(t, err, domain.ErrProviderFailure)
	assert.NotContains(t, err.Error(), "connection reset")

	var failure *domain.ProviderFailure
	require.True(t, errors.As(err, &failure))
	assert.False(t, failure.Refunded)
	assert.Equal(t, string(provider.KindTimeout), failure.Kind)
	require.NotNil(t, failure.Balance)
	assert.Equal(t, domain.SignupCredits-1, *failure.Balance)
}

func TestGenerateMeteredRefundsAfterClientCancel(t *testing.T) {
	ledger := store.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	gen := &cancelingGenerator{cancel: cancel}
	gw := NewGateway(ledger, gen, zerolog.Nop())

	_, err := gw.GenerateMetered(ctx, "a@x.com", provider.Input{Theme: "x"})
	var failure *domain.ProviderFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, string(provider.KindCanceled), failure.Kind)
	assert.True(t, failure.Refunded)

	acc, err := ledger.GetAccount(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, domain.SignupCredits, acc.Credits)
}

type cancelingGenerator struct {
	cancel context.CancelFunc
}

func (c *cancelingGenerator) Generate(ctx context.Context, in provider.Input) (provider.Result, error) {
	c.cancel()
	<-ctx.Done()
	return provider.Result{}, ctx.Err()
}

func TestGenerateMeteredConcurrentSpendIsBounded(t *testing.T) {
	ledger := store.NewMemoryStore()
	gen := okGenerator()
	gw := NewGateway(ledger, gen, zerolog.Nop())
	ctx := context.Background()

	const requests = 12
	var (
		wg           sync.WaitGroup
		delivered    atomic.Int32
		insufficient atomic.Int32
	)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gw.GenerateMetered(ctx, "hot@x.com", provider.Input{Theme: "x"})
			switch {
			case err == nil:
				delivered.Add(1)
			case errors.Is(err, domain.ErrInsufficientCredits):
				insufficient.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(domain.SignupCredits), delivered.Load())
	assert.Equal(t, int32(requests-domain.SignupCredits), insufficient.Load())
	assert.Equal(t, int32(domain.SignupCredits), gen.calls.Load())

	acc, err := ledger.GetAccount(ctx, "hot@x.com")
	require.NoError(t, err)
	assert.Zero(t, acc.Credits)
}

// TestEndToEndScenario walks a new user through bootstrap, a delivered generation and a refunded one.
func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	ledger := store.NewMemoryStore()
	gen := okGenerator()
	gw := NewGateway(ledger, gen, zerolog.Nop())
	accounts := NewAccounts(ledger, nil, ProPlan{}, zerolog.Nop())

	acc, err := accounts.GetOrCreateAccount(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(5), acc.Credits)
	assert.False(t, acc.IsPro)

	out, err := gw.GenerateMetered(ctx, "a@x.com", provider.Input{Theme: "autumn"})
	require.NoError(t, err)
	assert.NotNil(t, out.Payload.Data)
	assert.Equal(t, int64(4), out.Credits)

	gen.fail(&provider.Error{Kind: provider.KindUpstream, Err: errors.New("boom")})
	_, err = gw.GenerateMetered(ctx, "a@x.com", provider.Input{Theme: "autumn"})
	require.ErrorIs(t, err, domain.ErrProviderFailure)

	acc, err = accounts.GetOrCreateAccount(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(4), acc.Credits)
}

// finishedLine returns the fields of the single "attempt finished" log line.
func finishedLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var found []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		if line["message"] == "attempt finished" {
			found = append(found, line)
		}
	}
	require.Len(t, found, 1)
	return found[0]
}

func TestGenerateMeteredLogsTerminalCharge(t *testing.T) {
	cases := []struct {
		name    string
		gen     *stubGenerator
		ledger  func() Ledger
		state   domain.AttemptState
		charged bool
	}{
		{
			name:    "delivered keeps the charge",
			gen:     okGenerator(),
			ledger:  func() Ledger { return store.NewMemoryStore() },
			state:   domain.StateDelivered,
			charged: true,
		},
		{
			name:    "refunded releases the charge",
			gen:     &stubGenerator{err: &provider.Error{Kind: provider.KindUpstream, Err: errors.New("500")}},
			ledger:  func() Ledger { return store.NewMemoryStore() },
			state:   domain.StateRefunded,
			charged: false,
		},
		{
			name: "failed refund leaves the charge",
			gen:  &stubGenerator{err: &provider.Error{Kind: provider.KindTimeout, Err: errors.New("slow")}},
			ledger: func() Ledger {
				return &flakyLedger{Ledger: store.NewMemoryStore(), grantErr: errors.New("db down")}
			},
			state:   domain.StateRefundFailed,
			charged: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			gw := NewGateway(tc.ledger(), tc.gen, zerolog.New(&buf))

			_, _ = gw.GenerateMetered(context.Background(), "a@x.com", provider.Input{Theme: "spring"})

			line := finishedLine(t, &buf)
			assert.Equal(t, string(tc.state), line["state"])
			assert.Equal(t, tc.charged, line["charged"])
		})
	}
}
