package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptDeliveredPath(t *testing.T) {
	a := NewAttempt("att-1", "a@x.com")
	require.NoError(t, a.Advance(StateReserved))
	assert.True(t, a.ChargedCredit)
	require.NoError(t, a.Advance(StateDelivered))
	assert.True(t, a.Terminal())
	assert.True(t, a.ChargedCredit)
}

func TestAttemptRefundedPath(t *testing.T) {
	a := NewAttempt("att-2", "a@x.com")
	require.NoError(t, a.Advance(StateReserved))
	require.NoError(t, a.Advance(StateCompensating))
	require.NoError(t, a.Advance(StateRefunded))
	assert.True(t, a.Terminal())
	assert.False(t, a.ChargedCredit)
}

func TestAttemptRejectsIllegalTransitions(t *testing.T) {
	a := NewAttempt("att-3", "a@x.com")
	require.Error(t, a.Advance(StateDelivered))

	require.NoError(t, a.Advance(StateRejected))
	assert.True(t, a.Terminal())
	assert.False(t, a.ChargedCredit)
	require.Error(t, a.Advance(StateReserved))
}

func TestProviderFailureMatchesSentinel(t *testing.T) {
	balance := int64(4)
	var err error = &ProviderFailure{Kind: "upstream", Refunded: true, Balance: &balance}
	assert.ErrorIs(t, err, ErrProviderFailure)
	assert.NotErrorIs(t, err, ErrInsufficientCredits)
	assert.Contains(t, err.Error(), "upstream")
}
