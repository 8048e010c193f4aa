package gateway

import (
	"context"
	"testing"
	"time"

	"dining-service/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulated_ChargeIsIdempotent(t *testing.T) {
	g := NewSimulated(1, 0)
	ctx := context.Background()

	first, err := g.Charge(ctx, "key-1", 2500)
	require.NoError(t, err)
	assert.Equal(t, service.GatewaySucceeded, first.Status)
	assert.NotEmpty(t, first.Reference)

	second, err := g.Charge(ctx, "key-1", 2500)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSimulated_Declines(t *testing.T) {
	g := NewSimulated(0, 0)

	res, err := g.Charge(context.Background(), "key-2", 100)
	require.NoError(t, err)
	assert.Equal(t, service.GatewayDeclined, res.Status)
	assert.Empty(t, res.Reference)
}

func TestSimulated_TimeoutStillRecordsCharge(t *testing.T) {
	g := NewSimulated(1, 200*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := g.Charge(ctx, "key-3", 900)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	g.latency = 0
	status, err := g.QueryStatus(context.Background(), "key-3")
	require.NoError(t, err)
	assert.Equal(t, service.GatewaySucceeded, status.Status)

	unknown, err := g.QueryStatus(context.Background(), "never-charged")
	require.NoError(t, err)
	assert.Equal(t, service.GatewayUnknown, unknown.Status)
}

func TestSimulated_Refund(t *testing.T) {
	g := NewSimulated(1, 0)
	ctx := context.Background()

	res, err := g.Charge(ctx, "key-4", 1000)
	require.NoError(t, err)

	require.NoError(t, g.Refund(ctx, res.Reference, 600))
	assert.ErrorIs(t, g.Refund(ctx, res.Reference, 500), ErrRefundTooLarge)
	assert.ErrorIs(t, g.Refund(ctx, "TXN-missing", 1), ErrUnknownCharge)
}

func TestSimulated_Deterministic(t *testing.T) {
	a := NewSimulated(0.5, 0)
	b := NewSimulated(0.5, 0)
	for _, key := range []string{"k1", "k2", "k3", "k4", "k5", "k6"} {
		ra, err := a.Charge(context.Background(), key, 10)
		require.NoError(t, err)
		rb, err := b.Charge(context.Background(), key, 10)
		require.NoError(t, err)
		assert.Equal(t, ra.Status, rb.Status, key)
	}
}
