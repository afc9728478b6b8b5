package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSim(balance float64) *SimClient {
	return NewSimClient(SimConfig{Balance: balance, FillProb: 1, Seed: 1})
}

func TestSimBuyDebitsBalance(t *testing.T) {
	sim := newTestSim(100)

	res, err := sim.Buy(context.Background(), "tok", 10, 0.50)
	require.NoError(t, err)
	require.True(t, res.Success)

	bal, err := sim.Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 100-res.ExecPrice*res.Shares, bal, 0.001)
}

func TestSimCreditRestoresSettlementProceeds(t *testing.T) {
	sim := newTestSim(100)

	res, err := sim.Buy(context.Background(), "tok", 10, 0.50)
	require.NoError(t, err)
	require.True(t, res.Success)
	drained, err := sim.Balance(context.Background())
	require.NoError(t, err)

	// A winning resolution redeems at roughly a dollar a share. The
	// proceeds arrive as a credit, never as a sell order.
	sim.Credit(res.Shares * 0.95)

	bal, err := sim.Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, drained+res.Shares*0.95, bal, 0.001)
	assert.Greater(t, bal, drained)
}

func TestSimBuyRejectsOverBalance(t *testing.T) {
	sim := newTestSim(5)

	res, err := sim.Buy(context.Background(), "tok", 10, 0.50)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "insufficient balance", res.Message)
}
