package feed

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/updownlabs/updownbot/internal/domain"
)

func TestListActiveMarketsAlignedWindows(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 7, 13, 0, time.UTC)
	src := NewRollingMarketSource(
		[]string{"BTC", "ETH"},
		[]domain.Timeframe{domain.Timeframe5m, domain.Timeframe1h},
		nil,
		func() time.Time { return now },
	)

	markets, err := src.ListActiveMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 4)

	byID := make(map[string]domain.Market, len(markets))
	for _, m := range markets {
		byID[m.ID] = m
		// Every window ends in the future, on a timeframe boundary.
		assert.True(t, m.EndTime.After(now), "market %s already expired", m.ID)
		assert.Zero(t, m.EndTime.UnixNano()%int64(m.Timeframe.Duration()))
	}

	fiveEnd := time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC)
	hourEnd := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	btc5 := byID["BTC-5m-"+strconv.FormatInt(fiveEnd.Unix(), 10)]
	assert.Equal(t, fiveEnd, btc5.EndTime)
	btc1h := byID["BTC-1h-"+strconv.FormatInt(hourEnd.Unix(), 10)]
	assert.Equal(t, hourEnd, btc1h.EndTime)
}

func TestListActiveMarketsComplementPrices(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := NewRollingMarketSource(
		[]string{"BTC"},
		[]domain.Timeframe{domain.Timeframe5m},
		func(string, domain.Timeframe, time.Time) float64 { return 0.63 },
		func() time.Time { return now },
	)

	markets, err := src.ListActiveMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, 0.63, markets[0].UpPrice)
	assert.InDelta(t, 0.37, markets[0].DownPrice, 1e-12)
}

func TestListActiveMarketsClampsQuotes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := NewRollingMarketSource(
		[]string{"BTC"},
		[]domain.Timeframe{domain.Timeframe5m},
		func(string, domain.Timeframe, time.Time) float64 { return 1.7 },
		func() time.Time { return now },
	)

	markets, err := src.ListActiveMarkets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.98, markets[0].UpPrice)
	assert.InDelta(t, 0.02, markets[0].DownPrice, 1e-12)
}

func TestListActiveMarketsTokenIDs(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := NewRollingMarketSource(
		[]string{"BTC"},
		[]domain.Timeframe{domain.Timeframe5m},
		nil,
		func() time.Time { return now },
	)

	markets, err := src.ListActiveMarkets(context.Background())
	require.NoError(t, err)
	m := markets[0]
	assert.Equal(t, m.ID+"-up", m.UpToken)
	assert.Equal(t, m.ID+"-down", m.DownToken)
	assert.Equal(t, m.UpToken, m.Token(domain.SideUp))
	assert.Equal(t, m.DownToken, m.Token(domain.SideDown))
}
