package bot

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/updownlabs/updownbot/internal/cache"
	"github.com/updownlabs/updownbot/internal/conviction"
	"github.com/updownlabs/updownbot/internal/domain"
	"github.com/updownlabs/updownbot/internal/executor"
	"github.com/updownlabs/updownbot/internal/prob"
	"github.com/updownlabs/updownbot/internal/signal"
	"github.com/updownlabs/updownbot/internal/structure"
	"github.com/updownlabs/updownbot/internal/telemetry"
)

func botClock(start time.Time) (func() time.Time, func(time.Duration)) {
	var mu sync.Mutex
	now := start
	return func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}, func(d time.Duration) {
			mu.Lock()
			now = now.Add(d)
			mu.Unlock()
		}
}

// feedTape records a persistent upward move, one sample every 5 seconds,
// with per-step returns growing so the trend registers at every scale
// and one small late dip so the move does not read as exhausted.
func feedTape(hist *signal.Store, key string, start time.Time, dur time.Duration, base, drift float64) {
	steps := int(dur / (5 * time.Second))
	dipAt := steps - 7
	price := base
	for i := 0; i < steps; i++ {
		if i == dipAt {
			price *= 1 - 12.5*drift
		}
		hist.Record(key, price, 1.0, start.Add(time.Duration(i)*5*time.Second))
		price *= 1 + drift*(1+0.3*float64(i)/float64(steps))
	}
}

// tradeClient scripts fills and counts placements.
type tradeClient struct {
	mu         sync.Mutex
	buys       int
	sells      int
	buyResult  domain.FillResult
	sellResult domain.FillResult
}

func (c *tradeClient) Buy(ctx context.Context, tokenID string, stake, limitPrice float64) (domain.FillResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buys++
	return c.buyResult, nil
}

func (c *tradeClient) Sell(ctx context.Context, tokenID string, shares, limitPrice float64, urgent bool) (domain.FillResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sells++
	return c.sellResult, nil
}

func (c *tradeClient) VerifyFilled(ctx context.Context, orderID string) (domain.VerifyResult, error) {
	return domain.VerifyResult{Matched: true}, nil
}

func (c *tradeClient) Cancel(ctx context.Context, orderID string) (bool, error) { return true, nil }

func (c *tradeClient) Balance(ctx context.Context) (float64, error) { return 100, nil }

type fakeMarkets struct{ markets []domain.Market }

func (f *fakeMarkets) ListActiveMarkets(ctx context.Context) ([]domain.Market, error) {
	return f.markets, nil
}

// fakeTradeLog serves a canned closed history, newest row first like the
// durable store does.
type fakeTradeLog struct {
	closed   []domain.ClosedPosition
	inserted []domain.ClosedPosition
}

func (l *fakeTradeLog) InsertClosed(ctx context.Context, pos domain.ClosedPosition) error {
	l.inserted = append(l.inserted, pos)
	return nil
}

func (l *fakeTradeLog) UpsertProbe(ctx context.Context, key domain.ProbeKey, rec domain.ProbeRecord) error {
	return nil
}

func (l *fakeTradeLog) LoadProbes(ctx context.Context) (map[domain.ProbeKey]domain.ProbeRecord, error) {
	return nil, nil
}

func (l *fakeTradeLog) ListClosed(ctx context.Context, limit int) ([]domain.ClosedPosition, error) {
	if limit < len(l.closed) {
		return l.closed[:limit], nil
	}
	return l.closed, nil
}

type botFixture struct {
	bot     *Bot
	state   *State
	hist    *signal.Store
	client  *tradeClient
	trades  *fakeTradeLog
	snaps   domain.SnapshotStore
	locks   domain.LockManager
	settled []domain.ClosedPosition
	nowFn   func() time.Time
	advance func(time.Duration)
}

func newBotFixture(t *testing.T, start time.Time, maxOpen int) *botFixture {
	t.Helper()
	f := &botFixture{}
	nowFn, advance := botClock(start)
	hist := signal.NewStore(signal.StoreOptions{Now: nowFn})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	scorer, err := conviction.NewScorer(conviction.DefaultWeights())
	require.NoError(t, err)

	client := &tradeClient{
		buyResult:  domain.FillResult{Success: true, OrderID: "b1", ExecPrice: 0.50, Shares: 20},
		sellResult: domain.FillResult{Success: true, OrderID: "s1", ExecPrice: 0.50, Shares: 20},
	}
	exec := executor.New(client, executor.Config{
		GraceDelay:  time.Millisecond,
		CallTimeout: time.Second,
		RatePerSec:  1000,
	}, logger)

	state := NewState(100, maxOpen)
	trades := &fakeTradeLog{}
	snaps := cache.NewMemorySnapshotStore()
	locks := cache.NewMemoryLockManager(nowFn)

	cfg := DefaultBotConfig()
	cfg.Assets = []string{"BTC"}
	cfg.MinConviction = 0.05

	b, err := New(cfg, Deps{
		State:    state,
		Engine:   signal.NewEngine(hist, signal.DefaultConfig(), "binance", cfg.Assets, logger),
		Edges:    signal.NewEdgeEngine(hist, signal.DefaultEdgeConfig(), []string{"binance"}),
		Tokens:   signal.NewTokenStore(nowFn),
		Analyzer: structure.NewAnalyzer(hist, structure.DefaultConfig(), "binance", logger, nowFn),
		Scorer:   scorer,
		Sizer:    conviction.NewSizer(conviction.DefaultSizerConfig()),
		Exec:     exec,
		Source:   &fakeMarkets{},
		Snaps:    snaps,
		Locks:    locks,
		Trades:   trades,
		Metrics:  telemetry.NewMetrics(prometheus.NewRegistry()),
		Logger:   logger,
		Now:      nowFn,
		Settled:  func(c domain.ClosedPosition) { f.settled = append(f.settled, c) },
	})
	require.NoError(t, err)

	f.bot, f.state, f.hist, f.client, f.trades = b, state, hist, client, trades
	f.snaps, f.locks, f.nowFn, f.advance = snaps, locks, nowFn, advance
	return f
}

func upMarket(now time.Time) domain.Market {
	return domain.Market{
		ID:        "btc-1h",
		Asset:     "BTC",
		Timeframe: domain.Timeframe1h,
		EndTime:   now.Add(40 * time.Minute),
		UpToken:   "btc-up",
		DownToken: "btc-down",
		UpPrice:   0.50,
		DownPrice: 0.50,
	}
}

func TestTickViewBlendsFreshUnderlying(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newBotFixture(t, start, 3)
	feedTape(f.hist, "binance:BTC", start, 30*time.Minute, 50000, 0.0004)
	f.advance(30 * time.Minute)
	now := f.nowFn()

	sm, ok := f.hist.LatestSample("binance:BTC")
	require.True(t, ok)
	require.LessOrEqual(t, now.Sub(sm.Time), maxUnderlyingAge)

	// Underwater up position: the model must blend into support and the
	// recovery distance must be measured, however long the recorded
	// history span is.
	p := &domain.Position{
		Asset:              "BTC",
		Timeframe:          domain.Timeframe1h,
		Side:               domain.SideUp,
		EntryPrice:         0.50,
		CurrentPrice:       0.45,
		Size:               20,
		CostBasis:          10,
		CryptoPriceAtEntry: sm.Price * 1.01,
		OpenedAt:           now.Add(-10 * time.Minute),
		EndTime:            now.Add(10 * time.Minute),
	}
	tv := f.bot.tickViewFor(p, now)

	secs := p.TimeRemaining(now).Seconds()
	model := prob.ProbabilityForSide(1, sm.Price, p.CryptoPriceAtEntry, secs, f.bot.cfg.AnnualVol("BTC"))
	assert.InDelta(t, prob.PriceSupport(p.CurrentPrice, model, true), tv.Support, 1e-9)
	assert.Greater(t, tv.Sigmas, 0.0)
}

func TestTickViewStaleUnderlyingFallsBack(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newBotFixture(t, start, 3)
	feedTape(f.hist, "binance:BTC", start, 30*time.Minute, 50000, 0.0004)
	// The newest quote is over a minute old by the time the tick runs.
	f.advance(31 * time.Minute)
	now := f.nowFn()

	p := &domain.Position{
		Asset:              "BTC",
		Timeframe:          domain.Timeframe1h,
		Side:               domain.SideUp,
		EntryPrice:         0.50,
		CurrentPrice:       0.45,
		Size:               20,
		CostBasis:          10,
		CryptoPriceAtEntry: 50000,
		OpenedAt:           now.Add(-10 * time.Minute),
		EndTime:            now.Add(10 * time.Minute),
	}
	tv := f.bot.tickViewFor(p, now)

	assert.InDelta(t, prob.PriceSupport(p.CurrentPrice, 0.5, false), tv.Support, 1e-9)
	assert.Zero(t, tv.Sigmas)
}

func TestSaveSnapshotYieldsToBusyTick(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newBotFixture(t, start, 3)
	ctx := context.Background()

	f.bot.guard.Lock()
	require.NoError(t, f.bot.saveSnapshot(ctx))
	_, found, err := f.snaps.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.False(t, found, "no snapshot may be taken while a tick holds the guard")
	f.bot.guard.Unlock()

	require.NoError(t, f.bot.saveSnapshot(ctx))
	_, found, err = f.snaps.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestFlushSnapshotSavesOnShutdown(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newBotFixture(t, start, 3)
	ctx := context.Background()

	require.NoError(t, f.bot.flushSnapshot(ctx))
	snap, found, err := f.snaps.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 100.0, snap.Bankroll)
}

func TestRecordOutcomeCreditsResolutionOnly(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newBotFixture(t, start, 3)
	ctx := context.Background()

	closed := domain.ClosedPosition{
		Position:  testPosition("BTC", domain.Timeframe5m, 10),
		Reason:    domain.CloseReasonResolved,
		ExitPrice: 0.95,
		Won:       true,
	}
	f.bot.recordOutcome(ctx, closed)
	require.Len(t, f.settled, 1)
	assert.Equal(t, domain.CloseReasonResolved, f.settled[0].Reason)
	assert.InDelta(t, 0.95*closed.Size, f.settled[0].ExitPrice*f.settled[0].Size, 1e-9)

	// A market exit settles through its sell fill, never the hook.
	closed.Reason = domain.CloseReasonProfit
	f.bot.recordOutcome(ctx, closed)
	assert.Len(t, f.settled, 1)
	assert.Len(t, f.trades.inserted, 2)
}

func TestTryEnterCooldownLockSkips(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newBotFixture(t, start, 3)
	feedTape(f.hist, "binance:BTC", start, 30*time.Minute, 50000, 0.0004)
	f.advance(30 * time.Minute)
	now := f.nowFn()
	ctx := context.Background()
	m := upMarket(now)

	// Another entry just went through: its cooldown lock is still live.
	release, err := f.locks.Acquire(ctx, entryCooldownKey, time.Minute)
	require.NoError(t, err)

	err = f.bot.tryEnter(ctx, m, now)
	require.ErrorIs(t, err, errSkipMarket)
	assert.Zero(t, f.client.buys)
	assert.Zero(t, f.state.OpenCount())

	// With the lock released the same market enters cleanly, proving the
	// cooldown was the only gate that tripped.
	release()
	require.NoError(t, f.bot.tryEnter(ctx, m, now))
	assert.Equal(t, 1, f.client.buys)
	assert.Equal(t, 1, f.state.OpenCount())
	assert.True(t, f.state.HasPosition("BTC", domain.Timeframe1h))
}

func TestTryEnterUnwindsFailedAdmit(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newBotFixture(t, start, 1)
	feedTape(f.hist, "binance:BTC", start, 30*time.Minute, 50000, 0.0004)
	f.advance(30 * time.Minute)
	now := f.nowFn()
	ctx := context.Background()

	// The only slot is already occupied by a different asset, so the
	// admit fails only after the buy has been confirmed.
	held := testPosition("ETH", domain.Timeframe1h, 10)
	require.NoError(t, f.state.Open(held))

	err := f.bot.tryEnter(ctx, upMarket(now), now)
	require.ErrorIs(t, err, domain.ErrMaxPositions)
	assert.Equal(t, 1, f.client.buys)
	assert.Equal(t, 1, f.client.sells, "the confirmed fill must be sold back")
	assert.Equal(t, 1, f.state.OpenCount())
	assert.False(t, f.state.HasPosition("BTC", domain.Timeframe1h))
}

func TestRestoreSeedsRecentResultsFromTradeLog(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newBotFixture(t, start, 3)
	f.trades.closed = []domain.ClosedPosition{
		{Position: testPosition("BTC", domain.Timeframe5m, 10), Won: true},
		{Position: testPosition("ETH", domain.Timeframe5m, 10), Won: false},
	}

	require.NoError(t, f.bot.restore(context.Background()))

	wins, total := f.state.RecentResults(10)
	assert.Equal(t, 1, wins)
	assert.Equal(t, 2, total)
}

func TestRestorePrefersSnapshot(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newBotFixture(t, start, 3)
	f.trades.closed = []domain.ClosedPosition{
		{Position: testPosition("BTC", domain.Timeframe5m, 10), Won: true},
	}
	prior := NewState(42, 3)
	require.NoError(t, f.snaps.SaveSnapshot(context.Background(), prior.Snapshot(f.nowFn())))

	require.NoError(t, f.bot.restore(context.Background()))

	assert.Equal(t, 42.0, f.state.Bankroll())
	_, total := f.state.RecentResults(10)
	assert.Zero(t, total)
}
