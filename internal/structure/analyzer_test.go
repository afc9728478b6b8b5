package structure

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/updownlabs/updownbot/internal/domain"
	"github.com/updownlabs/updownbot/internal/signal"
)

func testClock(start time.Time) (func() time.Time, func(time.Duration)) {
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

func newTestAnalyzer(t *testing.T, start time.Time) (*Analyzer, *signal.Store, func(time.Duration)) {
	t.Helper()
	nowFn, advance := testClock(start)
	hist := signal.NewStore(signal.StoreOptions{Now: nowFn})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAnalyzer(hist, DefaultConfig(), "binance", logger, nowFn), hist, advance
}

// feedRamp records a persistent directional move, one sample every 5
// seconds, with per-step returns growing linearly so the trend registers
// at every scale. One small dip near the end breaks the trailing candle
// run so the move does not read as exhausted.
func feedRamp(hist *signal.Store, key string, start time.Time, dur time.Duration, base, drift float64) {
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

func TestEntryVerdictInsufficientStructure(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, _, _ := newTestAnalyzer(t, start)

	v := a.EntryVerdict("BTC", domain.SideUp)
	assert.False(t, v.Veto)
	assert.Equal(t, 1.0, v.Multiplier)
	assert.Equal(t, "insufficient_structure", v.Reason)
}

func TestEntryVerdictWithTrend(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, hist, advance := newTestAnalyzer(t, start)
	feedRamp(hist, "binance:BTC", start, 30*time.Minute, 50000, 0.0004)
	advance(30 * time.Minute)

	v := a.EntryVerdict("BTC", domain.SideUp)
	require.False(t, v.Veto, "with-trend entry must not be vetoed: %s", v.Reason)
	assert.Equal(t, RegimeTrendingUp, v.Regime.Class)
	assert.GreaterOrEqual(t, v.Multiplier, 0.2)
	assert.LessOrEqual(t, v.Multiplier, 1.5)
}

func TestEntryVerdictCounterTrendVeto(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, hist, advance := newTestAnalyzer(t, start)
	feedRamp(hist, "binance:BTC", start, 30*time.Minute, 50000, 0.0004)
	advance(30 * time.Minute)

	v := a.EntryVerdict("BTC", domain.SideDown)
	require.True(t, v.Veto)
	assert.Equal(t, "counter_trend:TRENDING_UP", v.Reason)
	assert.Zero(t, v.Multiplier)
}

func TestEntryVerdictCached(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, hist, advance := newTestAnalyzer(t, start)

	// First verdict computed on an empty store.
	first := a.EntryVerdict("BTC", domain.SideUp)
	assert.Equal(t, "insufficient_structure", first.Reason)

	// Data arrives, but inside the TTL the cached verdict still serves.
	feedRamp(hist, "binance:BTC", start.Add(-30*time.Minute), 30*time.Minute, 50000, 0.0004)
	cached := a.EntryVerdict("BTC", domain.SideUp)
	assert.Equal(t, "insufficient_structure", cached.Reason)

	// Past the TTL the verdict is recomputed from the new data.
	advance(2 * time.Second)
	fresh := a.EntryVerdict("BTC", domain.SideUp)
	assert.NotEqual(t, "insufficient_structure", fresh.Reason)
	assert.NotEmpty(t, fresh.Regime.Class)
}

func TestEntryVerdictCachePerSide(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, hist, advance := newTestAnalyzer(t, start)
	feedRamp(hist, "binance:BTC", start, 30*time.Minute, 50000, 0.0004)
	advance(30 * time.Minute)

	up := a.EntryVerdict("BTC", domain.SideUp)
	down := a.EntryVerdict("BTC", domain.SideDown)
	assert.False(t, up.Veto)
	assert.True(t, down.Veto)
}

func TestObserveIncludesRoundLevels(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, hist, advance := newTestAnalyzer(t, start)
	feedRamp(hist, "binance:BTC", start, 30*time.Minute, 50000, 0.0004)
	advance(30 * time.Minute)

	snap, ok := a.observe("BTC")
	require.True(t, ok)
	for _, rp := range RoundLevels(snap.current) {
		found := false
		for _, lv := range snap.levels {
			if abs(lv.Price-rp) <= rp*a.cfg.LevelTolerance {
				found = true
				break
			}
		}
		assert.True(t, found, "round level %.0f missing from level set", rp)
	}
}

func TestExitVerdictNoData(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, _, _ := newTestAnalyzer(t, start)
	assert.Equal(t, ExitAdvice{}, a.ExitVerdict("BTC", domain.SideUp, 0.10))
}

func TestExitVerdictHealthyPullback(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, hist, advance := newTestAnalyzer(t, start)
	feedRamp(hist, "binance:BTC", start, 30*time.Minute, 50000, 0.0004)
	advance(30 * time.Minute)

	adv := a.ExitVerdict("BTC", domain.SideUp, -0.05)
	assert.True(t, adv.HoldThrough)
	assert.Equal(t, "healthy_pullback", adv.Reason)
}

func TestExitVerdictRegimeFlip(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, hist, advance := newTestAnalyzer(t, start)
	feedRamp(hist, "binance:BTC", start, 30*time.Minute, 50000, 0.0004)
	advance(30 * time.Minute)

	adv := a.ExitVerdict("BTC", domain.SideDown, -0.05)
	assert.True(t, adv.ExitNow)
	assert.Equal(t, "regime_flip", adv.Reason)
}
