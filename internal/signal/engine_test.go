package signal

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/updownlabs/updownbot/internal/domain"
)

func newTestEngine(t *testing.T, start time.Time) (*Engine, *Store, func(time.Duration)) {
	t.Helper()
	now, advance := fixedClock(start)
	hist := NewStore(StoreOptions{Now: now})
	eng := NewEngine(hist, DefaultConfig(), "binance", []string{"BTC", "ETH"}, slog.Default())
	return eng, hist, advance
}

// feedTrend records a steady tape: drift is the per-second fractional
// move, over the given span at 1 Hz.
func feedTrend(hist *Store, key string, start time.Time, span time.Duration, base, drift float64) {
	secs := int(span.Seconds())
	price := base
	for i := 0; i <= secs; i++ {
		hist.Record(key, price, 1.0, start.Add(time.Duration(i)*time.Second))
		price *= 1 + drift
	}
}

func TestEvaluateColdStartIsFlat(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	eng, hist, advance := newTestEngine(t, start)

	// A minute of strong moves is still under the minimum data age.
	feedTrend(hist, "binance:BTC", start, time.Minute, 50000, 0.0005)
	advance(time.Minute)

	sig := eng.Evaluate("BTC")
	assert.Equal(t, 0, sig.Direction)
	assert.Equal(t, 0.0, sig.Strength)
	assert.Equal(t, "flat", sig.Label)
}

func TestEvaluateSustainedUptrend(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	eng, hist, advance := newTestEngine(t, start)

	// Fifteen minutes of consistent drift on both assets, so consensus
	// agrees too.
	feedTrend(hist, "binance:BTC", start, 15*time.Minute, 50000, 0.00008)
	feedTrend(hist, "binance:ETH", start, 15*time.Minute, 3000, 0.00008)
	advance(15 * time.Minute)

	sig := eng.Evaluate("BTC")
	require.Equal(t, 1, sig.Direction)
	assert.Greater(t, sig.Strength, 0.4, "steady aligned trend should score well")
	assert.Equal(t, 1.0, sig.Consensus, "the other asset agrees")
	assert.Contains(t, sig.Label, "bull")
}

func TestEvaluateBearBoostAsymmetry(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Drift small enough that neither score saturates the [0,1] clamp.
	engUp, histUp, advUp := newTestEngine(t, start)
	feedTrend(histUp, "binance:BTC", start, 15*time.Minute, 50000, 0.00001)
	advUp(15 * time.Minute)
	up := engUp.Evaluate("BTC")

	engDown, histDown, advDown := newTestEngine(t, start)
	feedTrend(histDown, "binance:BTC", start, 15*time.Minute, 50000, -0.00001)
	advDown(15 * time.Minute)
	down := engDown.Evaluate("BTC")

	require.Equal(t, 1, up.Direction)
	require.Equal(t, -1, down.Direction)
	assert.Greater(t, down.Strength, up.Strength,
		"equal-magnitude down-moves score stronger than up-moves")
}

func TestEvaluateChopIsSuppressed(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	eng, hist, advance := newTestEngine(t, start)

	// Alternating ticks around a flat mean.
	for i := 0; i <= 900; i++ {
		price := 50000.0
		if i%2 == 0 {
			price += 3
		} else {
			price -= 3
		}
		hist.Record("binance:BTC", price, 1.0, start.Add(time.Duration(i)*time.Second))
	}
	advance(15 * time.Minute)

	sig := eng.Evaluate("BTC")
	assert.Equal(t, "flat", sig.Label, "chop never clears the strength floor")
}

func TestClassFor(t *testing.T) {
	assert.Equal(t, domain.SignalClassWeak, ClassFor(domain.Signal{Strength: 0.30}))
	assert.Equal(t, domain.SignalClassModerate, ClassFor(domain.Signal{Strength: 0.50}))
	assert.Equal(t, domain.SignalClassStrong, ClassFor(domain.Signal{Strength: 0.80}))
}
