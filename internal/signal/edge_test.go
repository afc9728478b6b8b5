package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/updownlabs/updownbot/internal/domain"
)

var edgeNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEdgeFixture(t *testing.T, sources []string) (*Store, *EdgeEngine) {
	t.Helper()
	hist := NewStore(StoreOptions{Now: func() time.Time { return edgeNow }})
	return hist, NewEdgeEngine(hist, DefaultEdgeConfig(), sources)
}

func TestEvaluateMedianDivergence(t *testing.T) {
	hist, eng := newEdgeFixture(t, []string{"binance", "coinbase"})
	hist.Record(OracleKey("BTC"), 100000, 1, edgeNow)
	hist.Record("binance:BTC", 100150, 1, edgeNow)
	hist.Record("coinbase:BTC", 100450, 1, edgeNow)

	// Median 100300 leads the oracle by exactly one divergence scale, so
	// the implied probability sits at the full 0.5+0.45 shift.
	edge := eng.Evaluate("BTC", domain.SideUp, 0.60)
	assert.Equal(t, domain.EdgeSourceMedian, edge.Source)
	assert.InDelta(t, 0.95, edge.Implied, 1e-9)
	assert.InDelta(t, 0.35, edge.Value, 1e-9)
	assert.False(t, edge.CatchingUp)
}

func TestEvaluateDownSideComplement(t *testing.T) {
	hist, eng := newEdgeFixture(t, []string{"binance", "coinbase"})
	hist.Record(OracleKey("BTC"), 100000, 1, edgeNow)
	hist.Record("binance:BTC", 100150, 1, edgeNow)
	hist.Record("coinbase:BTC", 100450, 1, edgeNow)

	edge := eng.Evaluate("BTC", domain.SideDown, 0.10)
	assert.InDelta(t, 0.05, edge.Implied, 1e-9)
	assert.InDelta(t, -0.05, edge.Value, 1e-9)
}

func TestEvaluateCatchingUp(t *testing.T) {
	hist, eng := newEdgeFixture(t, []string{"binance", "coinbase"})
	hist.Record(OracleKey("BTC"), 100000, 1, edgeNow)
	hist.Record("binance:BTC", 100100, 1, edgeNow)
	hist.Record("coinbase:BTC", 100100, 1, edgeNow)

	// Divergence of a third of scale shifts by 0.15: implied 0.65 against
	// a token already at 0.64 leaves nothing left to collect.
	edge := eng.Evaluate("BTC", domain.SideUp, 0.64)
	assert.InDelta(t, 0.65, edge.Implied, 1e-9)
	assert.True(t, edge.CatchingUp)
}

func TestEvaluateSingleFeedFallsBackToOracleSource(t *testing.T) {
	hist, eng := newEdgeFixture(t, []string{"binance", "coinbase"})
	hist.Record(OracleKey("BTC"), 100000, 1, edgeNow)
	hist.Record("binance:BTC", 99700, 1, edgeNow)

	edge := eng.Evaluate("BTC", domain.SideUp, 0.50)
	assert.Equal(t, domain.EdgeSourceOracle, edge.Source)
	assert.InDelta(t, 0.05, edge.Implied, 1e-9)
	assert.InDelta(t, -0.45, edge.Value, 1e-9)
}

func TestEvaluateStaleOracleUsesMomentum(t *testing.T) {
	hist, eng := newEdgeFixture(t, []string{"binance"})
	hist.Record(OracleKey("BTC"), 100000, 1, edgeNow.Add(-60*time.Second))
	hist.Record("binance:BTC", 100000, 1, edgeNow.Add(-180*time.Second))
	hist.Record("binance:BTC", 100150, 1, edgeNow)

	// 0.0015 over three minutes is half a divergence scale.
	edge := eng.Evaluate("BTC", domain.SideUp, 0.50)
	assert.Equal(t, domain.EdgeSourceMomentum, edge.Source)
	assert.InDelta(t, 0.725, edge.Implied, 1e-9)
	assert.InDelta(t, 0.225, edge.Value, 1e-9)
}

func TestEvaluateNoDataIsNeutral(t *testing.T) {
	_, eng := newEdgeFixture(t, []string{"binance"})

	edge := eng.Evaluate("BTC", domain.SideUp, 0.50)
	assert.Equal(t, domain.EdgeSourceMomentum, edge.Source)
	assert.InDelta(t, 0.5, edge.Implied, 1e-9)
	assert.InDelta(t, 0.0, edge.Value, 1e-9)
	assert.True(t, edge.CatchingUp)
}

func TestEvaluateClampsExtremeDivergence(t *testing.T) {
	hist := NewStore(StoreOptions{Now: func() time.Time { return edgeNow }})
	cfg := DefaultEdgeConfig()
	cfg.MaxShift = 0.60
	eng := NewEdgeEngine(hist, cfg, []string{"binance"})

	hist.Record(OracleKey("BTC"), 100000, 1, edgeNow)
	hist.Record("binance:BTC", 101000, 1, edgeNow)

	// Shift would land at 1.1; the probability clamp holds it to 0.98.
	edge := eng.Evaluate("BTC", domain.SideUp, 0.50)
	assert.InDelta(t, 0.98, edge.Implied, 1e-9)

	down := eng.Evaluate("BTC", domain.SideDown, 0.50)
	assert.InDelta(t, 0.02, down.Implied, 1e-9)
}

func TestNewEdgeEngineZeroConfigGetsDefaults(t *testing.T) {
	hist := NewStore(StoreOptions{Now: func() time.Time { return edgeNow }})
	eng := NewEdgeEngine(hist, EdgeConfig{}, []string{"binance"})
	require.Equal(t, DefaultEdgeConfig(), eng.cfg)
}

func TestOracleKey(t *testing.T) {
	assert.Equal(t, "oracle:ETH", OracleKey("ETH"))
}
