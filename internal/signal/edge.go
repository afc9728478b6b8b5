package signal

import (
	"sort"
	"time"

	"github.com/updownlabs/updownbot/internal/domain"
)

// EdgeConfig tunes predictive-edge estimation.
type EdgeConfig struct {
	// DivergenceScale is the fractional gap between a leading feed and the
	// lagged oracle that maps to the maximum probability shift.
	DivergenceScale float64
	// MaxShift caps how far divergence can move the implied probability
	// away from 0.5.
	MaxShift float64
	// CatchupThreshold: once |edge| compresses below this, the market has
	// repriced and a predictive position should be closed.
	CatchupThreshold float64
	// OracleMaxAge bounds how stale the oracle observation may be before
	// divergence estimates are skipped.
	OracleMaxAge time.Duration
}

// DefaultEdgeConfig returns production edge parameters.
func DefaultEdgeConfig() EdgeConfig {
	return EdgeConfig{
		DivergenceScale:  0.003,
		MaxShift:         0.45,
		CatchupThreshold: 0.02,
		OracleMaxAge:     45 * time.Second,
	}
}

// EdgeEngine compares leading exchange feeds against the lagged
// resolution oracle to estimate how mispriced an outcome token is.
type EdgeEngine struct {
	hist    *Store
	cfg     EdgeConfig
	sources []string // feed source prefixes, fastest first
}

// NewEdgeEngine creates an EdgeEngine over the shared history store. The
// sources list names the feed prefixes whose "<source>:<asset>" keys hold
// leading prices; "oracle:<asset>" holds the lagged resolution feed.
func NewEdgeEngine(hist *Store, cfg EdgeConfig, sources []string) *EdgeEngine {
	if cfg.DivergenceScale == 0 {
		cfg = DefaultEdgeConfig()
	}
	return &EdgeEngine{hist: hist, cfg: cfg, sources: sources}
}

// OracleKey returns the history key of the resolution feed for asset.
func OracleKey(asset string) string {
	return "oracle:" + asset
}

// Evaluate estimates the predictive edge for holding the given side at
// the current outcome-token price. Estimators are tried in priority
// order: multi-source median vs oracle, single fast feed vs oracle, then
// momentum alone.
func (e *EdgeEngine) Evaluate(asset string, side domain.Side, tokenPrice float64) domain.Edge {
	impliedUp, source := e.impliedUp(asset)

	implied := impliedUp
	if side == domain.SideDown {
		implied = 1 - impliedUp
	}
	edge := implied - tokenPrice
	return domain.Edge{
		Value:       edge,
		Implied:     implied,
		MarketPrice: tokenPrice,
		Source:      source,
		CatchingUp:  absFloat(edge) < e.cfg.CatchupThreshold,
	}
}

// impliedUp produces the probability that the oracle resolves in the UP
// direction of the current move, anchored at 0.5 and shifted by feed
// divergence.
func (e *EdgeEngine) impliedUp(asset string) (float64, domain.EdgeSource) {
	oracle, oracleOK := e.freshOracle(asset)

	if oracleOK {
		if med, n := e.sourceMedian(asset); n >= 2 {
			return e.shiftFromDivergence((med - oracle) / oracle), domain.EdgeSourceMedian
		}
		if fast, ok := e.fastPrice(asset); ok {
			return e.shiftFromDivergence((fast - oracle) / oracle), domain.EdgeSourceOracle
		}
	}

	// Momentum fallback: a 3m move of DivergenceScale maps to a full shift.
	if fast, ok := e.fastKey(asset); ok {
		if m, mok := e.hist.Momentum(fast, 180); mok {
			return e.shiftFromDivergence(m), domain.EdgeSourceMomentum
		}
	}
	return 0.5, domain.EdgeSourceMomentum
}

func (e *EdgeEngine) shiftFromDivergence(div float64) float64 {
	shift := clamp(div/e.cfg.DivergenceScale, -1, 1) * e.cfg.MaxShift
	return clamp(0.5+shift, 0.02, 0.98)
}

func (e *EdgeEngine) freshOracle(asset string) (float64, bool) {
	sm, ok := e.hist.LatestSample(OracleKey(asset))
	if !ok {
		return 0, false
	}
	if e.hist.opts.Now().Sub(sm.Time) > e.cfg.OracleMaxAge {
		return 0, false
	}
	if sm.Price <= 0 {
		return 0, false
	}
	return sm.Price, true
}

func (e *EdgeEngine) sourceMedian(asset string) (float64, int) {
	prices := make([]float64, 0, len(e.sources))
	for _, src := range e.sources {
		if p, ok := e.hist.Latest(src + ":" + asset); ok {
			prices = append(prices, p)
		}
	}
	if len(prices) == 0 {
		return 0, 0
	}
	sort.Float64s(prices)
	mid := len(prices) / 2
	if len(prices)%2 == 1 {
		return prices[mid], len(prices)
	}
	return (prices[mid-1] + prices[mid]) / 2, len(prices)
}

func (e *EdgeEngine) fastPrice(asset string) (float64, bool) {
	key, ok := e.fastKey(asset)
	if !ok {
		return 0, false
	}
	return e.hist.Latest(key)
}

func (e *EdgeEngine) fastKey(asset string) (string, bool) {
	if len(e.sources) == 0 {
		return "", false
	}
	return e.sources[0] + ":" + asset, true
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
