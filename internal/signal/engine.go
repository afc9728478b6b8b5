package signal

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/updownlabs/updownbot/internal/domain"
)

// Lookback is one momentum window with its blend weight.
type Lookback struct {
	Seconds float64
	Weight  float64
}

// Config tunes the signal engine.
type Config struct {
	Lookbacks []Lookback
	// MinDataAge is the cold-start guard: with less recorded history than
	// this (seconds) the engine emits a flat signal, never a guess.
	MinDataAge float64
	// MomentumScale is the 30s move that counts as full-strength momentum;
	// longer lookbacks scale with sqrt(t).
	MomentumScale float64
	// BearBoost multiplies strength on bearish signals. Down-moves resolve
	// more reliably than up-moves on these markets.
	BearBoost float64
	// MinStrength below which the direction is suppressed to flat.
	MinStrength float64
	// IndicatorDepth is how many history samples feed RSI/Bollinger.
	IndicatorDepth int
}

// DefaultConfig returns the production lookback blend.
func DefaultConfig() Config {
	return Config{
		Lookbacks: []Lookback{
			{Seconds: 30, Weight: 0.35},
			{Seconds: 90, Weight: 0.25},
			{Seconds: 180, Weight: 0.20},
			{Seconds: 300, Weight: 0.12},
			{Seconds: 600, Weight: 0.08},
		},
		MinDataAge:     120,
		MomentumScale:  0.0015,
		BearBoost:      1.15,
		MinStrength:    0.20,
		IndicatorDepth: 120,
	}
}

// Engine computes directional signals per asset from the shared history
// store.
type Engine struct {
	hist   *Store
	cfg    Config
	assets []string
	source string // feed source prefix for asset keys
	logger *slog.Logger
}

// NewEngine creates an Engine reading asset prices from hist under
// "<source>:<asset>" keys. The assets list drives cross-asset consensus.
func NewEngine(hist *Store, cfg Config, source string, assets []string, logger *slog.Logger) *Engine {
	if len(cfg.Lookbacks) == 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		hist:   hist,
		cfg:    cfg,
		assets: assets,
		source: source,
		logger: logger.With(slog.String("component", "signal_engine")),
	}
}

// AssetKey returns the history key for an asset on the engine's source.
func (e *Engine) AssetKey(asset string) string {
	return e.source + ":" + asset
}

// History exposes the underlying store for collaborators that share it.
func (e *Engine) History() *Store {
	return e.hist
}

// Evaluate computes the current signal for asset. With insufficient
// history it returns a flat signal.
func (e *Engine) Evaluate(asset string) domain.Signal {
	key := e.AssetKey(asset)
	if e.hist.DataAge(key) < e.cfg.MinDataAge {
		return domain.Signal{Label: "flat"}
	}

	var (
		weighted     float64
		usedWeight   float64
		votesWeighed float64
	)
	for _, lb := range e.cfg.Lookbacks {
		m, ok := e.hist.Momentum(key, lb.Seconds)
		if !ok {
			continue
		}
		scale := e.cfg.MomentumScale * math.Sqrt(lb.Seconds/30)
		norm := clamp(m/scale, -1, 1)
		weighted += lb.Weight * norm
		usedWeight += lb.Weight
		votesWeighed += lb.Weight * float64(signOf(m))
	}
	if usedWeight == 0 {
		return domain.Signal{Label: "flat"}
	}
	weighted /= usedWeight
	consistency := math.Abs(votesWeighed) / usedWeight

	dir := signOf(weighted)
	if dir == 0 {
		return domain.Signal{Label: "flat"}
	}
	base := math.Abs(weighted) * (0.5 + 0.5*consistency)

	closes := e.hist.Closes(key, e.cfg.IndicatorDepth)
	var rsiConf, bbConf float64
	if rsi, ok := RSI(closes); ok {
		rsiConf = rsiConfirmation(rsi, dir)
	}
	if pctB, ok := PercentB(closes); ok {
		bbConf = bollingerConfirmation(pctB, dir)
	}
	volRatio := e.hist.VolumeRatio(key, time.Minute, 10*time.Minute)
	volConf := clamp01((volRatio - 1) / 1.5)
	consensus := e.consensus(asset, dir)

	strength := base * (1 + 0.25*rsiConf + 0.20*bbConf + 0.15*volConf + 0.20*consensus)
	if dir < 0 {
		strength *= e.cfg.BearBoost
	}
	strength = clamp01(strength)

	if strength < e.cfg.MinStrength {
		return domain.Signal{Label: "flat"}
	}

	sig := domain.Signal{
		Direction:        dir,
		Strength:         strength,
		RSIConfirm:       rsiConf,
		BollingerConfirm: bbConf,
		Consensus:        consensus,
		VolumeConfirm:    volConf,
	}
	sig.Label = labelFor(sig)
	return sig
}

// consensus returns the weighted share of other tracked assets whose 90s
// momentum agrees with dir, in [0,1].
func (e *Engine) consensus(asset string, dir int) float64 {
	var agree, total float64
	for _, other := range e.assets {
		if other == asset {
			continue
		}
		m, ok := e.hist.Momentum(e.AssetKey(other), 90)
		if !ok {
			continue
		}
		total++
		if signOf(m) == dir {
			agree++
		}
	}
	if total == 0 {
		return 0
	}
	return agree / total
}

// ClassFor buckets a signal's strength for probe-record grouping.
func ClassFor(sig domain.Signal) domain.SignalClass {
	switch {
	case sig.Strength >= 0.65:
		return domain.SignalClassStrong
	case sig.Strength >= 0.45:
		return domain.SignalClassModerate
	default:
		return domain.SignalClassWeak
	}
}

func labelFor(sig domain.Signal) string {
	var dir string
	if sig.Direction > 0 {
		dir = "bull"
	} else {
		dir = "bear"
	}
	return fmt.Sprintf("%s-%s", dir, ClassFor(sig))
}

func signOf(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
