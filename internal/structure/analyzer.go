package structure

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/updownlabs/updownbot/internal/domain"
	"github.com/updownlabs/updownbot/internal/signal"
)

// Config tunes the market-structure analyzer.
type Config struct {
	CacheTTL       time.Duration
	CandleInterval time.Duration
	Window         time.Duration
	SwingLookback  int
	LevelTolerance float64
	// WallProximity is the fractional distance to a tested level that
	// counts as entering straight into the wall.
	WallProximity float64
	// Veto confidence thresholds.
	TrapVeto       float64
	ExhaustionVeto float64
	PatternVeto    float64
	CounterTrend   float64
}

// DefaultConfig returns production analyzer parameters.
func DefaultConfig() Config {
	return Config{
		CacheTTL:       1500 * time.Millisecond,
		CandleInterval: 30 * time.Second,
		Window:         30 * time.Minute,
		SwingLookback:  2,
		LevelTolerance: 0.0015,
		WallProximity:  0.0012,
		TrapVeto:       0.60,
		ExhaustionVeto: 0.60,
		PatternVeto:    0.65,
		CounterTrend:   0.60,
	}
}

// Verdict is the analyzer's judgment on a prospective entry.
type Verdict struct {
	Veto       bool
	Reason     string
	Multiplier float64 // conviction multiplier in [0.2, 1.5]
	Regime     Regime
	Tags       []string
}

// ExitAdvice is the analyzer's judgment on an open position.
type ExitAdvice struct {
	HoldThrough bool
	ExitNow     bool
	Reason      string
}

// Analyzer computes structure verdicts over the shared history store.
// Results are cached briefly per (asset, side) to bound recomputation
// under high tick rates. The analyzer itself holds no position state.
type Analyzer struct {
	hist   *signal.Store
	cfg    Config
	source string
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cachedVerdict
}

type cachedVerdict struct {
	verdict Verdict
	at      time.Time
}

// NewAnalyzer creates an Analyzer reading asset history from
// "<source>:<asset>" keys.
func NewAnalyzer(hist *signal.Store, cfg Config, source string, logger *slog.Logger, now func() time.Time) *Analyzer {
	if cfg.CandleInterval == 0 {
		cfg = DefaultConfig()
	}
	if now == nil {
		now = time.Now
	}
	return &Analyzer{
		hist:   hist,
		cfg:    cfg,
		source: source,
		logger: logger.With(slog.String("component", "structure_analyzer")),
		now:    now,
		cache:  make(map[string]cachedVerdict),
	}
}

// snapshot bundles everything the checkers look at.
type snapshot struct {
	samples  []signal.Sample
	candles  []Candle
	current  float64
	regime   Regime
	levels   []Level
	vwapDev  float64
	trap     Trap
	exhaust  Exhaustion
	smart    SmartMoney
	patterns []Pattern
}

func (a *Analyzer) observe(asset string) (snapshot, bool) {
	samples := a.hist.Window(a.source+":"+asset, a.cfg.Window)
	candles := Resample(samples, a.cfg.CandleInterval)
	if len(candles) < 10 {
		return snapshot{}, false
	}
	current := candles[len(candles)-1].Close
	swings := FindSwings(candles, a.cfg.SwingLookback)
	levels := ClusterLevels(swings, current, a.cfg.LevelTolerance)
	levels = MergeRoundLevels(levels, current, a.cfg.LevelTolerance)
	vwapDev := VWAPDeviation(samples)
	return snapshot{
		samples:  samples,
		candles:  candles,
		current:  current,
		regime:   DetectRegime(closes(candles)),
		levels:   levels,
		vwapDev:  vwapDev,
		trap:     DetectTrap(candles, levels),
		exhaust:  DetectExhaustion(candles, vwapDev),
		smart:    DetectSmartMoney(candles),
		patterns: DetectPatterns(candles),
	}, true
}

// adjustment is the output of one entry checker: a signed conviction
// delta, or a veto.
type adjustment struct {
	delta  float64
	veto   bool
	reason string
	tag    string
}

// EntryVerdict judges entering on the given side. The conviction
// multiplier folds every checker's delta and is clamped to [0.2, 1.5];
// any veto wins outright.
func (a *Analyzer) EntryVerdict(asset string, side domain.Side) Verdict {
	key := asset + "/" + string(side)
	a.mu.Lock()
	if c, ok := a.cache[key]; ok && a.now().Sub(c.at) < a.cfg.CacheTTL {
		a.mu.Unlock()
		return c.verdict
	}
	a.mu.Unlock()

	v := a.entryVerdict(asset, side)

	a.mu.Lock()
	a.cache[key] = cachedVerdict{verdict: v, at: a.now()}
	a.mu.Unlock()
	return v
}

func (a *Analyzer) entryVerdict(asset string, side domain.Side) Verdict {
	snap, ok := a.observe(asset)
	if !ok {
		// Too little structure to argue with; neutral pass-through.
		return Verdict{Multiplier: 1.0, Reason: "insufficient_structure"}
	}
	dir := side.Direction()

	checks := []adjustment{
		a.checkRegime(snap, dir),
		a.checkTrap(snap, dir),
		a.checkExhaustion(snap, dir),
		a.checkWall(snap, dir),
		a.checkSmartMoney(snap, dir),
		a.checkMomentumQuality(snap, dir),
		a.checkVWAP(snap, dir),
		a.checkPriceAction(snap, dir),
		a.checkVolumeNode(snap, dir),
		a.checkPatterns(snap, dir),
	}

	v := Verdict{Multiplier: 1.0, Regime: snap.regime}
	for _, adj := range checks {
		if adj.veto {
			v.Veto = true
			v.Reason = adj.reason
			v.Multiplier = 0
			return v
		}
		v.Multiplier += adj.delta
		if adj.tag != "" {
			v.Tags = append(v.Tags, adj.tag)
		}
	}
	v.Multiplier = clamp(v.Multiplier, 0.2, 1.5)
	return v
}

func (a *Analyzer) checkRegime(snap snapshot, dir int) adjustment {
	r := snap.regime
	if !r.Class.Trending() {
		if r.Class == RegimeChoppy && r.Confidence > 0.5 {
			return adjustment{delta: -0.10, tag: "choppy"}
		}
		return adjustment{}
	}
	if r.Class.Direction() == dir {
		return adjustment{delta: 0.15 * r.Confidence, tag: "with_trend"}
	}
	if r.Confidence >= a.cfg.CounterTrend {
		return adjustment{veto: true, reason: fmt.Sprintf("counter_trend:%s", r.Class)}
	}
	return adjustment{delta: -0.20 * r.Confidence, tag: "counter_trend"}
}

func (a *Analyzer) checkTrap(snap snapshot, dir int) adjustment {
	t := snap.trap
	if !t.Detected || t.Direction != dir {
		return adjustment{}
	}
	if t.Confidence >= a.cfg.TrapVeto {
		return adjustment{veto: true, reason: "trap:" + t.Kind}
	}
	return adjustment{delta: -0.25 * t.Confidence, tag: "trap_risk"}
}

func (a *Analyzer) checkExhaustion(snap snapshot, dir int) adjustment {
	e := snap.exhaust
	if !e.Detected || e.Direction != dir {
		return adjustment{}
	}
	if e.Confidence >= a.cfg.ExhaustionVeto {
		return adjustment{veto: true, reason: "exhaustion"}
	}
	return adjustment{delta: -0.20 * e.Confidence, tag: "exhaustion_risk"}
}

// checkWall vetoes entries placed directly into a tested level: longs at
// resistance, shorts at support.
func (a *Analyzer) checkWall(snap snapshot, dir int) adjustment {
	kind := "resistance"
	if dir < 0 {
		kind = "support"
	}
	lv, dist, ok := NearestLevel(snap.levels, snap.current, kind)
	if !ok {
		return adjustment{}
	}
	if dist <= a.cfg.WallProximity && lv.Strength >= 3 {
		return adjustment{veto: true, reason: "at_" + kind + "_wall"}
	}
	if dist <= 2*a.cfg.WallProximity && lv.Strength >= 2 {
		return adjustment{delta: -0.15, tag: "near_" + kind}
	}
	return adjustment{}
}

func (a *Analyzer) checkSmartMoney(snap snapshot, dir int) adjustment {
	sm := snap.smart
	if sm.Direction == 0 {
		return adjustment{}
	}
	if sm.Direction == dir {
		return adjustment{delta: 0.15 * sm.Confidence, tag: "smart_money_agrees"}
	}
	return adjustment{delta: -0.20 * sm.Confidence, tag: "smart_money_opposes"}
}

// checkMomentumQuality rewards clean one-way pressure over the last few
// candles and penalizes sloppy back-and-forth.
func (a *Analyzer) checkMomentumQuality(snap snapshot, dir int) adjustment {
	n := len(snap.candles)
	look := 6
	if n < look {
		look = n
	}
	agree := 0
	for _, c := range snap.candles[n-look:] {
		if c.Direction() == dir {
			agree++
		}
	}
	quality := float64(agree) / float64(look)
	switch {
	case quality >= 0.7:
		return adjustment{delta: 0.10, tag: "clean_momentum"}
	case quality <= 0.3:
		return adjustment{delta: -0.10, tag: "sloppy_momentum"}
	default:
		return adjustment{}
	}
}

// checkVWAP penalizes chasing an over-extended move, and rewards fading
// one back toward VWAP.
func (a *Analyzer) checkVWAP(snap snapshot, dir int) adjustment {
	dev := snap.vwapDev
	if abs(dev) < 2 {
		return adjustment{}
	}
	if signMatches(dev, dir) {
		return adjustment{delta: -0.15 * clamp(abs(dev)-2, 0, 1), tag: "vwap_extended"}
	}
	return adjustment{delta: 0.10, tag: "vwap_reversion"}
}

// checkPriceAction reads the last candle pair for engulfing, pin-bar and
// doji shapes.
func (a *Analyzer) checkPriceAction(snap snapshot, dir int) adjustment {
	name, paDir := lastCandleShape(snap.candles)
	if name == "" {
		return adjustment{}
	}
	if name == "doji" {
		return adjustment{delta: -0.05, tag: "doji"}
	}
	if paDir == dir {
		return adjustment{delta: 0.10, tag: name + "_agrees"}
	}
	return adjustment{delta: -0.15, tag: name + "_opposes"}
}

// checkVolumeNode penalizes entries whose path runs straight into a
// high-volume node, a price shelf where the move tends to stall.
func (a *Analyzer) checkVolumeNode(snap snapshot, dir int) adjustment {
	node, ok := dominantVolumeNode(snap.samples)
	if !ok {
		return adjustment{}
	}
	ahead := (dir > 0 && node > snap.current) || (dir < 0 && node < snap.current)
	if !ahead {
		return adjustment{}
	}
	if abs(node-snap.current)/snap.current < 0.002 {
		return adjustment{delta: -0.10, tag: "volume_node_barrier"}
	}
	return adjustment{}
}

func (a *Analyzer) checkPatterns(snap snapshot, dir int) adjustment {
	if len(snap.patterns) == 0 {
		return adjustment{}
	}
	if best, ok := Strongest(snap.patterns); ok &&
		best.Confidence >= a.cfg.PatternVeto && best.Direction != 0 && best.Direction != dir {
		return adjustment{veto: true, reason: "pattern:" + best.Name}
	}
	bias := CombinedBias(snap.patterns)
	return adjustment{delta: 0.20 * bias * float64(dir), tag: "pattern_bias"}
}

// ExitVerdict advises on an open position on the given side with the
// given unrealized gain fraction. Chart-pattern signals override the
// heuristics once their confidence clears the veto threshold.
func (a *Analyzer) ExitVerdict(asset string, side domain.Side, gainPct float64) ExitAdvice {
	snap, ok := a.observe(asset)
	if !ok {
		return ExitAdvice{}
	}
	dir := side.Direction()

	// Pattern override first.
	if best, pok := Strongest(snap.patterns); pok && best.Confidence >= a.cfg.PatternVeto && best.Direction != 0 {
		if best.Direction == dir {
			return ExitAdvice{HoldThrough: true, Reason: "pattern_continuation:" + best.Name}
		}
		return ExitAdvice{ExitNow: true, Reason: "pattern_reversal:" + best.Name}
	}

	// Healthy pullback inside an aligned trend: hold.
	if snap.regime.Class.Trending() && snap.regime.Class.Direction() == dir &&
		gainPct < 0 && gainPct > -0.15 {
		return ExitAdvice{HoldThrough: true, Reason: "healthy_pullback"}
	}

	// Exhaustion in our direction while profitable: take it.
	if snap.exhaust.Detected && snap.exhaust.Direction == dir && gainPct > 0.05 {
		return ExitAdvice{ExitNow: true, Reason: "exhaustion_take_profit"}
	}

	// Regime flipped against the position.
	if snap.regime.Class.Trending() && snap.regime.Class.Direction() == -dir &&
		snap.regime.Confidence > 0.5 {
		return ExitAdvice{ExitNow: true, Reason: "regime_flip"}
	}

	// Mean-reversion target: we faded an extension and it came back.
	if gainPct > 0.05 && abs(snap.vwapDev) < 0.5 {
		return ExitAdvice{ExitNow: true, Reason: "vwap_target"}
	}

	// Deteriorating momentum while under water.
	if gainPct < -0.05 {
		n := len(snap.candles)
		look := 5
		if n >= look {
			against := 0
			for _, c := range snap.candles[n-look:] {
				if c.Direction() == -dir {
					against++
				}
			}
			if float64(against)/float64(look) >= 0.8 {
				return ExitAdvice{ExitNow: true, Reason: "momentum_deterioration"}
			}
		}
	}

	return ExitAdvice{}
}

// lastCandleShape classifies the final candle(s): engulfing, pin bar or
// doji. Returns the implied direction.
func lastCandleShape(candles []Candle) (string, int) {
	n := len(candles)
	if n < 2 {
		return "", 0
	}
	prev, last := candles[n-2], candles[n-1]

	if last.Range() > 0 && last.Body() < 0.1*last.Range() {
		return "doji", 0
	}
	if last.Body() > prev.Body() && prev.Body() > 0 &&
		last.Direction() != 0 && last.Direction() == -prev.Direction() {
		return "engulfing", last.Direction()
	}
	if last.Range() > 0 {
		upperWick := last.High - maxFloat(last.Open, last.Close)
		lowerWick := minFloat(last.Open, last.Close) - last.Low
		if lowerWick > 2*last.Body() && upperWick < last.Body() {
			return "pin_bar", 1
		}
		if upperWick > 2*last.Body() && lowerWick < last.Body() {
			return "pin_bar", -1
		}
	}
	return "", 0
}

// dominantVolumeNode returns the price bucket holding the largest share
// of traded volume, when that share is meaningful.
func dominantVolumeNode(samples []signal.Sample) (float64, bool) {
	if len(samples) < 20 {
		return 0, false
	}
	lo, hi := samples[0].Price, samples[0].Price
	var total float64
	for _, s := range samples {
		if s.Price < lo {
			lo = s.Price
		}
		if s.Price > hi {
			hi = s.Price
		}
		total += s.Volume
	}
	if hi <= lo || total == 0 {
		return 0, false
	}
	const buckets = 12
	vols := make([]float64, buckets)
	width := (hi - lo) / buckets
	for _, s := range samples {
		idx := int((s.Price - lo) / width)
		if idx >= buckets {
			idx = buckets - 1
		}
		vols[idx] += s.Volume
	}
	bestIdx, bestVol := 0, 0.0
	for i, v := range vols {
		if v > bestVol {
			bestIdx, bestVol = i, v
		}
	}
	if bestVol/total < 0.25 {
		return 0, false
	}
	return lo + (float64(bestIdx)+0.5)*width, true
}
