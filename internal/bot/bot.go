package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/updownlabs/updownbot/internal/conviction"
	"github.com/updownlabs/updownbot/internal/domain"
	"github.com/updownlabs/updownbot/internal/executor"
	"github.com/updownlabs/updownbot/internal/prob"
	"github.com/updownlabs/updownbot/internal/signal"
	"github.com/updownlabs/updownbot/internal/structure"
	"github.com/updownlabs/updownbot/internal/telemetry"
)

// Config carries the engine loop and risk tunables.
type Config struct {
	Assets []string

	FastInterval     time.Duration
	FullInterval     time.Duration
	SnapshotInterval time.Duration
	EntryCooldown    time.Duration

	MinConviction float64
	MinEntryPrice float64
	MaxEntryPrice float64

	// Circuit breaker: daily realized loss limit in quote currency, and
	// the rolling win-rate floor with its minimum sample.
	DailyLossLimit float64
	WinRateFloor   float64
	WinRateSample  int

	// Annualized volatility per asset for the probability model, and
	// the recent/base realized-vol ratio that flags a high-vol regime.
	Volatility   map[string]float64
	HighVolRatio float64

	Rules ExitRules
}

// DefaultBotConfig returns production defaults for paper trading.
func DefaultBotConfig() Config {
	return Config{
		Assets:           []string{"BTC", "ETH", "SOL"},
		FastInterval:     2 * time.Second,
		FullInterval:     30 * time.Second,
		SnapshotInterval: time.Minute,
		EntryCooldown:    5 * time.Second,
		MinConviction:    0.30,
		MinEntryPrice:    0.05,
		MaxEntryPrice:    0.95,
		DailyLossLimit:   25.0,
		WinRateFloor:     0.35,
		WinRateSample:    20,
		Volatility: map[string]float64{
			"BTC": 0.55,
			"ETH": 0.70,
			"SOL": 1.00,
		},
		HighVolRatio: 2.0,
		Rules:        DefaultExitRules(),
	}
}

const defaultVolatility = 0.80

// AnnualVol returns the configured volatility for an asset.
func (c Config) AnnualVol(asset string) float64 {
	if v, ok := c.Volatility[asset]; ok && v > 0 {
		return v
	}
	return defaultVolatility
}

const entryCooldownKey = "updownbot:entry_cooldown"

// maxUnderlyingAge bounds how stale the newest underlying quote may be
// before the probability model sits out the tick.
const maxUnderlyingAge = 30 * time.Second

// Bot wires the signal, structure, conviction and execution layers into
// the two periodic loops that actually trade. All position mutation goes
// through the tick guard, so the engine is single-writer.
type Bot struct {
	cfg   Config
	state *State

	engine   *signal.Engine
	edges    *signal.EdgeEngine
	tokens   *signal.Store
	analyzer *structure.Analyzer
	scorer   *conviction.Scorer
	sizer    *conviction.Sizer
	exec     *executor.Executor
	manager  *Manager
	source   domain.MarketSource
	snaps    domain.SnapshotStore
	locks    domain.LockManager
	trades   domain.TradeLog
	metrics  *telemetry.Metrics
	settled  func(domain.ClosedPosition)
	logger   *slog.Logger
	now      func() time.Time

	// guard serializes the position-mutating critical section across
	// the fast and full loops. TryLock, never Lock: a tick that finds
	// the guard held is dropped, not queued.
	guard sync.Mutex

	marketsMu sync.RWMutex
	markets   map[string]domain.Market // by market ID

	// onMarkets, when set, is told about every refreshed market set so
	// the venue feed can follow token subscriptions as windows roll.
	onMarkets func([]domain.Market)
}

// Deps is the dependency set for New.
type Deps struct {
	State    *State
	Engine   *signal.Engine
	Edges    *signal.EdgeEngine
	Tokens   *signal.Store
	Analyzer *structure.Analyzer
	Scorer   *conviction.Scorer
	Sizer    *conviction.Sizer
	Exec     *executor.Executor
	Source   domain.MarketSource
	Snaps    domain.SnapshotStore
	Locks    domain.LockManager
	Trades   domain.TradeLog
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
	Now      func() time.Time

	MarketsHook func([]domain.Market)

	// Settled, when set, is told about each resolution settlement so a
	// paper venue can credit the redemption proceeds it never saw as a
	// sell order.
	Settled func(domain.ClosedPosition)
}

func New(cfg Config, d Deps) (*Bot, error) {
	switch {
	case d.State == nil, d.Engine == nil, d.Edges == nil, d.Tokens == nil,
		d.Analyzer == nil, d.Scorer == nil, d.Sizer == nil, d.Exec == nil,
		d.Source == nil, d.Locks == nil, d.Metrics == nil:
		return nil, fmt.Errorf("bot: missing dependency")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	b := &Bot{
		cfg:       cfg,
		state:     d.State,
		engine:    d.Engine,
		edges:     d.Edges,
		tokens:    d.Tokens,
		analyzer:  d.Analyzer,
		scorer:    d.Scorer,
		sizer:     d.Sizer,
		exec:      d.Exec,
		source:    d.Source,
		snaps:     d.Snaps,
		locks:     d.Locks,
		trades:    d.Trades,
		metrics:   d.Metrics,
		settled:   d.Settled,
		logger:    logger.With(slog.String("component", "bot")),
		now:       now,
		markets:   make(map[string]domain.Market),
		onMarkets: d.MarketsHook,
	}
	b.manager = NewManager(cfg.Rules, d.Exec, d.State, logger)
	d.Exec.OnFailure(func(kind string) {
		d.Metrics.RecordExecFailure(kind)
		if kind == "entry" {
			d.State.CountEntryFailure()
		}
	})
	d.Exec.OnCancel(d.State.CountCancel)
	return b, nil
}

// Run drives the loops until ctx is cancelled, then saves a final
// snapshot.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.restore(ctx); err != nil {
		b.logger.Warn("snapshot restore failed, starting fresh", slog.Any("error", err))
	}
	if err := b.refreshMarkets(ctx); err != nil {
		b.logger.Warn("initial market fetch failed", slog.Any("error", err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.loop(gctx, "fast", b.cfg.FastInterval, b.fastTick) })
	g.Go(func() error { return b.loop(gctx, "full", b.cfg.FullInterval, b.fullTick) })
	g.Go(func() error { return b.loop(gctx, "snapshot", b.cfg.SnapshotInterval, b.saveSnapshot) })
	err := g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := b.flushSnapshot(flushCtx); serr != nil {
		b.logger.Error("final snapshot failed", slog.Any("error", serr))
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// loop runs fn on a fixed ticker with per-tick panic recovery. A tick
// that cannot take the guard is dropped.
func (b *Bot) loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			b.runTick(ctx, name, fn)
		}
	}
}

func (b *Bot) runTick(ctx context.Context, name string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("tick panic recovered",
				slog.String("loop", name),
				slog.Any("panic", r))
		}
	}()
	if err := fn(ctx); err != nil {
		b.logger.Warn("tick failed", slog.String("loop", name), slog.Any("error", err))
	}
}

// fastTick works only from cached/streamed prices: mark positions, run
// the exit ladder, scan entries. No network calls.
func (b *Bot) fastTick(ctx context.Context) error {
	if !b.guard.TryLock() {
		b.metrics.RecordTickSkipped("fast")
		return nil
	}
	defer b.guard.Unlock()

	b.managePositions(ctx)
	b.scanEntries(ctx)

	b.metrics.SetBankroll(b.state.Bankroll())
	b.metrics.SetOpenCount(b.state.OpenCount())
	b.metrics.SetDailyPnL(b.state.Daily().PnL)
	return nil
}

// fullTick does the network work: market discovery refresh, daily
// rollover, then the same critical section as the fast tick so a slow
// fetch can never overlap position mutation.
func (b *Bot) fullTick(ctx context.Context) error {
	if err := b.refreshMarkets(ctx); err != nil {
		b.logger.Warn("market refresh failed", slog.Any("error", err))
	}
	b.state.ResetDaily(b.now())

	if !b.guard.TryLock() {
		b.metrics.RecordTickSkipped("full")
		return nil
	}
	defer b.guard.Unlock()

	b.managePositions(ctx)
	b.scanEntries(ctx)
	return nil
}

func (b *Bot) refreshMarkets(ctx context.Context) error {
	markets, err := b.source.ListActiveMarkets(ctx)
	if err != nil {
		return fmt.Errorf("bot: list markets: %w", err)
	}
	now := b.now()
	fresh := make(map[string]domain.Market, len(markets))
	for _, m := range markets {
		if !m.Expired(now) {
			fresh[m.ID] = m
		}
	}
	b.marketsMu.Lock()
	b.markets = fresh
	b.marketsMu.Unlock()

	if b.onMarkets != nil {
		list := make([]domain.Market, 0, len(fresh))
		for _, m := range fresh {
			list = append(list, m)
		}
		b.onMarkets(list)
	}
	return nil
}

func (b *Bot) activeMarkets() []domain.Market {
	b.marketsMu.RLock()
	defer b.marketsMu.RUnlock()
	out := make([]domain.Market, 0, len(b.markets))
	for _, m := range b.markets {
		out = append(out, m)
	}
	return out
}

// managePositions runs every open position through the exit ladder.
func (b *Bot) managePositions(ctx context.Context) {
	now := b.now()
	for _, p := range b.state.Positions() {
		if price, ok := b.tokens.Latest(p.TokenID); ok {
			p.MarkPrice(price)
		}
		tv := b.tickViewFor(p, now)
		closed, ok := b.manager.Evaluate(ctx, p, tv)
		if !ok {
			continue
		}
		b.metrics.RecordExit(string(closed.Reason))
		b.recordOutcome(ctx, closed)
	}
}

// tickViewFor assembles the world snapshot the exit ladder consumes.
func (b *Bot) tickViewFor(p *domain.Position, now time.Time) tickView {
	tv := tickView{Now: now, Support: 0.5}

	key := b.engine.AssetKey(p.Asset)
	secsLeft := p.TimeRemaining(now).Seconds()
	vol := b.cfg.AnnualVol(p.Asset)

	// Freshness is the age of the newest underlying quote, not the span
	// of recorded history.
	var underlying float64
	fresh := false
	if sm, ok := b.engine.History().LatestSample(key); ok && now.Sub(sm.Time) <= maxUnderlyingAge {
		underlying, fresh = sm.Price, true
	}
	if fresh && p.CryptoPriceAtEntry > 0 {
		model := prob.ProbabilityForSide(p.Side.Direction(), underlying, p.CryptoPriceAtEntry, secsLeft, vol)
		tv.Support = prob.PriceSupport(p.CurrentPrice, model, true)
		if p.GainPct() < 0 {
			tv.Sigmas = prob.SigmasToRecover(underlying, p.CryptoPriceAtEntry, secsLeft, vol)
		}
	} else if p.CurrentPrice > 0 {
		tv.Support = prob.PriceSupport(p.CurrentPrice, 0.5, false)
	}

	tv.Signal = b.engine.Evaluate(p.Asset)
	tv.Advice = b.analyzer.ExitVerdict(p.Asset, p.Side, p.GainPct())
	tv.HasAdvice = true
	return tv
}

// recordOutcome books a closed position into probes and, best effort,
// the durable trade log.
func (b *Bot) recordOutcome(ctx context.Context, closed domain.ClosedPosition) {
	b.state.RecordOutcome(closed.Probe, closed.Won)
	if closed.Reason == domain.CloseReasonResolved && b.settled != nil {
		b.settled(closed)
	}
	if b.trades == nil {
		return
	}
	if err := b.trades.InsertClosed(ctx, closed); err != nil {
		b.logger.Warn("trade log insert failed", slog.Any("error", err))
	}
	rec := b.state.Probe(closed.Probe)
	if err := b.trades.UpsertProbe(ctx, closed.Probe, *rec); err != nil {
		b.logger.Warn("probe upsert failed", slog.Any("error", err))
	}
}

// entriesPaused is the soft circuit breaker: daily loss limit or a
// degraded rolling win rate suppresses new entries. Exits keep running.
func (b *Bot) entriesPaused() (bool, string) {
	if d := b.state.Daily(); b.cfg.DailyLossLimit > 0 && d.PnL <= -b.cfg.DailyLossLimit {
		return true, "daily_loss_limit"
	}
	if b.cfg.WinRateSample > 0 {
		wins, total := b.state.RecentResults(b.cfg.WinRateSample)
		if total >= b.cfg.WinRateSample &&
			float64(wins)/float64(total) < b.cfg.WinRateFloor {
			return true, "win_rate_floor"
		}
	}
	return false, ""
}

func (b *Bot) restore(ctx context.Context) error {
	if b.snaps != nil {
		snap, found, err := b.snaps.LoadSnapshot(ctx)
		if err != nil {
			return err
		}
		if found {
			b.state.Restore(snap, domain.ParseProbeKey)
			b.logger.Info("state restored",
				slog.Float64("bankroll", snap.Bankroll),
				slog.Int("open_positions", len(snap.Positions)),
				slog.Time("saved_at", snap.SavedAt))
			return nil
		}
	}
	b.seedRecentResults(ctx)
	return nil
}

// seedRecentResults warms the closed-position window from the durable
// trade log when no snapshot survived, so the win-rate breaker does not
// restart blind.
func (b *Bot) seedRecentResults(ctx context.Context) {
	if b.trades == nil {
		return
	}
	limit := b.cfg.WinRateSample
	if limit <= 0 {
		limit = 50
	}
	closed, err := b.trades.ListClosed(ctx, limit)
	if err != nil {
		b.logger.Warn("closed history load failed", slog.Any("error", err))
		return
	}
	if len(closed) == 0 {
		return
	}
	b.state.SeedClosed(closed)
	b.logger.Info("recent results seeded from trade log", slog.Int("count", len(closed)))
}

// saveSnapshot persists state from inside the tick guard, so position
// structs are never copied while a tick is mutating them. A snapshot
// tick that finds the guard held is dropped like any other tick.
func (b *Bot) saveSnapshot(ctx context.Context) error {
	if b.snaps == nil {
		return nil
	}
	if !b.guard.TryLock() {
		b.metrics.RecordTickSkipped("snapshot")
		return nil
	}
	defer b.guard.Unlock()
	return b.snaps.SaveSnapshot(ctx, b.state.Snapshot(b.now()))
}

// flushSnapshot is the shutdown variant: the loops have stopped, so it
// waits for the guard instead of dropping the save.
func (b *Bot) flushSnapshot(ctx context.Context) error {
	if b.snaps == nil {
		return nil
	}
	b.guard.Lock()
	defer b.guard.Unlock()
	return b.snaps.SaveSnapshot(ctx, b.state.Snapshot(b.now()))
}
