package bot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/updownlabs/updownbot/internal/domain"
	"github.com/updownlabs/updownbot/internal/signal"
)

// scanEntries walks the active markets looking for a tradable signal.
// Runs inside the tick guard.
func (b *Bot) scanEntries(ctx context.Context) {
	if paused, reason := b.entriesPaused(); paused {
		b.metrics.SetEntriesPaused(true)
		b.logger.Debug("entries paused", slog.String("reason", reason))
		return
	}
	b.metrics.SetEntriesPaused(false)

	now := b.now()
	for _, m := range b.activeMarkets() {
		if err := b.tryEnter(ctx, m, now); err != nil {
			if !errors.Is(err, errSkipMarket) {
				b.logger.Warn("entry attempt failed",
					slog.String("market", m.ID),
					slog.Any("error", err))
			}
			continue
		}
		// One entry per tick. The cooldown lock would block further
		// entries anyway; stopping here keeps the tick short.
		return
	}
}

// errSkipMarket marks the ordinary no-trade outcome of a market scan.
var errSkipMarket = errors.New("bot: market skipped")

// tryEnter runs the full entry pipeline for one market: pre-checks,
// signal, structure gate, conviction, sizing, confirmed fill, admit.
func (b *Bot) tryEnter(ctx context.Context, m domain.Market, now time.Time) error {
	// Pre-checks that need no computation.
	if b.state.HasPosition(m.Asset, m.Timeframe) {
		return errSkipMarket
	}
	remaining := m.TimeRemaining(now)
	if remaining <= forcedWindow(m.Timeframe) {
		return errSkipMarket // would be born inside its own liquidity exit
	}

	sig := b.engine.Evaluate(m.Asset)
	if sig.Direction == 0 {
		return errSkipMarket
	}
	side := domain.SideForDirection(sig.Direction)
	tokenPrice := m.TokenPrice(side)
	if live, ok := b.tokens.Latest(m.Token(side)); ok {
		tokenPrice = live
	}
	if tokenPrice < b.cfg.MinEntryPrice || tokenPrice > b.cfg.MaxEntryPrice {
		return errSkipMarket // dead or near-certain token, no edge left
	}

	verdict := b.analyzer.EntryVerdict(m.Asset, side)
	if verdict.Veto {
		b.metrics.RecordVeto(verdict.Reason)
		b.logger.Debug("entry vetoed",
			slog.String("market", m.ID),
			slog.String("side", string(side)),
			slog.String("reason", verdict.Reason))
		return errSkipMarket
	}

	edge := b.edges.Evaluate(m.Asset, side, tokenPrice)
	if edge.CatchingUp {
		return errSkipMarket // market has already priced the move in
	}

	probeKey := domain.ProbeKey{Asset: m.Asset, Side: side, Class: signal.ClassFor(sig)}
	probe := b.state.Probe(probeKey)

	conv := b.scorer.Score(sig, edge, probe, verdict.Multiplier)
	if conv < b.cfg.MinConviction {
		return errSkipMarket
	}

	stake, tier := b.sizer.Size(conv, b.state.Bankroll(), m.Timeframe, b.highVol(m.Asset))
	if stake <= 0 {
		return errSkipMarket
	}

	// Cooldown lock: hold-then-expire, so a successful entry keeps the
	// lock for its TTL and near-simultaneous ticks cannot double-enter.
	release, err := b.locks.Acquire(ctx, entryCooldownKey, b.cfg.EntryCooldown)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return errSkipMarket
		}
		return err
	}

	b.state.CountEntryPlaced()
	fill, err := b.exec.BuyConfirmed(ctx, m.Token(side), stake, tokenPrice)
	if err != nil {
		release()
		return err
	}

	underlying, _ := b.engine.History().Latest(b.engine.AssetKey(m.Asset))
	pos := domain.Position{
		ID:                 uuid.NewString(),
		MarketID:           m.ID,
		Asset:              m.Asset,
		Timeframe:          m.Timeframe,
		Side:               side,
		TokenID:            m.Token(side),
		EntryPrice:         fill.ExecPrice,
		Size:               fill.Shares,
		CostBasis:          fill.ExecPrice * fill.Shares,
		TargetProfit:       profitTarget(m.Timeframe),
		CryptoPriceAtEntry: underlying,
		OpenedAt:           now,
		EndTime:            m.EndTime,
		CurrentPrice:       fill.ExecPrice,
		Conviction:         conv,
		Tier:               tier,
		Probe:              probeKey,
	}
	if err := b.state.Open(pos); err != nil {
		// Fill confirmed but the aggregate refused it; unwind at market
		// so the books stay consistent.
		b.logger.Error("admit failed after fill, unwinding",
			slog.String("market", m.ID), slog.Any("error", err))
		if _, serr := b.exec.SellConfirmed(ctx, pos.TokenID, pos.Size, fill.ExecPrice, true); serr != nil {
			b.logger.Error("unwind sell failed", slog.Any("error", serr))
		}
		release()
		return err
	}

	b.metrics.RecordEntry(string(tier))
	b.logger.Info("position opened",
		slog.String("market", m.ID),
		slog.String("asset", m.Asset),
		slog.String("timeframe", string(m.Timeframe)),
		slog.String("side", string(side)),
		slog.String("tier", string(tier)),
		slog.Float64("conviction", conv),
		slog.Float64("entry_price", fill.ExecPrice),
		slog.Float64("stake", pos.CostBasis),
		slog.Float64("edge", edge.Value))
	return nil
}

// highVol flags a high-volatility regime: recent realized vol well
// above the slower baseline.
func (b *Bot) highVol(asset string) bool {
	hist := b.engine.History()
	key := b.engine.AssetKey(asset)
	recent := hist.Volatility(key, 5*time.Minute)
	base := hist.Volatility(key, 30*time.Minute)
	return base > 0 && recent/base >= b.cfg.HighVolRatio
}
