package bot

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/updownlabs/updownbot/internal/domain"
	"github.com/updownlabs/updownbot/internal/executor"
	"github.com/updownlabs/updownbot/internal/structure"
)

// ExitRules holds the tunables of the per-tick exit ladder. Zero values
// are replaced by DefaultExitRules.
type ExitRules struct {
	// Near-expiry hold: with less than HoldWindow left on a short
	// timeframe, clearly winning or clearly dead tokens ride to
	// resolution instead of chasing a vanished book.
	HoldWindow    time.Duration
	HoldWinPrice  float64
	HoldDeadPrice float64

	// Forced liquidity-exit window per timeframe, and the slippage
	// penalty applied to proceeds inside it.
	ForcedPenalty float64

	// Support levels. StrongSupport widens profit/trailing exits,
	// FavorSupport gates reversal exits and the adaptive stop.
	StrongSupport float64
	FavorSupport  float64

	// Profit targets as a fraction of cost basis per timeframe, and the
	// widened cap multiplier when support argues to let it run.
	ProfitWidenMult float64

	// Trailing stop: only armed once peak gain exceeds MinPeakFrac of
	// cost. Keep is the fraction of the peak that must survive;
	// EmergencyKeep applies when strong support widens the stop.
	MinPeakFrac   float64
	EmergencyKeep float64

	// Reversal flip.
	ReversalStrength float64
	ReversalMaxGain  float64
	MinHoldAge       time.Duration

	// Adaptive stop-loss.
	StopWidenMult float64
	StopCatchUp   time.Duration

	// Staleness cleanup.
	StaleAgeMult float64
	StaleMaxGain float64
}

// DefaultExitRules returns the production ladder tuning.
func DefaultExitRules() ExitRules {
	return ExitRules{
		HoldWindow:       90 * time.Second,
		HoldWinPrice:     0.85,
		HoldDeadPrice:    0.10,
		ForcedPenalty:    0.03,
		StrongSupport:    0.80,
		FavorSupport:     0.55,
		ProfitWidenMult:  1.6,
		MinPeakFrac:      0.10,
		EmergencyKeep:    0.40,
		ReversalStrength: 0.60,
		ReversalMaxGain:  0.05,
		MinHoldAge:       90 * time.Second,
		StopWidenMult:    1.5,
		StopCatchUp:      5 * time.Second,
		StaleAgeMult:     2.0,
		StaleMaxGain:     0.02,
	}
}

// profitTarget is the default take-profit fraction for a timeframe.
// Faster markets move less before resolution, so targets scale down.
func profitTarget(tf domain.Timeframe) float64 {
	switch tf {
	case domain.Timeframe5m:
		return 0.20
	case domain.Timeframe15m:
		return 0.25
	case domain.Timeframe1h:
		return 0.30
	case domain.Timeframe4h:
		return 0.38
	default:
		return 0.45
	}
}

// trailingKeep is the fraction of peak gain a position must retain per
// timeframe before the trailing stop fires.
func trailingKeep(tf domain.Timeframe) float64 {
	switch tf {
	case domain.Timeframe5m:
		return 0.50
	case domain.Timeframe15m:
		return 0.55
	case domain.Timeframe1h:
		return 0.60
	default:
		return 0.65
	}
}

// stopWidth is the base stop-loss as a fraction of cost basis.
func stopWidth(tf domain.Timeframe) float64 {
	switch tf {
	case domain.Timeframe5m:
		return 0.30
	case domain.Timeframe15m:
		return 0.35
	case domain.Timeframe1h:
		return 0.40
	default:
		return 0.50
	}
}

// forcedWindow is the final stretch before expiry in which the book is
// assumed too thin for an orderly exit.
func forcedWindow(tf domain.Timeframe) time.Duration {
	switch tf {
	case domain.Timeframe5m:
		return 45 * time.Second
	case domain.Timeframe15m:
		return 2 * time.Minute
	case domain.Timeframe1h:
		return 5 * time.Minute
	case domain.Timeframe4h:
		return 10 * time.Minute
	default:
		return 20 * time.Minute
	}
}

// salvageThreshold is the recovery requirement, in standard deviations,
// above which a losing position is abandoned while a buyer still exists.
// The bar drops as time runs out.
func salvageThreshold(remaining time.Duration) float64 {
	switch {
	case remaining > time.Hour:
		return 4.0
	case remaining > 30*time.Minute:
		return 3.0
	case remaining > 15*time.Minute:
		return 2.5
	default:
		return 2.0
	}
}

// tickView is everything decide needs about the world at one instant.
// Keeping it a plain struct keeps the ladder a pure function.
type tickView struct {
	Now       time.Time
	Support   float64 // blended probability the held side wins
	Sigmas    float64 // std devs of movement needed to recover
	Signal    domain.Signal
	Advice    structure.ExitAdvice
	HasAdvice bool
}

// exitDecision is the outcome of one ladder pass.
type exitDecision struct {
	Exit    bool
	Settle  bool // resolution settlement instead of a market sell
	Win     bool // settlement outcome
	Reason  domain.CloseReason
	Detail  string
	Urgent  bool
	Penalty float64 // fraction shaved off proceeds (forced exits)
}

var hold = exitDecision{}

// Manager runs each open position through the exit ladder and executes
// the chosen exit.
type Manager struct {
	rules  ExitRules
	exec   *executor.Executor
	state  *State
	logger *slog.Logger
}

func NewManager(rules ExitRules, exec *executor.Executor, state *State, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		rules:  rules,
		exec:   exec,
		state:  state,
		logger: logger.With(slog.String("component", "position_manager")),
	}
}

// decide walks the ladder in order; the first matching rule wins.
func (m *Manager) decide(p *domain.Position, tv tickView) exitDecision {
	r := m.rules
	remaining := p.TimeRemaining(tv.Now)
	gain := p.GainPct()

	// 1. Expiry resolution.
	if remaining <= 0 {
		return exitDecision{
			Exit:   true,
			Settle: true,
			Win:    tv.Support > 0.5,
			Reason: domain.CloseReasonResolved,
			Detail: "expired",
		}
	}

	// 2. Near-expiry hold to resolution for short timeframes.
	if p.Timeframe.Short() && remaining < r.HoldWindow {
		if p.CurrentPrice > r.HoldWinPrice || p.CurrentPrice < r.HoldDeadPrice {
			return hold
		}
	}

	// 3. Forced liquidity-exit zone.
	if remaining < forcedWindow(p.Timeframe) {
		if gain > 0 && tv.Support >= r.FavorSupport {
			return hold
		}
		return exitDecision{
			Exit:    true,
			Reason:  domain.CloseReasonForced,
			Detail:  "liquidity_window",
			Urgent:  true,
			Penalty: r.ForcedPenalty,
		}
	}

	// 4. Sigma salvage: recovery statistically implausible in the time
	// left. Checked before the never-sell gate on purpose.
	if gain < 0 && !math.IsInf(tv.Sigmas, 1) && tv.Sigmas > salvageThreshold(remaining) {
		return exitDecision{
			Exit:   true,
			Reason: domain.CloseReasonSalvage,
			Detail: "recovery_implausible",
			Urgent: true,
		}
	}

	// 5. Never sell a long-timeframe position at a loss. Long-duration
	// binaries mean-revert often enough that panic-selling a dip costs
	// more than it saves; losses on these resolve or salvage, never
	// stop out.
	if p.Timeframe.Long() && gain < 0 {
		return hold
	}

	continuation := tv.HasAdvice && tv.Advice.HoldThrough

	// 6. Profit target, with a widened secondary cap when structure or
	// probability argues the move has further to go.
	target := p.TargetProfit
	if target <= 0 {
		target = profitTarget(p.Timeframe)
	}
	if gain >= target {
		if (continuation || tv.Support >= r.StrongSupport) && gain < target*r.ProfitWidenMult {
			return hold
		}
		return exitDecision{Exit: true, Reason: domain.CloseReasonProfit, Detail: "target_reached"}
	}

	// 7. Trailing stop, armed only past the minimum peak.
	minPeak := r.MinPeakFrac * p.CostBasis
	if p.PeakGain > minPeak {
		keep := trailingKeep(p.Timeframe)
		if continuation || tv.Support >= r.StrongSupport {
			keep = r.EmergencyKeep
		}
		if p.UnrealizedPnL() < keep*p.PeakGain {
			return exitDecision{Exit: true, Reason: domain.CloseReasonTrailing, Detail: "gave_back_peak"}
		}
	}

	// 8. Structure-driven exit from the intelligence gate. A winning exit
	// books as profit; a losing one is a structure stop. Long-timeframe
	// losses never reach here, the never-sell gate already held them.
	if tv.HasAdvice && tv.Advice.ExitNow {
		reason := domain.CloseReasonProfit
		if gain <= 0 {
			reason = domain.CloseReasonStop
		}
		return exitDecision{Exit: true, Reason: reason, Detail: tv.Advice.Reason}
	}

	// 9. Reversal flip: strong opposing momentum on a roughly flat
	// position, once past the anti-thrash hold age.
	if tv.Signal.Direction == p.Side.Opposite().Direction() &&
		tv.Signal.Strength >= r.ReversalStrength &&
		math.Abs(gain) < r.ReversalMaxGain &&
		p.Age(tv.Now) >= r.MinHoldAge &&
		tv.Support < r.FavorSupport {
		return exitDecision{Exit: true, Reason: domain.CloseReasonReversal, Detail: "momentum_flip"}
	}

	// 10. Adaptive stop-loss, short timeframes only. When the underlying
	// still favors us the width widens and the trigger waits a short
	// catch-up delay before finalizing, so a momentary venue/underlying
	// mismatch does not dump the position.
	if p.Timeframe.Short() {
		width := stopWidth(p.Timeframe)
		supported := tv.Support >= r.FavorSupport
		if supported {
			width *= r.StopWidenMult
		}
		if gain <= -width {
			if supported {
				if p.StopWaitSince == nil {
					t := tv.Now
					p.StopWaitSince = &t
					return hold
				}
				if tv.Now.Sub(*p.StopWaitSince) < r.StopCatchUp {
					return hold
				}
			}
			return exitDecision{Exit: true, Reason: domain.CloseReasonStop, Detail: "stop_width", Urgent: true}
		}
		if p.StopWaitSince != nil {
			p.StopWaitSince = nil
		}
	}

	// 11. Staleness cleanup.
	if p.Timeframe.Short() &&
		p.Age(tv.Now) > time.Duration(r.StaleAgeMult*float64(p.Timeframe.Duration())) &&
		math.Abs(gain) < r.StaleMaxGain {
		return exitDecision{Exit: true, Reason: domain.CloseReasonStale, Detail: "overstayed"}
	}

	return hold
}

// Evaluate runs one position through the ladder and executes any exit.
// A failed exit (no counterparty, verification miss) leaves the position
// open and counted for retry next tick.
func (m *Manager) Evaluate(ctx context.Context, p *domain.Position, tv tickView) (domain.ClosedPosition, bool) {
	dec := m.decide(p, tv)
	if !dec.Exit {
		return domain.ClosedPosition{}, false
	}

	log := m.logger.With(
		slog.String("market", p.MarketID),
		slog.String("asset", p.Asset),
		slog.String("timeframe", string(p.Timeframe)),
		slog.String("reason", string(dec.Reason)),
		slog.String("detail", dec.Detail),
	)

	if dec.Settle {
		closed, err := m.state.Settle(p.Asset, p.Timeframe, dec.Win, tv.Now)
		if err != nil {
			log.Error("settlement failed", slog.Any("error", err))
			return domain.ClosedPosition{}, false
		}
		log.Info("position settled",
			slog.Bool("won", dec.Win),
			slog.Float64("realized", closed.RealizedPnL))
		return closed, true
	}

	m.state.CountExitPlaced()
	fill, err := m.exec.SellConfirmed(ctx, p.TokenID, p.Size, p.CurrentPrice, dec.Urgent)
	if err != nil {
		p.ExitFailures++
		m.state.CountExitFailure()
		log.Warn("exit not filled, position kept",
			slog.Int("failures", p.ExitFailures),
			slog.Any("error", err))
		return domain.ClosedPosition{}, false
	}

	proceeds := fill.ExecPrice * fill.Shares
	if dec.Penalty > 0 {
		proceeds *= 1 - dec.Penalty
	}
	closed, err := m.state.Close(p.Asset, p.Timeframe, fill.ExecPrice, proceeds, dec.Reason, tv.Now)
	if err != nil {
		log.Error("close bookkeeping failed", slog.Any("error", err))
		return domain.ClosedPosition{}, false
	}
	log.Info("position closed",
		slog.Float64("exit_price", fill.ExecPrice),
		slog.Float64("realized", closed.RealizedPnL))
	return closed, true
}
