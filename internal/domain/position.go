package domain

import "time"

// CloseReason classifies how a position left the open set.
type CloseReason string

const (
	CloseReasonProfit   CloseReason = "profit"
	CloseReasonTrailing CloseReason = "trailing_stop"
	CloseReasonStop     CloseReason = "stop_loss"
	CloseReasonForced   CloseReason = "forced_liquidity"
	CloseReasonSalvage  CloseReason = "salvage"
	CloseReasonReversal CloseReason = "reversal"
	CloseReasonStale    CloseReason = "stale"
	CloseReasonResolved CloseReason = "resolved"
)

// BetTier is the sizing band a position was opened under.
type BetTier string

const (
	BetTierScout      BetTier = "SCOUT"
	BetTierSmall      BetTier = "SMALL"
	BetTierMedium     BetTier = "MEDIUM"
	BetTierHigh       BetTier = "HIGH"
	BetTierAggressive BetTier = "AGGRESSIVE"
	BetTierAllIn      BetTier = "ALL_IN"
)

// Position is one open outcome-token holding. A Position exists only after
// a confirmed entry fill and leaves the open set only after a confirmed
// exit fill or resolution settlement.
type Position struct {
	ID                 string     `json:"id"`
	MarketID           string     `json:"market_id"`
	Asset              string     `json:"asset"`
	Timeframe          Timeframe  `json:"timeframe"`
	Side               Side       `json:"side"`
	TokenID            string     `json:"token_id"`
	EntryPrice         float64    `json:"entry_price"` // (0,1)
	Size               float64    `json:"size"`        // shares
	CostBasis          float64    `json:"cost_basis"`  // currency deducted from bankroll
	TargetProfit       float64    `json:"target_profit"`
	CryptoPriceAtEntry float64    `json:"crypto_price_at_entry"`
	OpenedAt           time.Time  `json:"opened_at"`
	EndTime            time.Time  `json:"end_time"`
	PeakGain           float64    `json:"peak_gain"` // best unrealized P&L seen
	CurrentPrice       float64    `json:"current_price"`
	Conviction         float64    `json:"conviction"`
	Tier               BetTier    `json:"tier"`
	Probe              ProbeKey   `json:"probe"`
	ExitFailures       int        `json:"exit_failures"`
	StopWaitSince      *time.Time `json:"stop_wait_since,omitempty"` // set when a supported stop is pending confirmation
}

// UnrealizedPnL returns mark-to-market P&L at the current token price.
func (p *Position) UnrealizedPnL() float64 {
	return p.CurrentPrice*p.Size - p.CostBasis
}

// GainPct returns unrealized P&L as a fraction of cost basis.
func (p *Position) GainPct() float64 {
	if p.CostBasis <= 0 {
		return 0
	}
	return p.UnrealizedPnL() / p.CostBasis
}

// Age returns how long the position has been open.
func (p *Position) Age(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}

// TimeRemaining returns time until the market resolves.
func (p *Position) TimeRemaining(now time.Time) time.Duration {
	return p.EndTime.Sub(now)
}

// MarkPrice updates the live token price and the peak gain watermark.
func (p *Position) MarkPrice(price float64) {
	if price <= 0 {
		return
	}
	p.CurrentPrice = price
	if pnl := p.UnrealizedPnL(); pnl > p.PeakGain {
		p.PeakGain = pnl
	}
}

// ClosedPosition is a position moved to history with its realized outcome.
type ClosedPosition struct {
	Position
	Reason      CloseReason `json:"reason"`
	ExitPrice   float64     `json:"exit_price"`
	RealizedPnL float64     `json:"realized_pnl"`
	Won         bool        `json:"won"`
	ClosedAt    time.Time   `json:"closed_at"`
}
