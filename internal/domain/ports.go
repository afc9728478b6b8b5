package domain

import (
	"context"
	"time"
)

// FillResult is the outcome of an order placement attempt. Success means
// the venue accepted the order, not that it matched; callers must verify
// the fill before mutating position or bankroll state.
type FillResult struct {
	Success   bool
	OrderID   string
	ExecPrice float64
	Shares    float64
	Message   string
}

// VerifyResult reports whether a placed order actually matched.
type VerifyResult struct {
	Matched     bool
	SizeMatched float64
}

// ExecutionClient abstracts order placement at the venue. Implementations
// must be safe for concurrent use.
type ExecutionClient interface {
	Buy(ctx context.Context, tokenID string, stake, limitPrice float64) (FillResult, error)
	Sell(ctx context.Context, tokenID string, shares, limitPrice float64, urgent bool) (FillResult, error)
	VerifyFilled(ctx context.Context, orderID string) (VerifyResult, error)
	Cancel(ctx context.Context, orderID string) (bool, error)
	Balance(ctx context.Context) (float64, error)
}

// MarketSource lists the currently active up/down markets. The engine
// treats each call as a pull snapshot.
type MarketSource interface {
	ListActiveMarkets(ctx context.Context) ([]Market, error)
}

// DailyStats tracks per-day realized results for the loss-limit breaker.
type DailyStats struct {
	Date   string  `json:"date"` // YYYY-MM-DD UTC
	PnL    float64 `json:"pnl"`
	Wins   int     `json:"wins"`
	Losses int     `json:"losses"`
}

// ExecStats counts execution outcomes. Failed exits never remove a
// position; they only show up here.
type ExecStats struct {
	EntriesPlaced   int `json:"entries_placed"`
	EntriesFilled   int `json:"entries_filled"`
	EntryFailures   int `json:"entry_failures"`
	ExitsPlaced     int `json:"exits_placed"`
	ExitsFilled     int `json:"exits_filled"`
	ExitFailures    int `json:"exit_failures"`
	OrdersCancelled int `json:"orders_cancelled"`
}

// Snapshot is the serializable engine state handed to persistence.
type Snapshot struct {
	Version   int                    `json:"version"`
	Bankroll  float64                `json:"bankroll"`
	Positions []Position             `json:"positions"`
	Closed    []ClosedPosition       `json:"closed"`
	Probes    map[string]ProbeRecord `json:"probes"` // keyed by ProbeKey.String()
	Daily     DailyStats             `json:"daily"`
	Exec      ExecStats              `json:"exec"`
	SavedAt   time.Time              `json:"saved_at"`
}

// SnapshotStore persists engine state between runs.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	LoadSnapshot(ctx context.Context) (Snapshot, bool, error)
}

// LockManager provides short-lived mutual exclusion, used as the
// post-entry cooldown guard. Acquire returns ErrLockHeld while the lock is
// taken; the returned release function is safe to call more than once.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// TradeLog persists closed positions and probe records for offline
// analysis. Implementations are best-effort; failures must not block the
// trading loop.
type TradeLog interface {
	InsertClosed(ctx context.Context, pos ClosedPosition) error
	UpsertProbe(ctx context.Context, key ProbeKey, rec ProbeRecord) error
	LoadProbes(ctx context.Context) (map[ProbeKey]ProbeRecord, error)
	ListClosed(ctx context.Context, limit int) ([]ClosedPosition, error)
}
