// Package bot is the decision core: it owns the bankroll/position
// aggregate, scans markets for entries, and runs every open position
// through the exit rule ladder each tick.
package bot

import (
	"fmt"
	"sync"
	"time"

	"github.com/updownlabs/updownbot/internal/domain"
)

// settlement proxy prices: a resolved token is booked at near-certainty
// rather than exactly 1/0, mirroring what redemption actually nets after
// the venue's worst-case friction.
const (
	settleWinPrice  = 0.95
	settleLossPrice = 0.05
)

// posKey identifies the one open slot per (asset, timeframe).
type posKey struct {
	asset string
	tf    domain.Timeframe
}

// State is the single owned aggregate of everything the engine mutates:
// bankroll, open positions, closed history, probe records, and counters.
// All mutation funnels through methods that enforce the accounting
// invariants; the caller loops are serialized, the mutex only guards
// readers like the status endpoint and snapshotting.
type State struct {
	mu sync.RWMutex

	bankroll  float64
	positions map[posKey]*domain.Position
	closed    []domain.ClosedPosition
	probes    map[domain.ProbeKey]*domain.ProbeRecord
	daily     domain.DailyStats
	exec      domain.ExecStats

	maxOpen   int
	closedCap int
}

// NewState creates a State with the given starting bankroll.
func NewState(bankroll float64, maxOpen int) *State {
	if maxOpen <= 0 {
		maxOpen = 3
	}
	return &State{
		bankroll:  bankroll,
		positions: make(map[posKey]*domain.Position),
		probes:    make(map[domain.ProbeKey]*domain.ProbeRecord),
		maxOpen:   maxOpen,
		closedCap: 500,
	}
}

// Bankroll returns the free (unlocked) bankroll.
func (s *State) Bankroll() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bankroll
}

// OpenCount returns the number of open positions.
func (s *State) OpenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

// HasPosition reports whether the (asset, timeframe) slot is taken.
func (s *State) HasPosition(asset string, tf domain.Timeframe) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.positions[posKey{asset, tf}]
	return ok
}

// Positions returns the open positions. The pointers are live; only the
// serialized tick loops may mutate them.
func (s *State) Positions() []*domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out
}

// Open admits a position after a confirmed entry fill, deducting its
// cost basis from the bankroll. Invariant violations are rejected before
// any state changes.
func (s *State) Open(p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.CostBasis <= 0 || p.Size <= 0 {
		return fmt.Errorf("state: open %s: non-positive cost or size", p.MarketID)
	}
	if p.CostBasis > s.bankroll {
		return fmt.Errorf("state: open %s: cost %.2f > bankroll %.2f: %w",
			p.MarketID, p.CostBasis, s.bankroll, domain.ErrInsufficientBankroll)
	}
	key := posKey{p.Asset, p.Timeframe}
	if _, exists := s.positions[key]; exists {
		return fmt.Errorf("state: open %s: %w", p.MarketID, domain.ErrDuplicatePosition)
	}
	if len(s.positions) >= s.maxOpen {
		return fmt.Errorf("state: open %s: %w", p.MarketID, domain.ErrMaxPositions)
	}

	s.bankroll -= p.CostBasis
	cp := p
	s.positions[key] = &cp
	s.exec.EntriesFilled++
	return nil
}

// Close removes a position after a confirmed exit fill, crediting the
// realized proceeds back to the bankroll. Closing an absent position is
// an error, which makes double-settlement structurally impossible.
func (s *State) Close(asset string, tf domain.Timeframe, exitPrice, proceeds float64, reason domain.CloseReason, now time.Time) (domain.ClosedPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := posKey{asset, tf}
	p, ok := s.positions[key]
	if !ok {
		return domain.ClosedPosition{}, fmt.Errorf("state: close %s/%s: %w", asset, tf, domain.ErrPositionClosed)
	}
	delete(s.positions, key)

	realized := proceeds - p.CostBasis
	s.bankroll += proceeds
	s.exec.ExitsFilled++

	cp := domain.ClosedPosition{
		Position:    *p,
		Reason:      reason,
		ExitPrice:   exitPrice,
		RealizedPnL: realized,
		Won:         realized > 0,
		ClosedAt:    now,
	}
	s.pushClosed(cp)
	s.recordDaily(now, realized)
	return cp, nil
}

// Settle resolves an expired position at the proxy settlement price.
func (s *State) Settle(asset string, tf domain.Timeframe, win bool, now time.Time) (domain.ClosedPosition, error) {
	price := settleLossPrice
	if win {
		price = settleWinPrice
	}
	s.mu.RLock()
	p, ok := s.positions[posKey{asset, tf}]
	s.mu.RUnlock()
	if !ok {
		return domain.ClosedPosition{}, fmt.Errorf("state: settle %s/%s: %w", asset, tf, domain.ErrPositionClosed)
	}
	return s.Close(asset, tf, price, price*p.Size, domain.CloseReasonResolved, now)
}

// Probe returns the record for a pattern key, creating it on first use.
func (s *State) Probe(key domain.ProbeKey) *domain.ProbeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.probes[key]
	if !ok {
		r = &domain.ProbeRecord{}
		s.probes[key] = r
	}
	return r
}

// RecordOutcome appends a closed position's result to its probe record.
func (s *State) RecordOutcome(key domain.ProbeKey, won bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.probes[key]
	if !ok {
		r = &domain.ProbeRecord{}
		s.probes[key] = r
	}
	r.Record(won)
}

// Daily returns today's realized stats.
func (s *State) Daily() domain.DailyStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.daily
}

// ResetDaily rolls the daily counters at a UTC date change.
func (s *State) ResetDaily(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	date := now.UTC().Format("2006-01-02")
	if s.daily.Date != date {
		s.daily = domain.DailyStats{Date: date}
	}
}

// ExecStats returns a copy of the execution counters.
func (s *State) ExecStats() domain.ExecStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exec
}

// CountEntryPlaced, CountEntryFailure, CountExitPlaced, CountExitFailure
// and CountCancel bump the execution counters.
func (s *State) CountEntryPlaced() { s.bump(func(e *domain.ExecStats) { e.EntriesPlaced++ }) }
func (s *State) CountEntryFailure() {
	s.bump(func(e *domain.ExecStats) { e.EntryFailures++ })
}
func (s *State) CountExitPlaced() { s.bump(func(e *domain.ExecStats) { e.ExitsPlaced++ }) }
func (s *State) CountExitFailure() {
	s.bump(func(e *domain.ExecStats) { e.ExitFailures++ })
}
func (s *State) CountCancel() { s.bump(func(e *domain.ExecStats) { e.OrdersCancelled++ }) }

func (s *State) bump(fn func(*domain.ExecStats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.exec)
}

// RecentResults returns wins over the last n closed positions, for the
// model-health breaker. The second value is how many were available.
func (s *State) RecentResults(n int) (wins, total int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.closed) - n
	if start < 0 {
		start = 0
	}
	for _, c := range s.closed[start:] {
		total++
		if c.Won {
			wins++
		}
	}
	return wins, total
}

// SeedClosed primes the closed history from the trade log, which lists
// newest first. Any existing history is replaced.
func (s *State) SeedClosed(newestFirst []domain.ClosedPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = s.closed[:0]
	for i := len(newestFirst) - 1; i >= 0; i-- {
		s.pushClosed(newestFirst[i])
	}
}

// Snapshot exports the serializable state.
func (s *State) Snapshot(now time.Time) domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := domain.Snapshot{
		Version:  1,
		Bankroll: s.bankroll,
		Daily:    s.daily,
		Exec:     s.exec,
		Probes:   make(map[string]domain.ProbeRecord, len(s.probes)),
		SavedAt:  now,
	}
	for _, p := range s.positions {
		snap.Positions = append(snap.Positions, *p)
	}
	snap.Closed = append(snap.Closed, s.closed...)
	for k, r := range s.probes {
		snap.Probes[k.String()] = *r
	}
	return snap
}

// Restore loads a snapshot, replacing all current state.
func (s *State) Restore(snap domain.Snapshot, keys func(string) (domain.ProbeKey, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bankroll = snap.Bankroll
	s.daily = snap.Daily
	s.exec = snap.Exec
	s.positions = make(map[posKey]*domain.Position, len(snap.Positions))
	for i := range snap.Positions {
		p := snap.Positions[i]
		s.positions[posKey{p.Asset, p.Timeframe}] = &p
	}
	s.closed = append([]domain.ClosedPosition(nil), snap.Closed...)
	s.probes = make(map[domain.ProbeKey]*domain.ProbeRecord, len(snap.Probes))
	for raw, rec := range snap.Probes {
		if key, ok := keys(raw); ok {
			r := rec
			s.probes[key] = &r
		}
	}
}

func (s *State) pushClosed(cp domain.ClosedPosition) {
	s.closed = append(s.closed, cp)
	if len(s.closed) > s.closedCap {
		s.closed = s.closed[len(s.closed)-s.closedCap:]
	}
}

func (s *State) recordDaily(now time.Time, realized float64) {
	date := now.UTC().Format("2006-01-02")
	if s.daily.Date != date {
		s.daily = domain.DailyStats{Date: date}
	}
	s.daily.PnL += realized
	if realized > 0 {
		s.daily.Wins++
	} else {
		s.daily.Losses++
	}
}
