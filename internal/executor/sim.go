package executor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/updownlabs/updownbot/internal/domain"
)

// SimConfig tunes the paper-trading client's cost model.
type SimConfig struct {
	// Balance is the starting venue balance.
	Balance float64
	// SpreadBps is the full bid/ask spread; half is paid on each side.
	SpreadBps float64
	// SlippageBps is additional adverse price movement per fill.
	SlippageBps float64
	// FillProb is the chance a placed order matches. 1 fills everything.
	FillProb float64
	// Seed makes fills reproducible; 0 uses a fixed default.
	Seed int64
}

// DefaultSimConfig returns a realistic paper cost model.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Balance:     100,
		SpreadBps:   150,
		SlippageBps: 50,
		FillProb:    0.92,
		Seed:        1,
	}
}

type simOrder struct {
	matched bool
	shares  float64
	closed  bool
}

// SimClient is a domain.ExecutionClient that fills orders against a
// spread/slippage cost model instead of a venue. Prices and shares are
// computed in decimal and rounded to venue precision so paper accounting
// matches what a real fill report would show.
type SimClient struct {
	mu      sync.Mutex
	cfg     SimConfig
	balance decimal.Decimal
	rng     *rand.Rand
	orders  map[string]*simOrder
}

// NewSimClient creates a paper execution client.
func NewSimClient(cfg SimConfig) *SimClient {
	if cfg.Balance == 0 && cfg.FillProb == 0 {
		cfg = DefaultSimConfig()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	return &SimClient{
		cfg:     cfg,
		balance: decimal.NewFromFloat(cfg.Balance),
		rng:     rand.New(rand.NewSource(seed)),
		orders:  make(map[string]*simOrder),
	}
}

// Buy simulates a buy: the exec price is the limit price worsened by half
// the spread plus slippage, capped at 0.99. Shares are stake/price
// rounded down to 2 decimals.
func (s *SimClient) Buy(_ context.Context, tokenID string, stake, limitPrice float64) (domain.FillResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stake <= 0 || limitPrice <= 0 || limitPrice >= 1 {
		return domain.FillResult{Success: false, Message: "invalid order"}, nil
	}
	stakeDec := decimal.NewFromFloat(stake).Round(2)
	if stakeDec.GreaterThan(s.balance) {
		return domain.FillResult{Success: false, Message: "insufficient balance"}, nil
	}

	exec := s.worsen(decimal.NewFromFloat(limitPrice), true)
	shares := stakeDec.Div(exec).RoundDown(2)
	if shares.IsZero() {
		return domain.FillResult{Success: false, Message: "stake below one share"}, nil
	}

	id := uuid.New().String()
	matched := s.rng.Float64() < s.cfg.FillProb
	s.orders[id] = &simOrder{matched: matched, shares: shares.InexactFloat64()}
	if matched {
		s.balance = s.balance.Sub(shares.Mul(exec).Round(4))
	}

	ep, _ := exec.Float64()
	return domain.FillResult{
		Success:   true,
		OrderID:   id,
		ExecPrice: ep,
		Shares:    shares.InexactFloat64(),
	}, nil
}

// Sell simulates a sell at the limit price worsened by half the spread
// plus slippage; urgent sells pay double slippage.
func (s *SimClient) Sell(_ context.Context, tokenID string, shares, limitPrice float64, urgent bool) (domain.FillResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if shares <= 0 || limitPrice <= 0 || limitPrice >= 1 {
		return domain.FillResult{Success: false, Message: "invalid order"}, nil
	}
	exec := s.worsen(decimal.NewFromFloat(limitPrice), false)
	if urgent {
		slip := decimal.NewFromFloat(s.cfg.SlippageBps / 10000)
		exec = exec.Mul(decimal.NewFromInt(1).Sub(slip))
	}
	if exec.LessThanOrEqual(decimal.Zero) {
		return domain.FillResult{Success: false, Message: "no bid"}, nil
	}
	sharesDec := decimal.NewFromFloat(shares).RoundDown(2)

	id := uuid.New().String()
	matched := s.rng.Float64() < s.cfg.FillProb
	s.orders[id] = &simOrder{matched: matched, shares: sharesDec.InexactFloat64()}
	if matched {
		s.balance = s.balance.Add(sharesDec.Mul(exec).Round(4))
	}

	ep, _ := exec.Float64()
	return domain.FillResult{
		Success:   true,
		OrderID:   id,
		ExecPrice: ep,
		Shares:    sharesDec.InexactFloat64(),
	}, nil
}

// VerifyFilled reports whether a simulated order matched.
func (s *SimClient) VerifyFilled(_ context.Context, orderID string) (domain.VerifyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return domain.VerifyResult{}, fmt.Errorf("sim: order %s: %w", orderID, domain.ErrNotFound)
	}
	if !o.matched {
		return domain.VerifyResult{Matched: false}, nil
	}
	return domain.VerifyResult{Matched: true, SizeMatched: o.shares}, nil
}

// Cancel closes an unmatched simulated order.
func (s *SimClient) Cancel(_ context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return false, nil
	}
	if o.matched || o.closed {
		return false, nil
	}
	o.closed = true
	return true, nil
}

// Balance returns the simulated venue balance.
func (s *SimClient) Balance(_ context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance.InexactFloat64(), nil
}

// Credit adds settlement proceeds to the simulated balance, used when a
// held token resolves in the money.
func (s *SimClient) Credit(amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = s.balance.Add(decimal.NewFromFloat(amount))
}

// worsen applies half the spread plus slippage against the trader.
func (s *SimClient) worsen(price decimal.Decimal, buying bool) decimal.Decimal {
	adj := decimal.NewFromFloat((s.cfg.SpreadBps/2 + s.cfg.SlippageBps) / 10000)
	one := decimal.NewFromInt(1)
	var out decimal.Decimal
	if buying {
		out = price.Mul(one.Add(adj))
		ceiling := decimal.NewFromFloat(0.99)
		if out.GreaterThan(ceiling) {
			out = ceiling
		}
	} else {
		out = price.Mul(one.Sub(adj))
		floor := decimal.NewFromFloat(0.01)
		if out.LessThan(floor) {
			out = floor
		}
	}
	return out.Round(4)
}

var _ domain.ExecutionClient = (*SimClient)(nil)
