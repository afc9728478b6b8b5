// Package executor wraps an execution client with the fill-verification
// protocol: every placement is verified before any position or bankroll
// state may change, and unmatched orders are cancelled rather than
// assumed filled.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/updownlabs/updownbot/internal/domain"
)

// Config tunes the executor.
type Config struct {
	// GraceDelay is how long to wait after placement before checking the
	// fill.
	GraceDelay time.Duration
	// CallTimeout bounds each client call.
	CallTimeout time.Duration
	// RatePerSec throttles venue API calls.
	RatePerSec float64
}

// DefaultConfig returns production executor parameters.
func DefaultConfig() Config {
	return Config{
		GraceDelay:  2 * time.Second,
		CallTimeout: 10 * time.Second,
		RatePerSec:  5,
	}
}

// Fill is a verified execution.
type Fill struct {
	OrderID   string
	ExecPrice float64
	Shares    float64
}

// Executor serializes verified buys and sells through a client.
type Executor struct {
	client  domain.ExecutionClient
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
	sleep   func(context.Context, time.Duration) error

	onFailure func(kind string) // telemetry hook, may be nil
	onCancel  func()            // counts confirmed order cancels, may be nil
}

// New creates an Executor around the given client.
func New(client domain.ExecutionClient, cfg Config, logger *slog.Logger) *Executor {
	if cfg.GraceDelay == 0 {
		cfg = DefaultConfig()
	}
	return &Executor{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), int(cfg.RatePerSec)+1),
		logger:  logger.With(slog.String("component", "executor")),
		sleep:   sleepCtx,
	}
}

// OnFailure registers a callback invoked once per execution failure, with
// "entry" or "exit".
func (e *Executor) OnFailure(fn func(kind string)) { e.onFailure = fn }

// OnCancel registers a callback invoked once per order the venue
// confirms cancelled. Rejected placements never reach it.
func (e *Executor) OnCancel(fn func()) { e.onCancel = fn }

// BuyConfirmed places a buy and returns only after the fill is verified.
// A placed-but-unmatched order is cancelled and ErrOrderNotFilled is
// returned; no position state may be created in that case.
func (e *Executor) BuyConfirmed(ctx context.Context, tokenID string, stake, limitPrice float64) (Fill, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return Fill{}, err
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	res, err := e.client.Buy(callCtx, tokenID, stake, limitPrice)
	cancel()
	if err != nil {
		e.fail("entry")
		return Fill{}, fmt.Errorf("executor: buy %s: %w", tokenID, err)
	}
	if !res.Success {
		e.fail("entry")
		return Fill{}, fmt.Errorf("executor: buy %s rejected: %s: %w", tokenID, res.Message, domain.ErrOrderNotFilled)
	}
	fill, err := e.confirm(ctx, res, "entry")
	if err != nil {
		return Fill{}, err
	}
	e.logger.Info("buy filled",
		slog.String("token_id", tokenID),
		slog.Float64("stake", stake),
		slog.Float64("exec_price", fill.ExecPrice),
		slog.Float64("shares", fill.Shares),
	)
	return fill, nil
}

// SellConfirmed places a sell and returns only after the fill is
// verified. On non-fill the order is cancelled and the caller must keep
// the position open.
func (e *Executor) SellConfirmed(ctx context.Context, tokenID string, shares, limitPrice float64, urgent bool) (Fill, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return Fill{}, err
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	res, err := e.client.Sell(callCtx, tokenID, shares, limitPrice, urgent)
	cancel()
	if err != nil {
		e.fail("exit")
		return Fill{}, fmt.Errorf("executor: sell %s: %w", tokenID, err)
	}
	if !res.Success {
		e.fail("exit")
		return Fill{}, fmt.Errorf("executor: sell %s rejected: %s: %w", tokenID, res.Message, domain.ErrOrderNotFilled)
	}
	fill, err := e.confirm(ctx, res, "exit")
	if err != nil {
		return Fill{}, err
	}
	e.logger.Info("sell filled",
		slog.String("token_id", tokenID),
		slog.Float64("shares", fill.Shares),
		slog.Float64("exec_price", fill.ExecPrice),
		slog.Bool("urgent", urgent),
	)
	return fill, nil
}

// confirm waits the grace delay, verifies the fill, and cancels the order
// when it did not match.
func (e *Executor) confirm(ctx context.Context, res domain.FillResult, kind string) (Fill, error) {
	if err := e.sleep(ctx, e.cfg.GraceDelay); err != nil {
		// Shutdown mid-flight: cancel rather than leave an unknown order.
		e.cancelQuiet(res.OrderID)
		return Fill{}, err
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	ver, err := e.client.VerifyFilled(callCtx, res.OrderID)
	cancel()
	if err != nil {
		e.cancelQuiet(res.OrderID)
		e.fail(kind)
		return Fill{}, fmt.Errorf("executor: verify %s: %w", res.OrderID, err)
	}
	if !ver.Matched {
		e.cancelQuiet(res.OrderID)
		e.fail(kind)
		return Fill{}, fmt.Errorf("executor: order %s: %w", res.OrderID, domain.ErrOrderNotFilled)
	}
	shares := res.Shares
	if ver.SizeMatched > 0 && ver.SizeMatched < shares {
		// Partial fills are realized as-is, not treated as errors.
		shares = ver.SizeMatched
	}
	return Fill{OrderID: res.OrderID, ExecPrice: res.ExecPrice, Shares: shares}, nil
}

// Balance proxies the client balance call with the standard timeout.
func (e *Executor) Balance(ctx context.Context) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	return e.client.Balance(callCtx)
}

func (e *Executor) cancelQuiet(orderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CallTimeout)
	defer cancel()
	ok, err := e.client.Cancel(ctx, orderID)
	if err != nil {
		e.logger.Warn("cancel failed", slog.String("order_id", orderID), slog.String("error", err.Error()))
		return
	}
	if ok && e.onCancel != nil {
		e.onCancel()
	}
}

func (e *Executor) fail(kind string) {
	if e.onFailure != nil {
		e.onFailure(kind)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
