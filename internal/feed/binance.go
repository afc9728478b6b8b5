// Package feed ingests real-time prices from exchanges, the resolution
// oracle relay, and the venue's outcome-token stream into the price
// history stores.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/jpillora/backoff"

	"github.com/updownlabs/updownbot/internal/signal"
)

// SourceBinance is the history-store key prefix for Binance prices.
const SourceBinance = "binance"

// BinanceSymbol maps an asset to its Binance spot symbol.
func BinanceSymbol(asset string) string {
	return strings.ToUpper(asset) + "USDT"
}

// BinanceFeed streams aggregated trades into the price history store,
// one connection per asset, reconnecting with exponential backoff.
type BinanceFeed struct {
	hist   *signal.Store
	assets []string
	logger *slog.Logger

	mu       sync.RWMutex
	lastSeen map[string]time.Time
}

func NewBinanceFeed(hist *signal.Store, assets []string, logger *slog.Logger) *BinanceFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &BinanceFeed{
		hist:     hist,
		assets:   assets,
		logger:   logger.With(slog.String("component", "binance_feed")),
		lastSeen: make(map[string]time.Time, len(assets)),
	}
}

// LastSeen reports when the asset's stream last delivered a trade.
func (f *BinanceFeed) LastSeen(asset string) (time.Time, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.lastSeen[asset]
	return t, ok
}

// Run blocks until ctx is cancelled, maintaining one stream per asset.
func (f *BinanceFeed) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, asset := range f.assets {
		wg.Add(1)
		go func(asset string) {
			defer wg.Done()
			f.streamAsset(ctx, asset)
		}(asset)
	}
	wg.Wait()
	return ctx.Err()
}

func (f *BinanceFeed) streamAsset(ctx context.Context, asset string) {
	log := f.logger.With(slog.String("asset", asset))
	bo := &backoff.Backoff{
		Min:    time.Second,
		Max:    time.Minute,
		Factor: 2,
		Jitter: true,
	}
	key := SourceBinance + ":" + asset
	symbol := BinanceSymbol(asset)

	for ctx.Err() == nil {
		err := f.streamOnce(ctx, symbol, key, asset, bo)
		if ctx.Err() != nil {
			return
		}
		d := bo.Duration()
		log.Warn("stream dropped, reconnecting",
			slog.Duration("delay", d),
			slog.Any("error", err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}
	}
}

// streamOnce holds one websocket session open until it errors or the
// context ends. The backoff is reset once trades flow.
func (f *BinanceFeed) streamOnce(ctx context.Context, symbol, key, asset string, bo *backoff.Backoff) error {
	errCh := make(chan error, 1)
	handler := func(event *binance.WsAggTradeEvent) {
		price, err := strconv.ParseFloat(event.Price, 64)
		if err != nil || price <= 0 {
			return
		}
		qty, _ := strconv.ParseFloat(event.Quantity, 64)
		ts := time.UnixMilli(event.TradeTime)
		f.hist.Record(key, price, qty, ts)
		bo.Reset()

		f.mu.Lock()
		f.lastSeen[asset] = ts
		f.mu.Unlock()
	}
	errHandler := func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}

	doneC, stopC, err := binance.WsAggTradeServe(symbol, handler, errHandler)
	if err != nil {
		return fmt.Errorf("feed: binance %s: %w", symbol, err)
	}

	select {
	case <-ctx.Done():
		close(stopC)
		<-doneC
		return ctx.Err()
	case err := <-errCh:
		close(stopC)
		<-doneC
		return fmt.Errorf("feed: binance %s: %w", symbol, err)
	case <-doneC:
		return fmt.Errorf("feed: binance %s: stream closed", symbol)
	}
}
