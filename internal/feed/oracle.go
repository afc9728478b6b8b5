package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/updownlabs/updownbot/internal/signal"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// oracleTick is one price message from the resolution oracle relay.
type oracleTick struct {
	Asset     string  `json:"asset"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // unix ms
}

// OracleFeed streams the lagged resolution-oracle prices the edge
// engine compares fast exchange feeds against.
type OracleFeed struct {
	url    string
	hist   *signal.Store
	assets []string
	logger *slog.Logger
}

func NewOracleFeed(url string, hist *signal.Store, assets []string, logger *slog.Logger) *OracleFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &OracleFeed{
		url:    url,
		hist:   hist,
		assets: assets,
		logger: logger.With(slog.String("component", "oracle_feed")),
	}
}

// Run maintains the relay connection until ctx is cancelled.
func (f *OracleFeed) Run(ctx context.Context) error {
	bo := &backoff.Backoff{
		Min:    2 * time.Second,
		Max:    time.Minute,
		Factor: 2,
		Jitter: true,
	}
	for ctx.Err() == nil {
		err := f.session(ctx, bo)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d := bo.Duration()
		f.logger.Warn("oracle stream dropped, reconnecting",
			slog.Duration("delay", d),
			slog.Any("error", err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
	return ctx.Err()
}

func (f *OracleFeed) session(ctx context.Context, bo *backoff.Backoff) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("feed: oracle connect: %w", err)
	}
	defer conn.Close()

	sub := struct {
		Type   string   `json:"type"`
		Assets []string `json:"assets"`
	}{Type: "subscribe", Assets: f.assets}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("feed: oracle subscribe: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Ping loop; also closes the connection on ctx cancel so the read
	// below unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		t := time.NewTicker(pingPeriod)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-t.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: oracle read: %w", err)
		}
		var tick oracleTick
		if err := json.Unmarshal(raw, &tick); err != nil || tick.Price <= 0 {
			continue
		}
		f.hist.Record(signal.OracleKey(tick.Asset), tick.Price, 0, time.UnixMilli(tick.Timestamp))
		bo.Reset()
	}
}
