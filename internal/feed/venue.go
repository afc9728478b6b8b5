package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/updownlabs/updownbot/internal/signal"
)

// venueTick is one outcome-token price message.
type venueTick struct {
	TokenID   string  `json:"token_id"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // unix ms
}

// VenueFeed streams outcome-token prices into the fast token store.
// Subscriptions follow the active market set as windows roll over.
type VenueFeed struct {
	url    string
	tokens *signal.Store
	logger *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	tokenIDs []string
}

func NewVenueFeed(url string, tokens *signal.Store, logger *slog.Logger) *VenueFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &VenueFeed{
		url:    url,
		tokens: tokens,
		logger: logger.With(slog.String("component", "venue_feed")),
	}
}

// SetTokens replaces the subscription set. Safe to call while Run is
// active; the new set is pushed on the live connection and restored on
// reconnect.
func (f *VenueFeed) SetTokens(ids []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenIDs = append([]string(nil), ids...)
	if f.conn != nil {
		if err := f.subscribe(f.conn); err != nil {
			f.logger.Warn("resubscribe failed", slog.Any("error", err))
			f.conn.Close()
		}
	}
}

func (f *VenueFeed) subscribe(conn *websocket.Conn) error {
	sub := struct {
		Type     string   `json:"type"`
		TokenIDs []string `json:"token_ids"`
	}{Type: "subscribe", TokenIDs: f.tokenIDs}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(sub)
}

// Run maintains the venue connection until ctx is cancelled.
func (f *VenueFeed) Run(ctx context.Context) error {
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
		f.logger.Warn("venue stream dropped, reconnecting",
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

func (f *VenueFeed) session(ctx context.Context, bo *backoff.Backoff) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("feed: venue connect: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	err = f.subscribe(conn)
	f.mu.Unlock()
	if err != nil {
		conn.Close()
		return fmt.Errorf("feed: venue subscribe: %w", err)
	}
	defer func() {
		f.mu.Lock()
		f.conn = nil
		f.mu.Unlock()
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

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
			return fmt.Errorf("feed: venue read: %w", err)
		}
		var tick venueTick
		if err := json.Unmarshal(raw, &tick); err != nil || tick.TokenID == "" || tick.Price <= 0 {
			continue
		}
		f.tokens.Record(tick.TokenID, tick.Price, 0, time.UnixMilli(tick.Timestamp))
		bo.Reset()
	}
}
