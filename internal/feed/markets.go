package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/updownlabs/updownbot/internal/domain"
)

// QuoteFn supplies a synthetic up-token price for a rolling market. The
// down token is priced at the complement.
type QuoteFn func(asset string, tf domain.Timeframe, endTime time.Time) float64

// RollingMarketSource synthesizes the aligned up/down windows a real
// venue would list, for paper trading without market discovery. Each
// (asset, timeframe) pair always has exactly one live window ending on
// the next timeframe boundary.
type RollingMarketSource struct {
	assets     []string
	timeframes []domain.Timeframe
	quote      QuoteFn
	now        func() time.Time
}

func NewRollingMarketSource(assets []string, timeframes []domain.Timeframe, quote QuoteFn, now func() time.Time) *RollingMarketSource {
	if quote == nil {
		quote = func(string, domain.Timeframe, time.Time) float64 { return 0.5 }
	}
	if now == nil {
		now = time.Now
	}
	return &RollingMarketSource{
		assets:     assets,
		timeframes: timeframes,
		quote:      quote,
		now:        now,
	}
}

// ListActiveMarkets implements domain.MarketSource.
func (s *RollingMarketSource) ListActiveMarkets(_ context.Context) ([]domain.Market, error) {
	now := s.now()
	out := make([]domain.Market, 0, len(s.assets)*len(s.timeframes))
	for _, asset := range s.assets {
		for _, tf := range s.timeframes {
			end := now.Truncate(tf.Duration()).Add(tf.Duration())
			id := fmt.Sprintf("%s-%s-%d", asset, tf, end.Unix())
			up := clampProb(s.quote(asset, tf, end))
			out = append(out, domain.Market{
				ID:        id,
				Asset:     asset,
				Timeframe: tf,
				EndTime:   end,
				UpToken:   id + "-up",
				DownToken: id + "-down",
				UpPrice:   up,
				DownPrice: 1 - up,
				UpdatedAt: now,
			})
		}
	}
	return out, nil
}

func clampProb(v float64) float64 {
	if v < 0.02 {
		return 0.02
	}
	if v > 0.98 {
		return 0.98
	}
	return v
}

var _ domain.MarketSource = (*RollingMarketSource)(nil)
