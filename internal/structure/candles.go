// Package structure analyzes market structure around a prospective trade:
// regime, support/resistance, traps, exhaustion, smart-money flow, and
// chart patterns. The analyzer folds every check into a single entry or
// exit verdict.
package structure

import (
	"math"
	"time"

	"github.com/updownlabs/updownbot/internal/signal"
)

// Candle is one resampled OHLCV bar.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Start  time.Time
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Range returns high minus low.
func (c Candle) Range() float64 { return c.High - c.Low }

// Body returns the absolute open-to-close distance.
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Direction returns +1, -1 or 0 for the candle body.
func (c Candle) Direction() int {
	switch {
	case c.Close > c.Open:
		return 1
	case c.Close < c.Open:
		return -1
	default:
		return 0
	}
}

// Resample buckets raw samples into fixed-interval OHLCV candles, oldest
// first. Empty buckets are skipped rather than forward-filled.
func Resample(samples []signal.Sample, interval time.Duration) []Candle {
	if len(samples) == 0 || interval <= 0 {
		return nil
	}
	var out []Candle
	var cur *Candle
	for _, s := range samples {
		start := s.Time.Truncate(interval)
		if cur == nil || !cur.Start.Equal(start) {
			if cur != nil {
				out = append(out, *cur)
			}
			cur = &Candle{
				Open: s.Price, High: s.Price, Low: s.Price, Close: s.Price,
				Volume: s.Volume, Start: start,
			}
			continue
		}
		if s.Price > cur.High {
			cur.High = s.Price
		}
		if s.Price < cur.Low {
			cur.Low = s.Price
		}
		cur.Close = s.Price
		cur.Volume += s.Volume
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out
}

// closes extracts close prices from candles.
func closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// returnsOf computes simple close-to-close returns.
func returnsOf(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		out = append(out, (prices[i]-prices[i-1])/prices[i-1])
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
