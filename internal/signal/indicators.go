package signal

import (
	"github.com/markcheno/go-talib"
)

const (
	rsiPeriod      = 14
	bollingerSpan  = 20
	bollingerWidth = 2.0
)

// RSI returns the latest 14-period RSI over the given closes and whether
// enough data was available. RSI sits in [0,100].
func RSI(closes []float64) (float64, bool) {
	if len(closes) < rsiPeriod+1 {
		return 0, false
	}
	out := talib.Rsi(closes, rsiPeriod)
	return out[len(out)-1], true
}

// PercentB returns the latest Bollinger %B over the given closes: 0 at the
// lower band, 1 at the upper band, outside [0,1] on a band breakout.
func PercentB(closes []float64) (float64, bool) {
	if len(closes) < bollingerSpan+1 {
		return 0, false
	}
	upper, _, lower := talib.BBands(closes, bollingerSpan, bollingerWidth, bollingerWidth, talib.SMA)
	u := upper[len(upper)-1]
	l := lower[len(lower)-1]
	if u <= l {
		return 0.5, true
	}
	return (closes[len(closes)-1] - l) / (u - l), true
}

// rsiConfirmation scores how strongly the RSI agrees with the given
// direction, in [0,1]. Extremes in the direction of travel confirm; the
// neutral zone contributes nothing.
func rsiConfirmation(rsi float64, dir int) float64 {
	switch {
	case dir > 0 && rsi >= 55:
		return clamp01((rsi - 55) / 30)
	case dir < 0 && rsi <= 45:
		return clamp01((45 - rsi) / 30)
	default:
		return 0
	}
}

// bollingerConfirmation scores band-breakout alignment with the given
// direction, in [0,1].
func bollingerConfirmation(pctB float64, dir int) float64 {
	switch {
	case dir > 0 && pctB >= 0.8:
		return clamp01((pctB - 0.8) / 0.4)
	case dir < 0 && pctB <= 0.2:
		return clamp01((0.2 - pctB) / 0.4)
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
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
