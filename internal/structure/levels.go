package structure

import (
	"math"
	"sort"

	"github.com/updownlabs/updownbot/internal/signal"
)

// SwingPoint is a local extremum in the candle series.
type SwingPoint struct {
	Price float64
	Index int
	High  bool
}

// Level is a clustered support or resistance line. Strength counts how
// many swing points tested it; repeated tests make a wall.
type Level struct {
	Price    float64
	Strength int
	Kind     string // "support" or "resistance"
}

// FindSwings locates local highs and lows using a symmetric lookback
// window on each side.
func FindSwings(candles []Candle, lookback int) []SwingPoint {
	if lookback < 1 {
		lookback = 2
	}
	var out []SwingPoint
	for i := lookback; i < len(candles)-lookback; i++ {
		isHigh, isLow := true, true
		for j := i - lookback; j <= i+lookback; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= candles[i].High {
				isHigh = false
			}
			if candles[j].Low <= candles[i].Low {
				isLow = false
			}
		}
		if isHigh {
			out = append(out, SwingPoint{Price: candles[i].High, Index: i, High: true})
		}
		if isLow {
			out = append(out, SwingPoint{Price: candles[i].Low, Index: i, High: false})
		}
	}
	return out
}

// ClusterLevels merges swing points lying within tolerance (fractional)
// of each other into levels, classifying each against the current price.
func ClusterLevels(swings []SwingPoint, current, tolerance float64) []Level {
	if tolerance <= 0 {
		tolerance = 0.0015
	}
	prices := make([]float64, len(swings))
	for i, s := range swings {
		prices[i] = s.Price
	}
	sort.Float64s(prices)

	var out []Level
	i := 0
	for i < len(prices) {
		j := i + 1
		sum := prices[i]
		for j < len(prices) && prices[j]-prices[i] <= prices[i]*tolerance {
			sum += prices[j]
			j++
		}
		lv := Level{Price: sum / float64(j-i), Strength: j - i}
		if lv.Price >= current {
			lv.Kind = "resistance"
		} else {
			lv.Kind = "support"
		}
		out = append(out, lv)
		i = j
	}
	return out
}

// RoundLevels returns psychological round-number levels bracketing the
// price, stepped at a magnitude-appropriate interval.
func RoundLevels(price float64) []float64 {
	if price <= 0 {
		return nil
	}
	mag := math.Pow(10, math.Floor(math.Log10(price)))
	step := mag / 10
	if price/step > 50 {
		step = mag / 4
	}
	base := math.Floor(price/step) * step
	return []float64{base - step, base, base + step, base + 2*step}
}

// MergeRoundLevels folds the psychological round numbers around current
// into a clustered level set. A round number sitting on an existing
// level reinforces it; one standing alone joins the set at unit
// strength.
func MergeRoundLevels(levels []Level, current, tolerance float64) []Level {
	if tolerance <= 0 {
		tolerance = 0.0015
	}
	for _, rp := range RoundLevels(current) {
		if rp <= 0 {
			continue
		}
		merged := false
		for i := range levels {
			if abs(levels[i].Price-rp) <= rp*tolerance {
				levels[i].Strength++
				merged = true
				break
			}
		}
		if merged {
			continue
		}
		lv := Level{Price: rp, Strength: 1, Kind: "support"}
		if rp >= current {
			lv.Kind = "resistance"
		}
		levels = append(levels, lv)
	}
	return levels
}

// NearestLevel returns the closest level of the given kind and its
// fractional distance from price.
func NearestLevel(levels []Level, price float64, kind string) (Level, float64, bool) {
	best := Level{}
	bestDist := math.Inf(1)
	for _, lv := range levels {
		if lv.Kind != kind {
			continue
		}
		d := abs(lv.Price-price) / price
		if d < bestDist {
			best, bestDist = lv, d
		}
	}
	if math.IsInf(bestDist, 1) {
		return Level{}, 0, false
	}
	return best, bestDist, true
}

// VWAP returns the volume-weighted average price over the samples. Falls
// back to the arithmetic mean when volume is absent.
func VWAP(samples []signal.Sample) float64 {
	var pv, vol float64
	for _, s := range samples {
		pv += s.Price * s.Volume
		vol += s.Volume
	}
	if vol == 0 {
		var sum float64
		for _, s := range samples {
			sum += s.Price
		}
		if len(samples) == 0 {
			return 0
		}
		return sum / float64(len(samples))
	}
	return pv / vol
}

// VWAPDeviation returns the current price's distance from VWAP in
// standard-deviation units. Large positive values flag over-extension
// above VWAP, large negative below.
func VWAPDeviation(samples []signal.Sample) float64 {
	if len(samples) < 3 {
		return 0
	}
	vwap := VWAP(samples)
	prices := make([]float64, len(samples))
	for i, s := range samples {
		prices[i] = s.Price
	}
	sd := stddev(prices)
	if sd == 0 {
		return 0
	}
	return (prices[len(prices)-1] - vwap) / sd
}
