package structure

import "math"

// RegimeClass is the classified behavior mode of recent price action.
type RegimeClass string

const (
	RegimeTrendingUp    RegimeClass = "TRENDING_UP"
	RegimeTrendingDown  RegimeClass = "TRENDING_DOWN"
	RegimeMeanReverting RegimeClass = "MEAN_REVERTING"
	RegimeChoppy        RegimeClass = "CHOPPY"
	RegimeRanging       RegimeClass = "RANGING"
)

// Trending reports whether the class is directional.
func (c RegimeClass) Trending() bool {
	return c == RegimeTrendingUp || c == RegimeTrendingDown
}

// Direction returns +1/-1 for trending classes, else 0.
func (c RegimeClass) Direction() int {
	switch c {
	case RegimeTrendingUp:
		return 1
	case RegimeTrendingDown:
		return -1
	default:
		return 0
	}
}

// Regime is the classification result with the statistics behind it.
type Regime struct {
	Class         RegimeClass
	Confidence    float64 // [0,1]
	TrendStrength float64 // |mean return| / stdev
	AutoCorr      float64 // lag-1 autocorrelation of returns
	Hurst         float64 // rescaled-range exponent estimate
}

// DetectRegime classifies price action from close prices. With too little
// data it returns RANGING at zero confidence.
func DetectRegime(prices []float64) Regime {
	rets := returnsOf(prices)
	if len(rets) < 16 {
		return Regime{Class: RegimeRanging}
	}

	m := mean(rets)
	sd := stddev(rets)
	var trend float64
	if sd > 0 {
		trend = abs(m) / sd
	}
	ac := autocorr1(rets)
	h := hurstRS(rets)

	r := Regime{TrendStrength: trend, AutoCorr: ac, Hurst: h}
	switch {
	case trend > 0.15 && h > 0.55:
		if m > 0 {
			r.Class = RegimeTrendingUp
		} else {
			r.Class = RegimeTrendingDown
		}
		r.Confidence = clamp(trend*2+(h-0.55)*2, 0, 1)
	case ac < -0.25 || h < 0.42:
		r.Class = RegimeMeanReverting
		r.Confidence = clamp(math.Max(-ac*2, (0.42-h)*4), 0, 1)
	case trend < 0.05 && abs(ac) < 0.1:
		r.Class = RegimeChoppy
		r.Confidence = clamp(1-trend*10, 0, 1) * 0.6
	default:
		r.Class = RegimeRanging
		r.Confidence = 0.4
	}
	return r
}

// autocorr1 computes lag-1 autocorrelation.
func autocorr1(xs []float64) float64 {
	if len(xs) < 3 {
		return 0
	}
	m := mean(xs)
	var num, den float64
	for i := 0; i < len(xs); i++ {
		d := xs[i] - m
		den += d * d
		if i > 0 {
			num += d * (xs[i-1] - m)
		}
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// hurstRS estimates the Hurst exponent by the rescaled-range method,
// averaging R/S over a few segment sizes and fitting log(R/S) against
// log(n). Values above 0.5 indicate persistence, below 0.5 reversion.
func hurstRS(rets []float64) float64 {
	n := len(rets)
	if n < 16 {
		return 0.5
	}
	sizes := []int{8, 16, 32, 64}
	var logN, logRS []float64
	for _, size := range sizes {
		if size > n {
			break
		}
		var rsSum float64
		segments := 0
		for start := 0; start+size <= n; start += size {
			rs := rescaledRange(rets[start : start+size])
			if rs > 0 {
				rsSum += rs
				segments++
			}
		}
		if segments == 0 {
			continue
		}
		logN = append(logN, math.Log(float64(size)))
		logRS = append(logRS, math.Log(rsSum/float64(segments)))
	}
	if len(logN) < 2 {
		return 0.5
	}
	slope := linearSlope(logN, logRS)
	return clamp(slope, 0, 1)
}

func rescaledRange(seg []float64) float64 {
	m := mean(seg)
	var cum, minC, maxC float64
	for _, r := range seg {
		cum += r - m
		if cum < minC {
			minC = cum
		}
		if cum > maxC {
			maxC = cum
		}
	}
	sd := stddev(seg)
	if sd == 0 {
		return 0
	}
	return (maxC - minC) / sd
}

func linearSlope(xs, ys []float64) float64 {
	mx, my := mean(xs), mean(ys)
	var num, den float64
	for i := range xs {
		num += (xs[i] - mx) * (ys[i] - my)
		den += (xs[i] - mx) * (xs[i] - mx)
	}
	if den == 0 {
		return 0.5
	}
	return num / den
}
