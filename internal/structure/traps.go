package structure

// Trap flags a price pattern that punishes breakout entries: the move
// that looks like the start of a trend is actually the end of one.
// Direction is the direction the trap is baiting (+1 baits longs).
type Trap struct {
	Detected   bool
	Kind       string
	Direction  int
	Confidence float64
}

// DetectTrap runs the trap checks over recent candles and clustered
// levels and returns the highest-confidence hit.
func DetectTrap(candles []Candle, levels []Level) Trap {
	if len(candles) < 6 {
		return Trap{}
	}
	best := Trap{}
	for _, t := range []Trap{
		falseBreakout(candles, levels),
		breakoutVolumeDivergence(candles),
		vReversal(candles),
		stopHunt(candles),
		absorption(candles),
	} {
		if t.Detected && t.Confidence > best.Confidence {
			best = t
		}
	}
	return best
}

// falseBreakout: price poked through a tested level within the last few
// candles and closed back on the original side.
func falseBreakout(candles []Candle, levels []Level) Trap {
	last := candles[len(candles)-1]
	for _, lv := range levels {
		if lv.Strength < 2 {
			continue
		}
		for i := len(candles) - 3; i < len(candles); i++ {
			if i < 0 {
				continue
			}
			c := candles[i]
			if lv.Kind == "resistance" && c.High > lv.Price && last.Close < lv.Price {
				return Trap{Detected: true, Kind: "false_breakout", Direction: 1,
					Confidence: clamp(0.5+0.1*float64(lv.Strength), 0, 0.9)}
			}
			if lv.Kind == "support" && c.Low < lv.Price && last.Close > lv.Price {
				return Trap{Detected: true, Kind: "false_breakout", Direction: -1,
					Confidence: clamp(0.5+0.1*float64(lv.Strength), 0, 0.9)}
			}
		}
	}
	return Trap{}
}

// breakoutVolumeDivergence: the latest candle pushes to a new local
// extreme on volume well below the recent average. Thin breakouts fail.
func breakoutVolumeDivergence(candles []Candle) Trap {
	n := len(candles)
	last := candles[n-1]
	var hi, lo, volSum float64
	lo = candles[0].Low
	for _, c := range candles[:n-1] {
		if c.High > hi {
			hi = c.High
		}
		if c.Low < lo {
			lo = c.Low
		}
		volSum += c.Volume
	}
	avgVol := volSum / float64(n-1)
	if avgVol == 0 {
		return Trap{}
	}
	ratio := last.Volume / avgVol
	if ratio >= 0.6 {
		return Trap{}
	}
	if last.Close > hi {
		return Trap{Detected: true, Kind: "volume_divergence", Direction: 1, Confidence: clamp(0.8-ratio, 0, 0.8)}
	}
	if last.Close < lo {
		return Trap{Detected: true, Kind: "volume_divergence", Direction: -1, Confidence: clamp(0.8-ratio, 0, 0.8)}
	}
	return Trap{}
}

// vReversal: a sharp push immediately and fully retraced.
func vReversal(candles []Candle) Trap {
	n := len(candles)
	if n < 4 {
		return Trap{}
	}
	a, b := candles[n-2], candles[n-1]
	if a.Body() == 0 || b.Body() == 0 {
		return Trap{}
	}
	retrace := b.Body() / a.Body()
	if a.Direction() == 1 && b.Direction() == -1 && retrace > 0.9 {
		return Trap{Detected: true, Kind: "v_reversal", Direction: 1, Confidence: clamp(retrace*0.6, 0, 0.85)}
	}
	if a.Direction() == -1 && b.Direction() == 1 && retrace > 0.9 {
		return Trap{Detected: true, Kind: "v_reversal", Direction: -1, Confidence: clamp(retrace*0.6, 0, 0.85)}
	}
	return Trap{}
}

// stopHunt: a volume spike with a long wick beyond recent range and a
// close back inside it.
func stopHunt(candles []Candle) Trap {
	n := len(candles)
	last := candles[n-1]
	var volSum float64
	for _, c := range candles[:n-1] {
		volSum += c.Volume
	}
	avgVol := volSum / float64(n-1)
	if avgVol == 0 || last.Volume < 2*avgVol || last.Range() == 0 {
		return Trap{}
	}
	upperWick := last.High - maxFloat(last.Open, last.Close)
	lowerWick := minFloat(last.Open, last.Close) - last.Low
	if upperWick > 2*last.Body() && !last.Bullish() {
		return Trap{Detected: true, Kind: "stop_hunt", Direction: 1, Confidence: clamp(upperWick/last.Range(), 0, 0.9)}
	}
	if lowerWick > 2*last.Body() && last.Bullish() {
		return Trap{Detected: true, Kind: "stop_hunt", Direction: -1, Confidence: clamp(lowerWick/last.Range(), 0, 0.9)}
	}
	return Trap{}
}

// absorption: heavy volume with no range progress. Someone is soaking up
// the flow; the apparent direction will not hold.
func absorption(candles []Candle) Trap {
	n := len(candles)
	last := candles[n-1]
	var volSum, rangeSum float64
	for _, c := range candles[:n-1] {
		volSum += c.Volume
		rangeSum += c.Range()
	}
	avgVol := volSum / float64(n-1)
	avgRange := rangeSum / float64(n-1)
	if avgVol == 0 || avgRange == 0 {
		return Trap{}
	}
	if last.Volume > 2.5*avgVol && last.Range() < 0.4*avgRange {
		dir := 1
		if !last.Bullish() {
			dir = -1
		}
		return Trap{Detected: true, Kind: "absorption", Direction: dir, Confidence: 0.6}
	}
	return Trap{}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
