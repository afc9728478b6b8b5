package structure

// Pattern is a detected chart pattern. Direction is the move the pattern
// predicts; Weight is how much the pattern counts in the combined bias.
type Pattern struct {
	Name       string
	Direction  int
	Confidence float64
	Weight     float64
}

// DetectPatterns runs every pattern detector over the candle series.
func DetectPatterns(candles []Candle) []Pattern {
	if len(candles) < 10 {
		return nil
	}
	swings := FindSwings(candles, 2)
	var out []Pattern
	for _, p := range []Pattern{
		headAndShoulders(swings),
		multiTopBottom(swings, candles),
		channel(candles),
		triangle(candles),
		flag(candles),
		rangeBreakout(candles),
		trendStructure(swings),
	} {
		if p.Name != "" {
			out = append(out, p)
		}
	}
	return out
}

// CombinedBias folds pattern directions into a confidence-and-weight
// weighted sum, clamped to [-1,1].
func CombinedBias(patterns []Pattern) float64 {
	var bias float64
	for _, p := range patterns {
		bias += float64(p.Direction) * p.Confidence * p.Weight
	}
	return clamp(bias, -1, 1)
}

// Strongest returns the highest-confidence pattern, if any.
func Strongest(patterns []Pattern) (Pattern, bool) {
	best := Pattern{}
	for _, p := range patterns {
		if p.Confidence > best.Confidence {
			best = p
		}
	}
	return best, best.Name != ""
}

// headAndShoulders looks for three swing highs with a dominant middle
// peak (bearish), or the inverse on swing lows (bullish).
func headAndShoulders(swings []SwingPoint) Pattern {
	highs := filterSwings(swings, true)
	lows := filterSwings(swings, false)

	if p, ok := hsShape(highs); ok {
		return Pattern{Name: "head_and_shoulders", Direction: -1, Confidence: p, Weight: 1.2}
	}
	if p, ok := hsShape(invertPrices(lows)); ok {
		return Pattern{Name: "inverse_head_and_shoulders", Direction: 1, Confidence: p, Weight: 1.2}
	}
	return Pattern{}
}

func hsShape(points []SwingPoint) (float64, bool) {
	n := len(points)
	if n < 3 {
		return 0, false
	}
	l, h, r := points[n-3], points[n-2], points[n-1]
	if h.Price <= l.Price || h.Price <= r.Price {
		return 0, false
	}
	shoulderDiff := abs(l.Price-r.Price) / abs(h.Price)
	if shoulderDiff > 0.01 {
		return 0, false
	}
	prominence := (h.Price - maxFloat(l.Price, r.Price)) / abs(h.Price)
	if prominence < 0.001 {
		return 0, false
	}
	return clamp(0.55+prominence*50, 0, 0.9), true
}

// multiTopBottom detects double/triple tops and bottoms: repeated swing
// extremes at nearly the same price.
func multiTopBottom(swings []SwingPoint, candles []Candle) Pattern {
	current := candles[len(candles)-1].Close
	if p := repeatedExtremes(filterSwings(swings, true), current, true); p.Name != "" {
		return p
	}
	return repeatedExtremes(filterSwings(swings, false), current, false)
}

func repeatedExtremes(points []SwingPoint, current float64, top bool) Pattern {
	n := len(points)
	if n < 2 {
		return Pattern{}
	}
	matches := 1
	ref := points[n-1].Price
	for i := n - 2; i >= 0 && matches < 3; i-- {
		if abs(points[i].Price-ref)/ref <= 0.002 {
			matches++
		}
	}
	if matches < 2 {
		return Pattern{}
	}
	name := "double_top"
	dir := -1
	if !top {
		name = "double_bottom"
		dir = 1
	}
	if matches >= 3 {
		if top {
			name = "triple_top"
		} else {
			name = "triple_bottom"
		}
	}
	// Only meaningful when price is still near the tested extreme.
	if abs(current-ref)/ref > 0.004 {
		return Pattern{}
	}
	return Pattern{Name: name, Direction: dir, Confidence: clamp(0.45+0.15*float64(matches), 0, 0.85), Weight: 1.0}
}

// channel fits lines through highs and lows; parallel slopes in the same
// direction form an ascending/descending channel, flat ones a horizontal
// range. The channel predicts continuation along its slope.
func channel(candles []Candle) Pattern {
	hiSlope, loSlope, ok := edgeSlopes(candles)
	if !ok {
		return Pattern{}
	}
	parallel := abs(hiSlope-loSlope) < 0.3*maxFloat(abs(hiSlope), abs(loSlope))+1e-12
	if !parallel {
		return Pattern{}
	}
	switch {
	case hiSlope > 0 && loSlope > 0:
		return Pattern{Name: "ascending_channel", Direction: 1, Confidence: 0.5, Weight: 0.8}
	case hiSlope < 0 && loSlope < 0:
		return Pattern{Name: "descending_channel", Direction: -1, Confidence: 0.5, Weight: 0.8}
	default:
		return Pattern{Name: "horizontal_channel", Direction: 0, Confidence: 0.4, Weight: 0.5}
	}
}

// triangle detects converging highs and lows. Ascending triangles (flat
// top, rising lows) break up; descending break down; symmetric ones lean
// with the preceding move.
func triangle(candles []Candle) Pattern {
	hiSlope, loSlope, ok := edgeSlopes(candles)
	if !ok {
		return Pattern{}
	}
	scale := candles[len(candles)-1].Close * 1e-4
	flatHi, flatLo := abs(hiSlope) < scale, abs(loSlope) < scale
	converging := hiSlope < -scale && loSlope > scale

	switch {
	case flatHi && loSlope > scale:
		return Pattern{Name: "ascending_triangle", Direction: 1, Confidence: 0.55, Weight: 0.9}
	case flatLo && hiSlope < -scale:
		return Pattern{Name: "descending_triangle", Direction: -1, Confidence: 0.55, Weight: 0.9}
	case converging:
		dir := signOfFloat(candles[len(candles)/2].Close - candles[0].Close)
		return Pattern{Name: "symmetric_triangle", Direction: dir, Confidence: 0.4, Weight: 0.6}
	default:
		return Pattern{}
	}
}

// flag detects a sharp pole followed by a shallow counter-move, a
// continuation pattern in the pole's direction.
func flag(candles []Candle) Pattern {
	n := len(candles)
	if n < 10 {
		return Pattern{}
	}
	poleEnd := n - 4
	poleStart := poleEnd - 5
	if poleStart < 0 {
		return Pattern{}
	}
	pole := candles[poleEnd].Close - candles[poleStart].Close
	if candles[poleStart].Close == 0 {
		return Pattern{}
	}
	poleFrac := pole / candles[poleStart].Close
	if abs(poleFrac) < 0.003 {
		return Pattern{}
	}
	drift := candles[n-1].Close - candles[poleEnd].Close
	// Flag body: shallow drift against the pole, under 40% retrace.
	if signOfFloat(drift) == signOfFloat(pole) || abs(drift) > 0.4*abs(pole) {
		return Pattern{}
	}
	return Pattern{Name: "flag", Direction: signOfFloat(pole), Confidence: clamp(abs(poleFrac)*100, 0.4, 0.75), Weight: 0.9}
}

// rangeBreakout detects a close beyond the prior range with volume
// confirmation.
func rangeBreakout(candles []Candle) Pattern {
	n := len(candles)
	if n < 8 {
		return Pattern{}
	}
	last := candles[n-1]
	hi, lo := candles[0].High, candles[0].Low
	var volSum float64
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
	volConfirmed := avgVol > 0 && last.Volume > 1.5*avgVol
	conf := 0.45
	if volConfirmed {
		conf = 0.7
	}
	if last.Close > hi {
		return Pattern{Name: "range_breakout", Direction: 1, Confidence: conf, Weight: 1.0}
	}
	if last.Close < lo {
		return Pattern{Name: "range_breakout", Direction: -1, Confidence: conf, Weight: 1.0}
	}
	return Pattern{}
}

// trendStructure classifies higher-high/higher-low versus
// lower-high/lower-low swing sequences.
func trendStructure(swings []SwingPoint) Pattern {
	highs := filterSwings(swings, true)
	lows := filterSwings(swings, false)
	if len(highs) < 2 || len(lows) < 2 {
		return Pattern{}
	}
	hh := highs[len(highs)-1].Price > highs[len(highs)-2].Price
	hl := lows[len(lows)-1].Price > lows[len(lows)-2].Price
	switch {
	case hh && hl:
		return Pattern{Name: "uptrend_structure", Direction: 1, Confidence: 0.5, Weight: 0.7}
	case !hh && !hl:
		return Pattern{Name: "downtrend_structure", Direction: -1, Confidence: 0.5, Weight: 0.7}
	default:
		return Pattern{}
	}
}

// edgeSlopes fits least-squares lines through candle highs and lows.
func edgeSlopes(candles []Candle) (float64, float64, bool) {
	n := len(candles)
	if n < 8 {
		return 0, 0, false
	}
	xs := make([]float64, n)
	his := make([]float64, n)
	los := make([]float64, n)
	for i, c := range candles {
		xs[i] = float64(i)
		his[i] = c.High
		los[i] = c.Low
	}
	return linearSlope(xs, his), linearSlope(xs, los), true
}

func filterSwings(swings []SwingPoint, high bool) []SwingPoint {
	var out []SwingPoint
	for _, s := range swings {
		if s.High == high {
			out = append(out, s)
		}
	}
	return out
}

func invertPrices(points []SwingPoint) []SwingPoint {
	out := make([]SwingPoint, len(points))
	for i, p := range points {
		out[i] = SwingPoint{Price: -p.Price, Index: p.Index, High: p.High}
	}
	return out
}
