package structure

// Exhaustion flags a directional move that is running out of fuel.
// Direction is the direction of the tiring move.
type Exhaustion struct {
	Detected   bool
	Direction  int
	Confidence float64
	Reasons    []string
}

// DetectExhaustion scores exhaustion evidence over recent candles:
// unbroken runs, end-of-move volume climax, decelerating momentum, and
// extreme VWAP extension. Individual scores accumulate into confidence.
func DetectExhaustion(candles []Candle, vwapDev float64) Exhaustion {
	if len(candles) < 8 {
		return Exhaustion{}
	}

	run, runDir := directionalRun(candles)
	var (
		score   float64
		reasons []string
	)
	if run >= 5 {
		score += 0.25 + 0.05*float64(run-5)
		reasons = append(reasons, "long_run")
	}
	if runDir != 0 && volumeClimax(candles) {
		score += 0.25
		reasons = append(reasons, "volume_climax")
	}
	if runDir != 0 && decelerating(candles, runDir) {
		score += 0.2
		reasons = append(reasons, "decelerating")
	}
	if abs(vwapDev) > 2.5 && signMatches(vwapDev, runDir) {
		score += 0.2
		reasons = append(reasons, "vwap_extension")
	}

	if runDir == 0 || score < 0.4 {
		return Exhaustion{}
	}
	return Exhaustion{
		Detected:   true,
		Direction:  runDir,
		Confidence: clamp(score, 0, 0.95),
		Reasons:    reasons,
	}
}

// directionalRun returns the length and direction of the trailing run of
// same-direction candles, ignoring dojis.
func directionalRun(candles []Candle) (int, int) {
	run, dir := 0, 0
	for i := len(candles) - 1; i >= 0; i-- {
		d := candles[i].Direction()
		if d == 0 {
			continue
		}
		if dir == 0 {
			dir = d
		}
		if d != dir {
			break
		}
		run++
	}
	return run, dir
}

// volumeClimax: the last candle carries an outsized share of recent
// volume, the classic blow-off print.
func volumeClimax(candles []Candle) bool {
	n := len(candles)
	var volSum float64
	for _, c := range candles[:n-1] {
		volSum += c.Volume
	}
	avg := volSum / float64(n-1)
	return avg > 0 && candles[n-1].Volume > 3*avg
}

// decelerating: each of the last three bodies in the run direction is
// smaller than the one before.
func decelerating(candles []Candle, dir int) bool {
	n := len(candles)
	if n < 3 {
		return false
	}
	a, b, c := candles[n-3], candles[n-2], candles[n-1]
	if a.Direction() != dir || b.Direction() != dir || c.Direction() != dir {
		return false
	}
	return c.Body() < b.Body() && b.Body() < a.Body()
}

func signMatches(v float64, dir int) bool {
	return (v > 0 && dir > 0) || (v < 0 && dir < 0)
}

// SmartMoney is the inferred direction of informed flow.
type SmartMoney struct {
	Direction  int
	Confidence float64
}

// DetectSmartMoney infers informed positioning from the split of volume
// between up and down candles, and from delta divergence: heavy buy-side
// volume while price grinds lower (or the reverse) means the tape is
// being absorbed against the visible direction.
func DetectSmartMoney(candles []Candle) SmartMoney {
	if len(candles) < 6 {
		return SmartMoney{}
	}
	var buyVol, sellVol float64
	for _, c := range candles {
		if c.Bullish() {
			buyVol += c.Volume
		} else {
			sellVol += c.Volume
		}
	}
	total := buyVol + sellVol
	if total == 0 {
		return SmartMoney{}
	}
	delta := (buyVol - sellVol) / total

	first, last := candles[0].Close, candles[len(candles)-1].Close
	priceDir := signOfFloat(last - first)
	deltaDir := signOfFloat(delta)

	// Delta divergence dominates: flow leaning one way while price went
	// the other is a stronger tell than flow confirming the move.
	if deltaDir != 0 && priceDir != 0 && deltaDir != priceDir && abs(delta) > 0.15 {
		return SmartMoney{Direction: deltaDir, Confidence: clamp(abs(delta)*2, 0, 0.9)}
	}
	if abs(delta) > 0.25 {
		return SmartMoney{Direction: deltaDir, Confidence: clamp(abs(delta), 0, 0.7)}
	}
	return SmartMoney{}
}

func signOfFloat(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
