package domain

// Signal is a directional trading signal for an asset.
type Signal struct {
	Direction int     // -1, 0, +1
	Strength  float64 // [0,1]
	Label     string  // e.g. "bull-strong", "bear-weak", "flat"

	// Confirmation scores in [0,1] used by conviction scoring.
	RSIConfirm       float64
	BollingerConfirm float64
	Consensus        float64
	VolumeConfirm    float64
}

// Flat reports whether the signal carries no directional opinion.
func (s Signal) Flat() bool {
	return s.Direction == 0 || s.Strength == 0
}

// EdgeSource identifies which estimator produced a predictive edge.
type EdgeSource string

const (
	EdgeSourceMedian   EdgeSource = "multi_source_median"
	EdgeSourceOracle   EdgeSource = "oracle_divergence"
	EdgeSourceMomentum EdgeSource = "momentum"
)

// Edge is the gap between a leading probability estimate and the market's
// own implied probability (the outcome token price).
type Edge struct {
	Value       float64 // implied probability minus market price
	Implied     float64
	MarketPrice float64
	Source      EdgeSource

	// CatchingUp is set once the edge has compressed below the closing
	// threshold, meaning the market has repriced and a predictive position
	// has collected what it is going to collect.
	CatchingUp bool
}
