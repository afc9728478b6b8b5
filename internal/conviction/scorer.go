// Package conviction turns a gated signal into a bet: a [0,1] conviction
// score blending the signal with its confirmations and the pattern's
// track record, then a tiered Kelly-inspired size.
package conviction

import (
	"fmt"
	"math"

	"github.com/updownlabs/updownbot/internal/domain"
)

// Weights are the conviction blend. They must sum to 1.0.
type Weights struct {
	Signal    float64 `toml:"signal"`
	RSI       float64 `toml:"rsi"`
	Bollinger float64 `toml:"bollinger"`
	Consensus float64 `toml:"consensus"`
	Volume    float64 `toml:"volume"`
	Edge      float64 `toml:"edge"`
	Probe     float64 `toml:"probe"`
}

// DefaultWeights returns the production blend.
func DefaultWeights() Weights {
	return Weights{
		Signal:    0.30,
		RSI:       0.10,
		Bollinger: 0.10,
		Consensus: 0.10,
		Volume:    0.10,
		Edge:      0.15,
		Probe:     0.15,
	}
}

// Validate checks the weights sum to 1 within float tolerance.
func (w Weights) Validate() error {
	sum := w.Signal + w.RSI + w.Bollinger + w.Consensus + w.Volume + w.Edge + w.Probe
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("conviction weights sum to %.6f, want 1.0", sum)
	}
	return nil
}

// Scorer computes conviction scores.
type Scorer struct {
	weights Weights
	// EdgeScale maps a predictive edge to a full [0,1] score.
	edgeScale float64
	// Probe gating: minimum samples and rolling win rate before a
	// pattern's record counts above neutral.
	probeMinSamples int
	probeMinWinRate float64
}

// NewScorer creates a Scorer; invalid weights are rejected.
func NewScorer(w Weights) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{
		weights:         w,
		edgeScale:       0.15,
		probeMinSamples: 5,
		probeMinWinRate: 0.55,
	}, nil
}

// Score blends the signal, its confirmation scores, the predictive edge,
// and the probe record into conviction, then applies the structure
// multiplier and clamps to [0,1].
func (s *Scorer) Score(sig domain.Signal, edge domain.Edge, probe *domain.ProbeRecord, multiplier float64) float64 {
	edgeScore := clamp01(edge.Value / s.edgeScale)

	probeScore := 0.5 // neutral for unproven patterns
	if probe != nil && probe.Samples() > 0 {
		rate := probe.RollingWinRate()
		if probe.Proven(s.probeMinSamples, s.probeMinWinRate) {
			probeScore = rate
		} else {
			// Thin history: shrink toward neutral.
			probeScore = 0.5 + (rate-0.5)*0.5
		}
	}

	score := s.weights.Signal*sig.Strength +
		s.weights.RSI*sig.RSIConfirm +
		s.weights.Bollinger*sig.BollingerConfirm +
		s.weights.Consensus*sig.Consensus +
		s.weights.Volume*sig.VolumeConfirm +
		s.weights.Edge*edgeScore +
		s.weights.Probe*probeScore

	return clamp01(score * multiplier)
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
