package domain

import (
	"fmt"
	"strings"
)

// SignalClass buckets similar setups so pattern performance is tracked per
// recognizable shape rather than per unique trade.
type SignalClass string

const (
	SignalClassWeak     SignalClass = "weak"
	SignalClassModerate SignalClass = "moderate"
	SignalClassStrong   SignalClass = "strong"
)

// ProbeKey identifies one tracked setup pattern. Structural equality makes
// it usable as a map key directly.
type ProbeKey struct {
	Asset string      `json:"asset"`
	Side  Side        `json:"side"`
	Class SignalClass `json:"class"`
}

// String renders the key in "asset-side-class" form for persistence keys
// and log lines.
func (k ProbeKey) String() string {
	return fmt.Sprintf("%s-%s-%s", k.Asset, k.Side, k.Class)
}

// ParseProbeKey reverses ProbeKey.String. Asset names may themselves
// contain dashes, so it splits from the right.
func ParseProbeKey(raw string) (ProbeKey, bool) {
	i := strings.LastIndexByte(raw, '-')
	if i < 0 {
		return ProbeKey{}, false
	}
	class := raw[i+1:]
	rest := raw[:i]
	j := strings.LastIndexByte(rest, '-')
	if j < 0 {
		return ProbeKey{}, false
	}
	return ProbeKey{
		Asset: rest[:j],
		Side:  Side(rest[j+1:]),
		Class: SignalClass(class),
	}, true
}

// probeRollingWindow bounds the rolling result FIFO.
const probeRollingWindow = 20

// ProbeRecord is the win/loss track record for one setup pattern. The
// rolling window keeps only the most recent outcomes so a pattern that has
// gone cold loses its proven status.
type ProbeRecord struct {
	Wins    int    `json:"wins"`
	Losses  int    `json:"losses"`
	Rolling []bool `json:"rolling"`
}

// Record appends one closed-position outcome. Called exactly once per
// closed position.
func (r *ProbeRecord) Record(won bool) {
	if won {
		r.Wins++
	} else {
		r.Losses++
	}
	r.Rolling = append(r.Rolling, won)
	if len(r.Rolling) > probeRollingWindow {
		r.Rolling = r.Rolling[len(r.Rolling)-probeRollingWindow:]
	}
}

// Samples returns the total number of recorded outcomes.
func (r *ProbeRecord) Samples() int {
	return r.Wins + r.Losses
}

// RollingWinRate returns the win rate over the rolling window, or 0.5 when
// no outcomes have been recorded yet (neutral prior).
func (r *ProbeRecord) RollingWinRate() float64 {
	if len(r.Rolling) == 0 {
		return 0.5
	}
	wins := 0
	for _, w := range r.Rolling {
		if w {
			wins++
		}
	}
	return float64(wins) / float64(len(r.Rolling))
}

// Proven reports whether the pattern has both enough samples and a rolling
// win rate above the threshold to justify scaling bet size.
func (r *ProbeRecord) Proven(minSamples int, minWinRate float64) bool {
	return r.Samples() >= minSamples && r.RollingWinRate() >= minWinRate
}
