package prob

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbabilityAboveMonotonicInPrice(t *testing.T) {
	ref := 50000.0
	remaining := 900.0 // 15 minutes
	vol := 0.55

	prev := 0.0
	for _, cur := range []float64{48000, 49000, 49800, 50000, 50200, 51000, 52000} {
		p := ProbabilityAbove(cur, ref, remaining, vol)
		assert.Greater(t, p, prev, "probability must rise with current price (cur=%v)", cur)
		assert.Greater(t, p, 0.0)
		assert.Less(t, p, 1.0)
		prev = p
	}
}

func TestProbabilityAboveAtTheMoney(t *testing.T) {
	// At the reference with time left the answer sits just below 0.5
	// because of the lognormal drift correction.
	p := ProbabilityAbove(50000, 50000, 3600, 0.55)
	assert.InDelta(t, 0.5, p, 0.01)
	assert.Less(t, p, 0.5)
}

func TestProbabilityAboveExpired(t *testing.T) {
	assert.Equal(t, 0.999, ProbabilityAbove(50100, 50000, 0, 0.55))
	assert.Equal(t, 0.001, ProbabilityAbove(49900, 50000, 0, 0.55))
	assert.Equal(t, 0.5, ProbabilityAbove(50000, 50000, -1, 0.55))
}

func TestProbabilityAboveBadInputs(t *testing.T) {
	assert.Equal(t, 0.5, ProbabilityAbove(0, 50000, 900, 0.55))
	assert.Equal(t, 0.5, ProbabilityAbove(50000, 0, 900, 0.55))
	assert.Equal(t, 0.5, ProbabilityAbove(-1, -1, 900, 0.55))
}

func TestProbabilityAboveDefaultsVolatility(t *testing.T) {
	// Zero or negative vol falls back to 0.5 annualized.
	withDefault := ProbabilityAbove(50500, 50000, 900, 0)
	explicit := ProbabilityAbove(50500, 50000, 900, 0.5)
	assert.Equal(t, explicit, withDefault)
}

func TestProbabilityAboveTimeDecay(t *testing.T) {
	// An in-the-money position becomes more certain as expiry nears.
	far := ProbabilityAbove(50500, 50000, 3600, 0.55)
	near := ProbabilityAbove(50500, 50000, 60, 0.55)
	assert.Greater(t, near, far)
}

func TestProbabilityForSideComplement(t *testing.T) {
	up := ProbabilityForSide(1, 50300, 50000, 900, 0.55)
	down := ProbabilityForSide(-1, 50300, 50000, 900, 0.55)
	assert.InDelta(t, 1.0, up+down, 1e-12)
	assert.Greater(t, up, 0.5)
	assert.Less(t, down, 0.5)
}

func TestPriceSupportBlend(t *testing.T) {
	// 60/40 token/model blend when the underlying feed is fresh.
	got := PriceSupport(0.70, 0.40, true)
	assert.InDelta(t, 0.6*0.70+0.4*0.40, got, 1e-12)
}

func TestPriceSupportStaleUnderlying(t *testing.T) {
	assert.Equal(t, 0.70, PriceSupport(0.70, 0.40, false))
}

func TestPriceSupportBadTokenPrice(t *testing.T) {
	// Degenerate token quotes fall back to the model, then to neutral.
	assert.Equal(t, 0.40, PriceSupport(0, 0.40, true))
	assert.Equal(t, 0.40, PriceSupport(1, 0.40, true))
	assert.Equal(t, 0.5, PriceSupport(0, 0.40, false))
}

func TestSigmasToRecover(t *testing.T) {
	cur, ref := 49000.0, 50000.0
	remaining := 900.0
	vol := 0.55

	want := math.Abs(math.Log(ref/cur)) / (vol * math.Sqrt(remaining/(365.25*24*3600)))
	got := SigmasToRecover(cur, ref, remaining, vol)
	require.False(t, math.IsInf(got, 0))
	assert.InDelta(t, want, got, 1e-9)

	// Symmetric in direction of the gap.
	assert.InDelta(t, got, SigmasToRecover(ref*ref/cur, ref, remaining, vol), 1e-6)
}

func TestSigmasToRecoverShrinkingTime(t *testing.T) {
	// The same gap needs more sigmas as time runs out.
	wide := SigmasToRecover(49500, 50000, 1800, 0.55)
	tight := SigmasToRecover(49500, 50000, 120, 0.55)
	assert.Greater(t, tight, wide)
}

func TestSigmasToRecoverBadInputs(t *testing.T) {
	assert.True(t, math.IsInf(SigmasToRecover(0, 50000, 900, 0.55), 1))
	assert.True(t, math.IsInf(SigmasToRecover(50000, 0, 900, 0.55), 1))
	assert.True(t, math.IsInf(SigmasToRecover(49000, 50000, 0, 0.55), 1))
	assert.True(t, math.IsInf(SigmasToRecover(49000, 50000, 900, 0), 1))
}

func TestNormCDF(t *testing.T) {
	assert.InDelta(t, 0.5, normCDF(0), 1e-7)
	assert.InDelta(t, 0.8413, normCDF(1), 1e-4)
	assert.InDelta(t, 0.1587, normCDF(-1), 1e-4)
	assert.InDelta(t, 0.9772, normCDF(2), 1e-4)
	assert.InDelta(t, 1.0, normCDF(0.5)+normCDF(-0.5), 1e-12)
}
