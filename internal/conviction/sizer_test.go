package conviction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/updownlabs/updownbot/internal/domain"
)

func TestSizeScoutTierFixedStake(t *testing.T) {
	s := NewSizer(DefaultSizerConfig())

	stake, tier := s.Size(0.30, 100, domain.Timeframe1h, false)
	assert.Equal(t, domain.BetTierScout, tier)
	assert.Equal(t, 1.0, stake)

	// High volatility does not halve the fixed scout stake.
	stake, _ = s.Size(0.30, 100, domain.Timeframe1h, true)
	assert.Equal(t, 1.0, stake)
}

func TestSizeInterpolatesWithinBand(t *testing.T) {
	s := NewSizer(DefaultSizerConfig())

	// SMALL band: 0.40..0.52 maps to 2%..4% of bankroll.
	atFloor, tier := s.Size(0.40, 100, domain.Timeframe1h, false)
	assert.Equal(t, domain.BetTierSmall, tier)
	assert.InDelta(t, 2.0, atFloor, 1e-9)

	midway, _ := s.Size(0.46, 100, domain.Timeframe1h, false)
	assert.InDelta(t, 3.0, midway, 1e-9)
}

func TestSizeTierLadder(t *testing.T) {
	s := NewSizer(DefaultSizerConfig())
	cases := []struct {
		conviction float64
		tier       domain.BetTier
	}{
		{0.10, domain.BetTierScout},
		{0.45, domain.BetTierSmall},
		{0.60, domain.BetTierMedium},
		{0.70, domain.BetTierHigh},
		{0.80, domain.BetTierAggressive},
		{0.95, domain.BetTierAllIn},
		{1.00, domain.BetTierAllIn},
	}
	for _, tc := range cases {
		_, tier := s.Size(tc.conviction, 1000, domain.Timeframe1d, false)
		assert.Equal(t, tc.tier, tier, "conviction %v", tc.conviction)
	}
}

func TestSizeHighVolHalvesNonScout(t *testing.T) {
	s := NewSizer(DefaultSizerConfig())

	calm, _ := s.Size(0.46, 100, domain.Timeframe1h, false)
	stormy, _ := s.Size(0.46, 100, domain.Timeframe1h, true)
	assert.InDelta(t, calm/2, stormy, 1e-9)
}

func TestSizeThrottleDisabledIgnoresHighVol(t *testing.T) {
	cfg := DefaultSizerConfig()
	cfg.HighVolThrottle = false
	s := NewSizer(cfg)

	calm, _ := s.Size(0.46, 100, domain.Timeframe1h, false)
	stormy, _ := s.Size(0.46, 100, domain.Timeframe1h, true)
	assert.InDelta(t, calm, stormy, 1e-9)
}

func TestSizeTimeframeCap(t *testing.T) {
	s := NewSizer(DefaultSizerConfig())

	// ALL_IN on a large bankroll pinned to the 5m cap.
	stake, tier := s.Size(0.95, 10000, domain.Timeframe5m, false)
	assert.Equal(t, domain.BetTierAllIn, tier)
	assert.Equal(t, 10.0, stake)
}

func TestSizeConcurrencyShare(t *testing.T) {
	cfg := DefaultSizerConfig()
	cfg.TimeframeCaps = map[domain.Timeframe]float64{}
	s := NewSizer(cfg)

	// With 3 concurrent slots a bet never exceeds a third of bankroll.
	stake, _ := s.Size(1.00, 90, domain.Timeframe1d, false)
	assert.InDelta(t, 30.0, stake, 1e-9)
}

func TestSizeBankrollCeiling(t *testing.T) {
	cfg := DefaultSizerConfig()
	cfg.TimeframeCaps = map[domain.Timeframe]float64{}
	cfg.MaxConcurrent = 1
	s := NewSizer(cfg)

	// 50% at max conviction stays under the 98% ceiling; force it with a
	// tiny bankroll where the minimum stake rule takes over instead.
	stake, _ := s.Size(1.00, 100, domain.Timeframe1d, false)
	assert.InDelta(t, 50.0, stake, 1e-9)
}

func TestSizeVenueMinimum(t *testing.T) {
	s := NewSizer(DefaultSizerConfig())

	// A 2% bet on a small bankroll rounds up to the venue minimum.
	stake, _ := s.Size(0.40, 20, domain.Timeframe1h, false)
	assert.Equal(t, 1.0, stake)

	// Bankroll below the minimum cannot bet at all.
	stake, _ = s.Size(0.40, 0.50, domain.Timeframe1h, false)
	assert.Zero(t, stake)
}

func TestSizeZeroInputs(t *testing.T) {
	s := NewSizer(DefaultSizerConfig())

	stake, _ := s.Size(0, 100, domain.Timeframe1h, false)
	assert.Zero(t, stake)
	stake, _ = s.Size(0.50, 0, domain.Timeframe1h, false)
	assert.Zero(t, stake)
}
