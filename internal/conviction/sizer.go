package conviction

import (
	"github.com/updownlabs/updownbot/internal/domain"
)

// TierBand maps a conviction range to a bankroll fraction range. Within
// the band the fraction interpolates linearly with conviction.
type TierBand struct {
	Tier          domain.BetTier
	MinConviction float64
	MaxConviction float64
	MinPct        float64 // fraction of bankroll at MinConviction
	MaxPct        float64 // fraction of bankroll at MaxConviction
	FixedStake    float64 // used instead of pcts when > 0 (lowest tier)
}

// SizerConfig tunes bet sizing.
type SizerConfig struct {
	// MinStake is the venue minimum order size.
	MinStake float64
	// MaxBankrollFrac caps any single bet as a fraction of bankroll.
	MaxBankrollFrac float64
	// TimeframeCaps hard-cap currency exposure per timeframe; shorter
	// windows are noisier and get smaller caps.
	TimeframeCaps map[domain.Timeframe]float64
	// MaxConcurrent splits bankroll into equal shares when several
	// positions may be open at once.
	MaxConcurrent int
	// HighVolThrottle halves non-minimum bets in a high-volatility regime.
	HighVolThrottle bool
}

// DefaultSizerConfig returns production sizing parameters.
func DefaultSizerConfig() SizerConfig {
	return SizerConfig{
		MinStake:        1.0,
		MaxBankrollFrac: 0.98,
		TimeframeCaps: map[domain.Timeframe]float64{
			domain.Timeframe5m:  10,
			domain.Timeframe15m: 15,
			domain.Timeframe1h:  25,
			domain.Timeframe4h:  40,
			domain.Timeframe1d:  60,
		},
		MaxConcurrent:   3,
		HighVolThrottle: true,
	}
}

// defaultTiers is the conviction ladder. Bands are ordered and abut; the
// top band is open-ended.
var defaultTiers = []TierBand{
	{Tier: domain.BetTierScout, MinConviction: 0.00, MaxConviction: 0.40, FixedStake: 1.0},
	{Tier: domain.BetTierSmall, MinConviction: 0.40, MaxConviction: 0.52, MinPct: 0.02, MaxPct: 0.04},
	{Tier: domain.BetTierMedium, MinConviction: 0.52, MaxConviction: 0.64, MinPct: 0.04, MaxPct: 0.08},
	{Tier: domain.BetTierHigh, MinConviction: 0.64, MaxConviction: 0.76, MinPct: 0.08, MaxPct: 0.15},
	{Tier: domain.BetTierAggressive, MinConviction: 0.76, MaxConviction: 0.88, MinPct: 0.15, MaxPct: 0.30},
	{Tier: domain.BetTierAllIn, MinConviction: 0.88, MaxConviction: 1.00, MinPct: 0.30, MaxPct: 0.50},
}

// Sizer maps conviction to a clamped bet size.
type Sizer struct {
	cfg   SizerConfig
	tiers []TierBand
}

// NewSizer creates a Sizer with the default tier ladder.
func NewSizer(cfg SizerConfig) *Sizer {
	if cfg.MinStake <= 0 {
		cfg = DefaultSizerConfig()
	}
	return &Sizer{cfg: cfg, tiers: defaultTiers}
}

// Size returns the stake for the given conviction and context, and the
// tier it landed in. A zero stake means the bet is not worth the venue
// minimum and should be skipped.
func (s *Sizer) Size(conviction, bankroll float64, tf domain.Timeframe, highVol bool) (float64, domain.BetTier) {
	if bankroll <= 0 || conviction <= 0 {
		return 0, domain.BetTierScout
	}

	band := s.tiers[0]
	for _, b := range s.tiers {
		if conviction >= b.MinConviction && (conviction < b.MaxConviction || b.Tier == domain.BetTierAllIn) {
			band = b
			break
		}
	}

	var stake float64
	if band.FixedStake > 0 {
		stake = band.FixedStake
	} else {
		span := band.MaxConviction - band.MinConviction
		pos := 0.0
		if span > 0 {
			pos = clamp01((conviction - band.MinConviction) / span)
		}
		pct := band.MinPct + pos*(band.MaxPct-band.MinPct)
		stake = bankroll * pct
	}

	// Risk throttle: high-volatility regimes halve everything above the
	// minimum tier.
	if s.cfg.HighVolThrottle && highVol && band.FixedStake == 0 {
		stake /= 2
	}

	// Clamps, tightest last.
	if tfCap, ok := s.cfg.TimeframeCaps[tf]; ok && stake > tfCap {
		stake = tfCap
	}
	if ceiling := bankroll * s.cfg.MaxBankrollFrac; stake > ceiling {
		stake = ceiling
	}
	if s.cfg.MaxConcurrent > 1 {
		if share := bankroll / float64(s.cfg.MaxConcurrent); stake > share {
			stake = share
		}
	}
	if stake < s.cfg.MinStake {
		if bankroll >= s.cfg.MinStake {
			stake = s.cfg.MinStake
		} else {
			return 0, band.Tier
		}
	}
	return stake, band.Tier
}
