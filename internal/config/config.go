// Package config defines the TOML configuration surface and its
// defaults.
package config

import (
	"fmt"
	"time"

	"github.com/updownlabs/updownbot/internal/conviction"
)

// Mode selects the execution backend.
const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// Config is the root configuration.
type Config struct {
	App       AppConfig       `toml:"app"`
	Engine    EngineConfig    `toml:"engine"`
	Risk      RiskConfig      `toml:"risk"`
	Exits     ExitConfig      `toml:"exits"`
	Feeds     FeedsConfig     `toml:"feeds"`
	Execution ExecConfig      `toml:"execution"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Mode       string   `toml:"mode"` // "paper" or "live"
	LogLevel   string   `toml:"log_level"`
	LogFormat  string   `toml:"log_format"` // "json" or "text"
	Assets     []string `toml:"assets"`
	Timeframes []string `toml:"timeframes"`
	Bankroll   float64  `toml:"bankroll"` // starting bankroll in paper mode
}

// EngineConfig tunes the signal engine and the periodic loops.
type EngineConfig struct {
	FastInterval     duration `toml:"fast_interval"`
	FullInterval     duration `toml:"full_interval"`
	SnapshotInterval duration `toml:"snapshot_interval"`
	EntryCooldown    duration `toml:"entry_cooldown"`

	MinDataAgeSec  float64 `toml:"min_data_age_sec"`
	MomentumScale  float64 `toml:"momentum_scale"`
	BearBoost      float64 `toml:"bear_boost"`
	MinStrength    float64 `toml:"min_strength"`
	IndicatorDepth int     `toml:"indicator_depth"`

	Weights conviction.Weights `toml:"weights"`
}

// RiskConfig bounds exposure.
type RiskConfig struct {
	MinConviction   float64            `toml:"min_conviction"`
	MinEntryPrice   float64            `toml:"min_entry_price"`
	MaxEntryPrice   float64            `toml:"max_entry_price"`
	MinStake        float64            `toml:"min_stake"`
	MaxBankrollFrac float64            `toml:"max_bankroll_frac"`
	MaxConcurrent   int                `toml:"max_concurrent"`
	TimeframeCaps   map[string]float64 `toml:"timeframe_caps"`
	DailyLossLimit  float64            `toml:"daily_loss_limit"`
	WinRateFloor    float64            `toml:"win_rate_floor"`
	WinRateSample   int                `toml:"win_rate_sample"`
	Volatility      map[string]float64 `toml:"volatility"` // annualized, per asset
	HighVolRatio    float64            `toml:"high_vol_ratio"`
}

// ExitConfig tunes the exit rule ladder.
type ExitConfig struct {
	HoldWindow       duration `toml:"hold_window"`
	HoldWinPrice     float64  `toml:"hold_win_price"`
	HoldDeadPrice    float64  `toml:"hold_dead_price"`
	ForcedPenalty    float64  `toml:"forced_penalty"`
	StrongSupport    float64  `toml:"strong_support"`
	FavorSupport     float64  `toml:"favor_support"`
	ProfitWidenMult  float64  `toml:"profit_widen_mult"`
	MinPeakFrac      float64  `toml:"min_peak_frac"`
	EmergencyKeep    float64  `toml:"emergency_keep"`
	ReversalStrength float64  `toml:"reversal_strength"`
	ReversalMaxGain  float64  `toml:"reversal_max_gain"`
	MinHoldAge       duration `toml:"min_hold_age"`
	StopWidenMult    float64  `toml:"stop_widen_mult"`
	StopCatchUp      duration `toml:"stop_catch_up"`
	StaleAgeMult     float64  `toml:"stale_age_mult"`
	StaleMaxGain     float64  `toml:"stale_max_gain"`
}

// FeedsConfig points at the external price streams.
type FeedsConfig struct {
	BinanceEnabled bool   `toml:"binance_enabled"`
	OracleURL      string `toml:"oracle_url"`
	VenueURL       string `toml:"venue_url"`
}

// ExecConfig tunes order placement and the paper simulator.
type ExecConfig struct {
	GraceDelay  duration `toml:"grace_delay"`
	CallTimeout duration `toml:"call_timeout"`
	RatePerSec  float64  `toml:"rate_per_sec"`

	SimSpreadBps   float64 `toml:"sim_spread_bps"`
	SimSlippageBps float64 `toml:"sim_slippage_bps"`
	SimFillProb    float64 `toml:"sim_fill_prob"`
	SimSeed        int64   `toml:"sim_seed"`
}

// RedisConfig holds snapshot-store and lock connection settings.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds trade-log connection settings.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	MaxConns      int    `toml:"max_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// TelemetryConfig holds the metrics listener settings.
type TelemetryConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// duration wraps time.Duration so TOML can decode "30s" style strings.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the full default configuration: paper mode, no
// external persistence, metrics on.
func Defaults() Config {
	return Config{
		App: AppConfig{
			Mode:       ModePaper,
			LogLevel:   "info",
			LogFormat:  "json",
			Assets:     []string{"BTC", "ETH", "SOL"},
			Timeframes: []string{"5m", "15m", "1h"},
			Bankroll:   100.0,
		},
		Engine: EngineConfig{
			FastInterval:     duration{2 * time.Second},
			FullInterval:     duration{30 * time.Second},
			SnapshotInterval: duration{time.Minute},
			EntryCooldown:    duration{5 * time.Second},
			MinDataAgeSec:    120,
			MomentumScale:    0.0015,
			BearBoost:        1.15,
			MinStrength:      0.20,
			IndicatorDepth:   120,
			Weights:          conviction.DefaultWeights(),
		},
		Risk: RiskConfig{
			MinConviction:   0.30,
			MinEntryPrice:   0.05,
			MaxEntryPrice:   0.95,
			MinStake:        1.0,
			MaxBankrollFrac: 0.98,
			MaxConcurrent:   3,
			TimeframeCaps: map[string]float64{
				"5m": 10, "15m": 15, "1h": 25, "4h": 40, "1d": 60,
			},
			DailyLossLimit: 25.0,
			WinRateFloor:   0.35,
			WinRateSample:  20,
			Volatility: map[string]float64{
				"BTC": 0.55,
				"ETH": 0.70,
				"SOL": 1.00,
			},
			HighVolRatio: 2.0,
		},
		Exits: ExitConfig{
			HoldWindow:       duration{90 * time.Second},
			HoldWinPrice:     0.85,
			HoldDeadPrice:    0.10,
			ForcedPenalty:    0.03,
			StrongSupport:    0.80,
			FavorSupport:     0.55,
			ProfitWidenMult:  1.6,
			MinPeakFrac:      0.10,
			EmergencyKeep:    0.40,
			ReversalStrength: 0.60,
			ReversalMaxGain:  0.05,
			MinHoldAge:       duration{90 * time.Second},
			StopWidenMult:    1.5,
			StopCatchUp:      duration{5 * time.Second},
			StaleAgeMult:     2.0,
			StaleMaxGain:     0.02,
		},
		Feeds: FeedsConfig{
			BinanceEnabled: true,
		},
		Execution: ExecConfig{
			GraceDelay:     duration{2 * time.Second},
			CallTimeout:    duration{10 * time.Second},
			RatePerSec:     5,
			SimSpreadBps:   150,
			SimSlippageBps: 50,
			SimFillProb:    0.92,
			SimSeed:        1,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "updownbot",
			User:          "updownbot",
			SSLMode:       "disable",
			MaxConns:      5,
			RunMigrations: true,
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
			Addr:    ":9090",
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.App.Mode != ModePaper && c.App.Mode != ModeLive {
		return fmt.Errorf("config: app.mode must be %q or %q, got %q", ModePaper, ModeLive, c.App.Mode)
	}
	if len(c.App.Assets) == 0 {
		return fmt.Errorf("config: app.assets must not be empty")
	}
	if len(c.App.Timeframes) == 0 {
		return fmt.Errorf("config: app.timeframes must not be empty")
	}
	if c.App.Bankroll <= 0 {
		return fmt.Errorf("config: app.bankroll must be positive")
	}
	if err := c.Engine.Weights.Validate(); err != nil {
		return fmt.Errorf("config: engine.weights: %w", err)
	}
	if c.Engine.FastInterval.Duration <= 0 || c.Engine.FullInterval.Duration <= 0 {
		return fmt.Errorf("config: engine intervals must be positive")
	}
	if c.Engine.FastInterval.Duration >= c.Engine.FullInterval.Duration {
		return fmt.Errorf("config: engine.fast_interval must be shorter than engine.full_interval")
	}
	if c.Risk.MinConviction < 0 || c.Risk.MinConviction > 1 {
		return fmt.Errorf("config: risk.min_conviction must be in [0,1]")
	}
	if c.Risk.MinEntryPrice <= 0 || c.Risk.MaxEntryPrice >= 1 ||
		c.Risk.MinEntryPrice >= c.Risk.MaxEntryPrice {
		return fmt.Errorf("config: risk entry price band must satisfy 0 < min < max < 1")
	}
	if c.Risk.MaxConcurrent <= 0 {
		return fmt.Errorf("config: risk.max_concurrent must be positive")
	}
	if c.Exits.StrongSupport <= c.Exits.FavorSupport {
		return fmt.Errorf("config: exits.strong_support must exceed exits.favor_support")
	}
	if c.App.Mode == ModeLive && c.Feeds.VenueURL == "" {
		return fmt.Errorf("config: feeds.venue_url is required in live mode")
	}
	return nil
}
