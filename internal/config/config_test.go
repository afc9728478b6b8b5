package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, ModePaper, cfg.App.Mode)
	assert.Equal(t, 2*time.Second, cfg.Engine.FastInterval.Duration)
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Defaults()
	cfg.App.Mode = "dry-run"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyAssets(t *testing.T) {
	cfg := Defaults()
	cfg.App.Assets = nil
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadPriceBand(t *testing.T) {
	cfg := Defaults()
	cfg.Risk.MinEntryPrice = 0.95
	cfg.Risk.MaxEntryPrice = 0.05
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.Weights.Signal = 0.90
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsInvertedIntervals(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.FastInterval = duration{time.Minute}
	cfg.Engine.FullInterval = duration{time.Second}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsSupportOrdering(t *testing.T) {
	cfg := Defaults()
	cfg.Exits.StrongSupport = 0.50
	cfg.Exits.FavorSupport = 0.60
	assert.Error(t, cfg.Validate())
}

func TestValidateLiveRequiresVenueURL(t *testing.T) {
	cfg := Defaults()
	cfg.App.Mode = ModeLive
	assert.Error(t, cfg.Validate())

	cfg.Feeds.VenueURL = "wss://venue.example.com/ws"
	assert.NoError(t, cfg.Validate())
}

func TestDurationDecodesTOMLStrings(t *testing.T) {
	var cfg Config
	_, err := toml.Decode(`
[engine]
fast_interval = "3s"
full_interval = "45s"
`, &cfg)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Engine.FastInterval.Duration)
	assert.Equal(t, 45*time.Second, cfg.Engine.FullInterval.Duration)
}

func TestDurationRejectsGarbage(t *testing.T) {
	var cfg Config
	_, err := toml.Decode(`
[engine]
fast_interval = "sideways"
`, &cfg)
	assert.Error(t, err)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[app]
mode = "paper"
bankroll = 250.0
assets = ["BTC"]

[engine]
fast_interval = "4s"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250.0, cfg.App.Bankroll)
	assert.Equal(t, []string{"BTC"}, cfg.App.Assets)
	assert.Equal(t, 4*time.Second, cfg.Engine.FastInterval.Duration)
	// Untouched sections keep their defaults.
	assert.Equal(t, 0.30, cfg.Risk.MinConviction)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoadWithoutPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults().App.Bankroll, cfg.App.Bankroll)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("UPDOWNBOT_BANKROLL", "500")
	t.Setenv("UPDOWNBOT_LOG_LEVEL", "debug")
	t.Setenv("UPDOWNBOT_REDIS_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 500.0, cfg.App.Bankroll)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.True(t, cfg.Redis.Enabled)
}
