package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/updownlabs/updownbot/internal/bot"
	"github.com/updownlabs/updownbot/internal/cache"
	redisc "github.com/updownlabs/updownbot/internal/cache/redis"
	"github.com/updownlabs/updownbot/internal/config"
	"github.com/updownlabs/updownbot/internal/conviction"
	"github.com/updownlabs/updownbot/internal/domain"
	"github.com/updownlabs/updownbot/internal/executor"
	"github.com/updownlabs/updownbot/internal/feed"
	"github.com/updownlabs/updownbot/internal/signal"
	"github.com/updownlabs/updownbot/internal/store/postgres"
	"github.com/updownlabs/updownbot/internal/structure"
	"github.com/updownlabs/updownbot/internal/telemetry"
)

type options struct {
	execClient   domain.ExecutionClient
	marketSource domain.MarketSource
}

// WithExecutionClient injects the live-mode execution backend. Required
// when app.mode is "live"; paper mode uses the built-in simulator.
func WithExecutionClient(c domain.ExecutionClient) Option {
	return func(o *options) { o.execClient = c }
}

// WithMarketSource injects live market discovery. Paper mode synthesizes
// rolling windows.
func WithMarketSource(s domain.MarketSource) Option {
	return func(o *options) { o.marketSource = s }
}

func (a *App) wire(ctx context.Context, opts ...Option) error {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	cfg := a.cfg
	logger := a.logger

	timeframes, err := parseTimeframes(cfg.App.Timeframes)
	if err != nil {
		return err
	}

	// History stores: slow per-asset underlying prices, fast per-token
	// venue prices.
	hist := signal.NewStore(signal.StoreOptions{})
	tokens := signal.NewTokenStore(time.Now)

	engine := signal.NewEngine(hist, engineConfig(cfg), feed.SourceBinance, cfg.App.Assets, logger)
	edges := signal.NewEdgeEngine(hist, signal.DefaultEdgeConfig(), []string{feed.SourceBinance})
	analyzer := structure.NewAnalyzer(hist, structure.DefaultConfig(), feed.SourceBinance, logger, time.Now)

	scorer, err := conviction.NewScorer(cfg.Engine.Weights)
	if err != nil {
		return err
	}
	sizer := conviction.NewSizer(sizerConfig(cfg))

	// Execution backend.
	client := o.execClient
	var sim *executor.SimClient
	if client == nil {
		if cfg.App.Mode == config.ModeLive {
			return fmt.Errorf("app: live mode requires an execution client; wire one with WithExecutionClient")
		}
		sim = executor.NewSimClient(executor.SimConfig{
			Balance:     cfg.App.Bankroll,
			SpreadBps:   cfg.Execution.SimSpreadBps,
			SlippageBps: cfg.Execution.SimSlippageBps,
			FillProb:    cfg.Execution.SimFillProb,
			Seed:        cfg.Execution.SimSeed,
		})
		client = sim
	}
	exec := executor.New(client, executor.Config{
		GraceDelay:  cfg.Execution.GraceDelay.Duration,
		CallTimeout: cfg.Execution.CallTimeout.Duration,
		RatePerSec:  cfg.Execution.RatePerSec,
	}, logger)

	// Persistence: Redis when configured, in-process fallbacks
	// otherwise.
	var (
		snaps domain.SnapshotStore
		locks domain.LockManager
	)
	if cfg.Redis.Enabled {
		rc, err := redisc.New(ctx, redisc.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return err
		}
		a.onClose(func() { _ = rc.Close() })
		snaps = redisc.NewSnapshotStore(rc)
		locks = redisc.NewLockManager(rc)
	} else {
		snaps = cache.NewMemorySnapshotStore()
		locks = cache.NewMemoryLockManager(time.Now)
	}

	var trades domain.TradeLog
	if cfg.Postgres.Enabled {
		pc, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			return err
		}
		a.onClose(pc.Close)
		if cfg.Postgres.RunMigrations {
			if err := pc.RunMigrations(ctx); err != nil {
				return err
			}
		}
		trades = postgres.NewTradeLog(pc.Pool())
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	if cfg.Telemetry.Enabled {
		a.runners = append(a.runners, telemetry.NewServer(cfg.Telemetry.Addr, reg, logger))
	}

	// Feeds.
	var venueFeed *feed.VenueFeed
	if cfg.Feeds.BinanceEnabled {
		a.runners = append(a.runners, feed.NewBinanceFeed(hist, cfg.App.Assets, logger))
	}
	if cfg.Feeds.OracleURL != "" {
		a.runners = append(a.runners, feed.NewOracleFeed(cfg.Feeds.OracleURL, hist, cfg.App.Assets, logger))
	}
	if cfg.Feeds.VenueURL != "" {
		venueFeed = feed.NewVenueFeed(cfg.Feeds.VenueURL, tokens, logger)
		a.runners = append(a.runners, venueFeed)
	}

	source := o.marketSource
	if source == nil {
		if cfg.App.Mode == config.ModeLive {
			return fmt.Errorf("app: live mode requires market discovery; wire one with WithMarketSource")
		}
		source = feed.NewRollingMarketSource(cfg.App.Assets, timeframes, paperQuote(hist, engine), time.Now)
	}

	state := bot.NewState(cfg.App.Bankroll, cfg.Risk.MaxConcurrent)
	if trades != nil {
		if probes, err := trades.LoadProbes(ctx); err != nil {
			logger.Warn("probe load failed", slog.Any("error", err))
		} else {
			for key, rec := range probes {
				*state.Probe(key) = rec
			}
		}
	}

	deps := bot.Deps{
		State:    state,
		Engine:   engine,
		Edges:    edges,
		Tokens:   tokens,
		Analyzer: analyzer,
		Scorer:   scorer,
		Sizer:    sizer,
		Exec:     exec,
		Source:   source,
		Snaps:    snaps,
		Locks:    locks,
		Trades:   trades,
		Metrics:  metrics,
		Logger:   logger,
	}
	if sim != nil {
		// Resolution settlements never hit the simulator as sell orders,
		// so the paper balance has to be credited out of band.
		deps.Settled = func(c domain.ClosedPosition) {
			sim.Credit(c.ExitPrice * c.Size)
		}
	}
	if venueFeed != nil {
		deps.MarketsHook = func(markets []domain.Market) {
			ids := make([]string, 0, 2*len(markets))
			for _, m := range markets {
				ids = append(ids, m.UpToken, m.DownToken)
			}
			venueFeed.SetTokens(ids)
		}
	}

	b, err := bot.New(botConfig(cfg), deps)
	if err != nil {
		return err
	}
	a.runners = append(a.runners, b)
	return nil
}

func parseTimeframes(raw []string) ([]domain.Timeframe, error) {
	out := make([]domain.Timeframe, 0, len(raw))
	for _, s := range raw {
		tf := domain.Timeframe(s)
		if !tf.Valid() {
			return nil, fmt.Errorf("app: unknown timeframe %q", s)
		}
		out = append(out, tf)
	}
	return out, nil
}

func engineConfig(cfg *config.Config) signal.Config {
	sc := signal.DefaultConfig()
	if v := cfg.Engine.MinDataAgeSec; v > 0 {
		sc.MinDataAge = v
	}
	if v := cfg.Engine.MomentumScale; v > 0 {
		sc.MomentumScale = v
	}
	if v := cfg.Engine.BearBoost; v > 0 {
		sc.BearBoost = v
	}
	if v := cfg.Engine.MinStrength; v > 0 {
		sc.MinStrength = v
	}
	if v := cfg.Engine.IndicatorDepth; v > 0 {
		sc.IndicatorDepth = v
	}
	return sc
}

func sizerConfig(cfg *config.Config) conviction.SizerConfig {
	sc := conviction.DefaultSizerConfig()
	sc.MinStake = cfg.Risk.MinStake
	sc.MaxBankrollFrac = cfg.Risk.MaxBankrollFrac
	sc.MaxConcurrent = cfg.Risk.MaxConcurrent
	sc.HighVolThrottle = true
	if len(cfg.Risk.TimeframeCaps) > 0 {
		caps := make(map[domain.Timeframe]float64, len(cfg.Risk.TimeframeCaps))
		for raw, limit := range cfg.Risk.TimeframeCaps {
			if tf := domain.Timeframe(raw); tf.Valid() {
				caps[tf] = limit
			}
		}
		sc.TimeframeCaps = caps
	}
	return sc
}

func botConfig(cfg *config.Config) bot.Config {
	bc := bot.DefaultBotConfig()
	bc.Assets = cfg.App.Assets
	bc.FastInterval = cfg.Engine.FastInterval.Duration
	bc.FullInterval = cfg.Engine.FullInterval.Duration
	bc.SnapshotInterval = cfg.Engine.SnapshotInterval.Duration
	bc.EntryCooldown = cfg.Engine.EntryCooldown.Duration
	bc.MinConviction = cfg.Risk.MinConviction
	bc.MinEntryPrice = cfg.Risk.MinEntryPrice
	bc.MaxEntryPrice = cfg.Risk.MaxEntryPrice
	bc.DailyLossLimit = cfg.Risk.DailyLossLimit
	bc.WinRateFloor = cfg.Risk.WinRateFloor
	bc.WinRateSample = cfg.Risk.WinRateSample
	bc.Volatility = cfg.Risk.Volatility
	bc.HighVolRatio = cfg.Risk.HighVolRatio
	bc.Rules = exitRules(cfg)
	return bc
}

func exitRules(cfg *config.Config) bot.ExitRules {
	e := cfg.Exits
	return bot.ExitRules{
		HoldWindow:       e.HoldWindow.Duration,
		HoldWinPrice:     e.HoldWinPrice,
		HoldDeadPrice:    e.HoldDeadPrice,
		ForcedPenalty:    e.ForcedPenalty,
		StrongSupport:    e.StrongSupport,
		FavorSupport:     e.FavorSupport,
		ProfitWidenMult:  e.ProfitWidenMult,
		MinPeakFrac:      e.MinPeakFrac,
		EmergencyKeep:    e.EmergencyKeep,
		ReversalStrength: e.ReversalStrength,
		ReversalMaxGain:  e.ReversalMaxGain,
		MinHoldAge:       e.MinHoldAge.Duration,
		StopWidenMult:    e.StopWidenMult,
		StopCatchUp:      e.StopCatchUp.Duration,
		StaleAgeMult:     e.StaleAgeMult,
		StaleMaxGain:     e.StaleMaxGain,
	}
}

// paperQuote prices the synthetic up token off recent momentum so paper
// markets roughly track the tape instead of sitting at a coin flip.
func paperQuote(hist *signal.Store, engine *signal.Engine) feed.QuoteFn {
	return func(asset string, _ domain.Timeframe, _ time.Time) float64 {
		m, ok := hist.Momentum(engine.AssetKey(asset), 180)
		if !ok {
			return 0.5
		}
		shift := m / 0.003 * 0.35
		if shift > 0.35 {
			shift = 0.35
		}
		if shift < -0.35 {
			shift = -0.35
		}
		return 0.5 + shift
	}
}
