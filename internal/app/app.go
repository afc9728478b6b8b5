// Package app assembles the engine from configuration and runs its
// lifecycle.
package app

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/updownlabs/updownbot/internal/config"
)

// runner is anything with a blocking Run.
type runner interface {
	Run(ctx context.Context) error
}

// App owns the wired component graph and a list of cleanup functions
// executed in reverse order on shutdown.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	runners []runner
	closers []func()
}

// Option customizes wiring, used to inject live-mode backends.
type Option func(*options)

// New wires the whole engine. It connects external stores eagerly so a
// misconfigured deployment fails at startup, not mid-trade.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	if err := a.wire(ctx, opts...); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Run blocks until ctx is cancelled or a component fails, then runs all
// cleanup functions.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range a.runners {
		r := r
		g.Go(func() error { return r.Run(gctx) })
	}
	a.logger.Info("engine started",
		slog.String("mode", a.cfg.App.Mode),
		slog.Any("assets", a.cfg.App.Assets))

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Close runs cleanup functions in reverse registration order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}
