// Package app wires the futures agent together and runs it in the configured
// mode: live (Binance futures), paper (simulated fills on live prices) or
// server (the HTTP API over persisted state, no trading).
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/alanyoungcy/futuresbot/internal/config"
)

// modeFunc runs one operating mode until it finishes or ctx ends.
type modeFunc func(a *App, ctx context.Context, deps *Dependencies) error

var modes = map[string]modeFunc{
	"live":   (*App).LiveMode,
	"paper":  (*App).PaperMode,
	"server": (*App).ServerMode,
}

// App owns the configuration and the backends wired for one run.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	cleanup   func()
	closeOnce sync.Once
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires the enabled backends and blocks in the selected mode. Backends
// stay open until Close so a caller can still flush after Run returns.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	run, ok := modes[mode]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	a.logger.InfoContext(ctx, "starting futuresbot",
		slog.String("mode", mode),
		slog.Any("assets", a.cfg.Trading.Assets),
		slog.Int("duration_days", a.cfg.Trading.DurationDays),
		slog.Bool("postgres", a.cfg.Postgres.Enabled),
		slog.Bool("redis", a.cfg.Redis.Enabled),
		slog.Bool("s3", a.cfg.S3.Enabled),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire: %w", err)
	}
	a.cleanup = cleanup

	if err := run(a, ctx, deps); err != nil {
		return fmt.Errorf("app: %s mode: %w", mode, err)
	}
	return nil
}

// Close releases every wired backend. Only the first call has effect.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.cleanup != nil {
			a.cleanup()
		}
		a.logger.Info("futuresbot stopped")
	})
}
