// Package pipeline runs background data jobs alongside the trading loop.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// LogArchiver uploads the trade-log directory to cold storage on a cron
// schedule so a crashed host loses at most one interval of history.
type LogArchiver struct {
	archiver domain.Archiver
	dir      string
	schedule parsedCron
	expr     string
	logger   *slog.Logger
	now      func() time.Time
}

// NewLogArchiver validates cronExpr and returns an archiver for dir.
func NewLogArchiver(archiver domain.Archiver, dir, cronExpr string, logger *slog.Logger) (*LogArchiver, error) {
	schedule, err := parseCron(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("pipeline: parse cron %q: %w", cronExpr, err)
	}
	return &LogArchiver{
		archiver: archiver,
		dir:      dir,
		schedule: schedule,
		expr:     cronExpr,
		logger:   logger.With(slog.String("component", "log_archiver")),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// RunOnce uploads the directory and returns the number of files written.
func (a *LogArchiver) RunOnce(ctx context.Context) (int, error) {
	at := a.now()
	n, err := a.archiver.ArchiveLogs(ctx, a.dir, at)
	if err != nil {
		return n, fmt.Errorf("pipeline: archive %s: %w", a.dir, err)
	}
	a.logger.InfoContext(ctx, "logs archived",
		slog.String("dir", a.dir),
		slog.Int("files", n),
	)
	return n, nil
}

// Run archives on every cron trigger until ctx is cancelled. Failed runs
// are logged and retried at the next trigger.
func (a *LogArchiver) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "log archiver started", slog.String("cron", a.expr))

	for {
		next, err := a.schedule.next(a.now())
		if err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			if _, err := a.RunOnce(ctx); err != nil {
				a.logger.ErrorContext(ctx, "log archive failed", slog.String("error", err.Error()))
			}
		}
	}
}
