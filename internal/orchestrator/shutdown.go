package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Shutdown closes positions when configured, persists risk state and writes
// the final report. It runs once on a fresh bounded context so a cancelled
// parent does not abort the cleanup.
func (o *Orchestrator) Shutdown() error {
	o.shutdown.Do(func() {
		o.shutdownErr = o.doShutdown()
	})
	return o.shutdownErr
}

func (o *Orchestrator) doShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ShutdownTimeout)
	defer cancel()

	o.logger.Info("shutting down", slog.Bool("close_positions", o.cfg.CloseOnShutdown))
	var errs []error

	if o.cfg.CloseOnShutdown {
		results, err := o.exec.CloseAll(ctx, o.cfg.Assets, "shutdown")
		for _, r := range results {
			for _, cp := range r.Closed {
				o.recordClosed(ctx, cp, "shutdown")
			}
		}
		if err != nil {
			o.logger.Error("close all failed", slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("orchestrator: close all: %w", err))
		}
	}
	o.saveRisk(ctx)

	report, err := o.journal.WriteFinalReport()
	if err != nil {
		errs = append(errs, fmt.Errorf("orchestrator: final report: %w", err))
	} else {
		o.logger.Info("final report written", slog.String("dir", o.journal.Dir()))
	}

	if o.archiver != nil {
		n, err := o.archiver.ArchiveLogs(ctx, o.journal.Dir(), o.now())
		if err != nil {
			o.logger.Warn("log archive failed", slog.String("error", err.Error()))
		} else {
			o.logger.Info("logs archived", slog.Int("files", n))
		}
		if err := o.archiver.PutReport(ctx, "final_report", o.journal.Metrics()); err != nil {
			o.logger.Warn("report upload failed", slog.String("error", err.Error()))
		}
	}

	o.alert(ctx, EventLifecycle, "Trading stopped", report)
	return errors.Join(errs...)
}
