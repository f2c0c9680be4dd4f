package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/inthegrid/internal/domain"
)

// Archiver exports each finished UTC day to cold storage on a cron schedule.
type Archiver struct {
	blob   domain.Archiver
	logger *slog.Logger
	now    func() time.Time
}

// NewArchiver creates an Archiver.
func NewArchiver(blob domain.Archiver, logger *slog.Logger) *Archiver {
	return &Archiver{
		blob:   blob,
		logger: logger.With(slog.String("component", "archiver")),
		now:    time.Now,
	}
}

// Run exports prices, spreads and alerts for day. Every kind is attempted
// even when an earlier one fails.
func (a *Archiver) Run(ctx context.Context, day time.Time) error {
	day = day.UTC().Truncate(24 * time.Hour)
	a.logger.InfoContext(ctx, "archive run starting", slog.String("day", day.Format(time.DateOnly)))

	kinds := []struct {
		name string
		fn   func(context.Context, time.Time) (int64, error)
	}{
		{"prices", a.blob.ArchivePrices},
		{"spreads", a.blob.ArchiveSpreads},
		{"alerts", a.blob.ArchiveAlerts},
	}

	var errs []error
	for _, k := range kinds {
		n, err := k.fn(ctx, day)
		if err != nil {
			errs = append(errs, fmt.Errorf("archive %s: %w", k.name, err))
			continue
		}
		a.logger.InfoContext(ctx, "archived", slog.String("kind", k.name), slog.Int64("rows", n))
	}
	return errors.Join(errs...)
}

// RunCron runs the previous day's export each time cronExpr fires, until
// ctx is cancelled.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := parseSchedule(cronExpr)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := sched.next(a.now().UTC())
		if err != nil {
			return err
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return nil
		case <-timer.C:
			if err := a.Run(ctx, next.Add(-24*time.Hour)); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
