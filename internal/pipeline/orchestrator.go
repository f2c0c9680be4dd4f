package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/inthegrid/internal/arbitrage"
	"github.com/alanyoungcy/inthegrid/internal/service"
)

// Orchestrator runs the configured loops side by side. Nil components are
// not started, which is how modes select ingestion, calculation or both.
type Orchestrator struct {
	Ingestion *Ingestion

	Calculator        *arbitrage.Calculator
	CalculatorTrigger Trigger

	Alerts        *service.AlertEvaluator
	AlertsTrigger Trigger

	Archiver    *Archiver
	ArchiveCron string

	Logger *slog.Logger
}

// Run starts every configured loop and blocks until ctx is cancelled or one
// loop fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if o.Ingestion != nil {
		g.Go(func() error {
			if err := o.Ingestion.Run(ctx); err != nil {
				return fmt.Errorf("ingestion: %w", err)
			}
			return nil
		})
	}

	if o.Calculator != nil {
		g.Go(func() error {
			err := RunLoop(ctx, "spread_calculator", o.CalculatorTrigger, o.Logger,
				func(ctx context.Context, now time.Time) error {
					_, err := o.Calculator.RunCycle(ctx, now)
					return err
				})
			if err != nil {
				return fmt.Errorf("spread calculator: %w", err)
			}
			return nil
		})
	}

	if o.Alerts != nil {
		g.Go(func() error {
			if err := o.Alerts.Start(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			err := RunLoop(ctx, "alert_evaluator", o.AlertsTrigger, o.Logger,
				func(ctx context.Context, _ time.Time) error {
					_, err := o.Alerts.RunCycle(ctx)
					return err
				})
			if err != nil {
				return fmt.Errorf("alert evaluator: %w", err)
			}
			return nil
		})
	}

	if o.Archiver != nil && o.ArchiveCron != "" {
		g.Go(func() error {
			if err := o.Archiver.RunCron(ctx, o.ArchiveCron); err != nil {
				return fmt.Errorf("archiver: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}
