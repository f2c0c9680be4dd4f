package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/inthegrid/internal/arbitrage"
	"github.com/alanyoungcy/inthegrid/internal/config"
	"github.com/alanyoungcy/inthegrid/internal/domain"
	"github.com/alanyoungcy/inthegrid/internal/pipeline"
	"github.com/alanyoungcy/inthegrid/internal/retry"
	"github.com/alanyoungcy/inthegrid/internal/server"
	"github.com/alanyoungcy/inthegrid/internal/server/handler"
	"github.com/alanyoungcy/inthegrid/internal/service"
	"github.com/alanyoungcy/inthegrid/internal/simulator"
)

// IngestMode runs only the ingestion loop: simulator -> dual write.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting ingest mode")
	return a.runLoops(ctx, deps, true, false)
}

// CalculateMode runs the spread calculator, alert evaluator and archive cron
// against prices written by another process.
func (a *App) CalculateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting calculate mode")
	return a.runLoops(ctx, deps, false, true)
}

// FullMode runs every loop in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.runLoops(ctx, deps, true, true)
}

// BackfillMode writes simulator.backfill_hours of history ending now and
// returns.
func (a *App) BackfillMode(ctx context.Context, deps *Dependencies) error {
	sim, err := buildSimulator(a.cfg)
	if err != nil {
		return fmt.Errorf("backfill mode: %w", err)
	}
	step := a.cfg.Simulator.BackfillStep.Duration
	end := time.Now().UTC().Truncate(step)

	if _, err := pipeline.Backfill(ctx, sim, deps.Prices, end, a.cfg.Simulator.BackfillHours, step, a.logger); err != nil {
		return fmt.Errorf("backfill mode: %w", err)
	}
	return nil
}

func (a *App) runLoops(ctx context.Context, deps *Dependencies, ingest, calculate bool) error {
	orch := &pipeline.Orchestrator{Logger: a.logger}
	status := &handler.StatusHandler{Mode: a.cfg.Mode, Markets: a.cfg.MarketCodes()}
	policy := retryPolicy(a.cfg)

	if ingest {
		sim, err := buildSimulator(a.cfg)
		if err != nil {
			return err
		}
		dual := service.NewDualWriteStore(deps.Prices, deps.SignalBus, service.DualWriteConfig{
			Markets:  a.cfg.MarketCodes(),
			MinPrice: decimal.NewFromFloat(a.cfg.Ingestion.MinPrice),
			MaxPrice: decimal.NewFromFloat(a.cfg.Ingestion.MaxPrice),
		}, a.logger)
		orch.Ingestion = pipeline.NewIngestion(sim, dual, pipeline.IngestionConfig{
			Markets:       a.cfg.MarketCodes(),
			Interval:      a.cfg.Ingestion.Interval.Duration,
			CommitTimeout: a.cfg.Ingestion.CommitTimeout.Duration,
			Retry:         policy,
		}, a.logger)
		status.Ingestion = orch.Ingestion
	}

	if calculate {
		costs, err := costTable(a.cfg)
		if err != nil {
			return err
		}
		calc := a.cfg.Calculator
		bucket := calc.Bucket.Duration
		if bucket == 0 {
			bucket = calc.Interval.Duration
		}
		orch.Calculator = arbitrage.NewCalculator(arbitrage.CalculatorConfig{
			Markets:       a.cfg.MarketCodes(),
			Costs:         costs,
			Lookback:      calc.Lookback.Duration,
			Bucket:        bucket,
			InsertTimeout: calc.InsertTimeout.Duration,
			Retry:         policy,
			UseLock:       calc.UseLock,
			LockTTL:       calc.LockTTL.Duration,
			Prices:        deps.Prices,
			Spreads:       deps.Spreads,
			Bus:           deps.SignalBus,
			Locks:         deps.LockManager,
			Logger:        a.logger,
		})
		orch.CalculatorTrigger = a.trigger(calc.Trigger, calc.Interval.Duration, domain.ChannelPrices, deps)
		status.Calculator = orch.Calculator

		if a.cfg.Alerts.Enabled {
			ths, err := thresholds(a.cfg)
			if err != nil {
				return err
			}
			orch.Alerts = service.NewAlertEvaluator(deps.Spreads, deps.Alerts, deps.Audit, deps.Notifier,
				service.AlertConfig{
					Thresholds:        ths,
					SuppressionWindow: a.cfg.Alerts.SuppressionWindow.Duration,
					BatchSize:         a.cfg.Alerts.BatchSize,
					Retry:             retryPolicy(a.cfg),
				}, a.logger)
			orch.AlertsTrigger = a.trigger(a.cfg.Alerts.Trigger, a.cfg.Alerts.Interval.Duration, domain.ChannelSpreads, deps)
			status.Alerts = orch.Alerts
		}

		if a.cfg.Archive.Enabled && deps.Archiver != nil {
			orch.Archiver = pipeline.NewArchiver(deps.Archiver, a.logger)
			orch.ArchiveCron = a.cfg.Archive.Cron
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return orch.Run(gctx)
	})
	if a.cfg.Server.Enabled {
		a.startHTTPServer(gctx, g, deps, status)
	}
	return g.Wait()
}

// trigger picks the wake-up source for a loop. "signal" listens on channel,
// "stream" polls the prices stream; both fall back to the interval when the
// bus is quiet.
func (a *App) trigger(kind string, interval time.Duration, channel string, deps *Dependencies) pipeline.Trigger {
	if deps.SignalBus != nil {
		switch kind {
		case "signal":
			return pipeline.NewSignalTrigger(deps.SignalBus, channel, interval, a.logger)
		case "stream":
			return pipeline.NewStreamTrigger(deps.SignalBus, domain.StreamPrices, streamPoll, interval, a.logger)
		}
	}
	return pipeline.NewIntervalTrigger(interval)
}

const streamPoll = time.Second

// startHTTPServer adds the ops server to g and shuts it down when ctx ends.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, status *handler.StatusHandler) {
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, server.Handlers{
		Health: handler.NewHealthHandler(deps.Health, a.logger),
		Status: status,
	}, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func retryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.Ingestion.MaxAttempts,
		Base:        cfg.Ingestion.RetryBase.Duration,
		Max:         cfg.Ingestion.RetryMax.Duration,
		Jitter:      retry.DefaultPolicy.Jitter,
	}
}

func buildSimulator(cfg *config.Config) (*simulator.Simulator, error) {
	loc, err := time.LoadLocation(cfg.Simulator.Timezone)
	if err != nil {
		return nil, fmt.Errorf("simulator timezone: %w", err)
	}
	s := cfg.Simulator
	sc := simulator.Config{
		PeakStart:     s.PeakStart,
		PeakEnd:       s.PeakEnd,
		PeakFactor:    s.PeakFactor,
		OffPeakStart:  s.OffPeakStart,
		OffPeakEnd:    s.OffPeakEnd,
		OffPeakFactor: s.OffPeakFactor,
		MeanReversion: s.MeanReversion,
		Floor:         s.Floor,
		Ceiling:       s.Ceiling,
		Location:      loc,
		Seed:          s.Seed,
	}
	for _, m := range cfg.Markets {
		sc.Markets = append(sc.Markets, simulator.MarketConfig{
			Code:       domain.MarketCode(m.Code),
			BasePrice:  m.BasePrice,
			Volatility: m.Volatility,
			Floor:      m.Floor,
			Ceiling:    m.Ceiling,
		})
	}
	for _, c := range s.Correlations {
		sc.Correlations = append(sc.Correlations, simulator.Correlation{
			Driver:   domain.MarketCode(c.Driver),
			Follower: domain.MarketCode(c.Follower),
			Weight:   c.Weight,
		})
	}
	return simulator.New(sc)
}

func costTable(cfg *config.Config) (arbitrage.CostTable, error) {
	costs := cfg.Calculator.TransmissionCosts
	if len(costs) == 0 {
		costs = arbitrage.DefaultTransmissionCosts()
	}
	return arbitrage.NewCostTable(costs, cfg.Calculator.DefaultTransmissionCost)
}

func thresholds(cfg *config.Config) ([]service.Threshold, error) {
	out := make([]service.Threshold, 0, len(cfg.Alerts.Thresholds))
	for _, th := range cfg.Alerts.Thresholds {
		p, err := domain.ParsePriority(th.Priority)
		if err != nil {
			return nil, fmt.Errorf("alert thresholds: %w", err)
		}
		out = append(out, service.Threshold{
			Priority:          p,
			MinNetOpportunity: decimal.NewFromFloat(th.MinNetOpportunity),
		})
	}
	return out, nil
}
